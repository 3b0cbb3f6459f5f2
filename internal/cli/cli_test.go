package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/slot-booking/internal/model"
	"github.com/jwalitptl/slot-booking/internal/repository/jsonfile"
	"github.com/jwalitptl/slot-booking/internal/service/notification"
	"github.com/jwalitptl/slot-booking/pkg/messaging"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// jsonConfig writes a config.yml pointing at a json store in a temp dir.
func jsonConfig(t *testing.T, extra string) (cfgPath, storePath string) {
	t.Helper()
	dir := t.TempDir()
	storePath = filepath.Join(dir, "slots.json")
	cfgPath = filepath.Join(dir, "config.yml")
	body := fmt.Sprintf("database:\n  driver: jsonfile\n  json_path: %s\n%s", storePath, extra)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath, storePath
}

func seed(t *testing.T, path string, drafts ...model.SlotDraft) {
	t.Helper()
	s, err := jsonfile.Open(path)
	require.NoError(t, err)
	defer s.Close()
	for _, d := range drafts {
		_, err := s.Create(context.Background(), d)
		require.NoError(t, err)
	}
}

func TestRootCommandWiring(t *testing.T) {
	cmd := NewRootCommand()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"migrate", "hash-password", "issue-token", "list", "purge", "events"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("format"))
}

func TestInvalidFormat(t *testing.T) {
	cfg, _ := jsonConfig(t, "")
	_, err := run(t, "", "--config", cfg, "--format", "yaml", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "correct horse\n", "hash-password", "--cost", "4")
	require.NoError(t, err)

	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")))
}

func TestHashPasswordJSON(t *testing.T) {
	out, err := run(t, "correct horse", "--format", "json", "hash-password", "--cost", "4")
	require.NoError(t, err)

	var result struct {
		Hash string `json:"hash"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(result.Hash), []byte("correct horse")))
}

func TestHashPasswordRejectsShortOrEmpty(t *testing.T) {
	_, err := run(t, "short\n", "hash-password", "--cost", "4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 8")

	_, err = run(t, "", "hash-password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no password")
}

func TestIssueToken(t *testing.T) {
	cfg, _ := jsonConfig(t, "jwt:\n  secret: cli-secret-0123456789\nadmin:\n  email: admin@example.com\n")

	out, err := run(t, "", "--config", cfg, "--format", "json", "issue-token")
	require.NoError(t, err)

	var token model.TokenResponse
	require.NoError(t, json.Unmarshal([]byte(out), &token))
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Len(t, strings.Split(token.AccessToken, "."), 3)
	assert.True(t, token.ExpiresAt.After(time.Now()))
}

func TestIssueTokenNeedsSecret(t *testing.T) {
	cfg, _ := jsonConfig(t, "")
	_, err := run(t, "", "--config", cfg, "issue-token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret")
}

func TestListAndPurge(t *testing.T) {
	cfg, store := jsonConfig(t, "")
	past := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Minute)
	future := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Minute)
	seed(t, store,
		model.SlotDraft{Start: past, End: past.Add(time.Hour)},
		model.SlotDraft{Start: future, End: future.Add(time.Hour)},
	)

	out, err := run(t, "", "--config", cfg, "--format", "json", "list")
	require.NoError(t, err)
	var slots []model.Slot
	require.NoError(t, json.Unmarshal([]byte(out), &slots))
	require.Len(t, slots, 2)
	assert.True(t, slots[0].StartTime.Equal(past))

	out, err = run(t, "", "--config", cfg, "list", "--upcoming")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "open"))

	out, err = run(t, "", "--config", cfg, "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 1 past slot(s)")

	out, err = run(t, "", "--config", cfg, "--format", "json", "list")
	require.NoError(t, err)
	slots = nil
	require.NoError(t, json.Unmarshal([]byte(out), &slots))
	require.Len(t, slots, 1)
	assert.True(t, slots[0].StartTime.Equal(future))
}

func TestListRejectsUnknownStatus(t *testing.T) {
	cfg, _ := jsonConfig(t, "")
	_, err := run(t, "", "--config", cfg, "list", "--status", "cancelled")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestMigrateJSONStore(t *testing.T) {
	cfg, _ := jsonConfig(t, "")
	out, err := run(t, "", "--config", cfg, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "no migrations")
}

func TestMigrateSQLite(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yml")
	body := fmt.Sprintf("database:\n  driver: sqlite3\n  path: %s\n", filepath.Join(dir, "slots.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	out, err := run(t, "", "--config", cfgPath, "--format", "json", "migrate")
	require.NoError(t, err)

	var result struct {
		Applied int   `json:"applied"`
		Version int64 `json:"version"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, int64(1), result.Version)

	out, err = run(t, "", "--config", cfgPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied 0 migration(s)")
}

func TestEventsNeedsRedis(t *testing.T) {
	cfg, _ := jsonConfig(t, "")
	_, err := run(t, "", "--config", cfg, "events")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.url")
}

type fakeBroker struct {
	channel string
	msgs    [][]byte
}

func (f *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	return nil
}

func (f *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	f.channel = channel
	ch := make(chan []byte, len(f.msgs))
	for _, m := range f.msgs {
		ch <- m
	}
	close(ch)
	return ch, nil
}

func (f *fakeBroker) Close() error { return nil }

var _ messaging.Broker = (*fakeBroker)(nil)

func TestTailEvents(t *testing.T) {
	start := time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)
	event := messaging.NewMessage(notification.EventSlotClaimed, notification.SlotClaimed{
		SlotID:      "s-1",
		ReferenceID: "RDV-ABC123",
		Status:      model.SlotStatusBooked,
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		PatientName: "Amina",
	})
	raw, err := json.Marshal(event)
	require.NoError(t, err)

	broker := &fakeBroker{msgs: [][]byte{raw, []byte("garbage"), raw}}
	var out bytes.Buffer
	err = tailEvents(context.Background(), broker, "", 2, &out, &RootOptions{Format: "text"})
	require.NoError(t, err)

	assert.Equal(t, notification.EventSlotClaimed, broker.channel)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "RDV-ABC123")
	assert.Contains(t, lines[0], "slot=s-1")
	assert.Contains(t, lines[1], "unreadable event")
}

func TestTailEventsJSON(t *testing.T) {
	broker := &fakeBroker{msgs: [][]byte{[]byte(`{"type":"slot.claimed"}`)}}
	var out bytes.Buffer
	err := tailEvents(context.Background(), broker, "custom", 0, &out, &RootOptions{Format: "json"})
	require.NoError(t, err)

	assert.Equal(t, "custom", broker.channel)
	assert.Equal(t, "{\"type\":\"slot.claimed\"}\n", out.String())
}
