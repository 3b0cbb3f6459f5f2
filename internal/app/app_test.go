package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/slot-booking/internal/config"
	"github.com/jwalitptl/slot-booking/internal/model"
)

func TestOpenStoreDrivers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, cfg := range []config.DatabaseConfig{
		{Driver: "jsonfile", JSONPath: filepath.Join(dir, "slots.json")},
		{Driver: "sqlite3", Path: filepath.Join(dir, "slots.db"), Migrate: true},
	} {
		t.Run(cfg.Driver, func(t *testing.T) {
			store, err := OpenStore(ctx, cfg, nil)
			require.NoError(t, err)
			defer store.Close()

			start := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
			_, err = store.Create(ctx, model.SlotDraft{Start: start, End: start.Add(time.Hour)})
			require.NoError(t, err)
			assert.NoError(t, store.Ping(ctx))
		})
	}

	_, err := OpenStore(ctx, config.DatabaseConfig{Driver: "mysql"}, nil)
	assert.Error(t, err)
}

func TestNotifierWithoutChannels(t *testing.T) {
	cfg := &config.Config{Booking: config.BookingConfig{Timezone: "Africa/Casablanca"}}

	svc, cleanup, err := Notifier(context.Background(), cfg, nil, NewLogger(config.LogConfig{Level: "error"}))
	require.NoError(t, err)
	defer cleanup()

	link := svc.WhatsAppLink(model.Confirmation{ReferenceID: "RDV-1", Slot: &model.Slot{}})
	assert.Contains(t, link, "https://wa.me/212753235215")
}

func TestNotifierRejectsUnreachableRedis(t *testing.T) {
	cfg := &config.Config{
		Booking: config.BookingConfig{Timezone: "UTC"},
		Redis:   config.RedisConfig{URL: "redis://127.0.0.1:1/0", Channel: "slot.claimed"},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := Notifier(ctx, cfg, nil, NewLogger(config.LogConfig{Level: "error"}))
	assert.Error(t, err)
}
