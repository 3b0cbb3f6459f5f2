package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/slot-booking/internal/model"
	"github.com/jwalitptl/slot-booking/internal/repository"
	apperrors "github.com/jwalitptl/slot-booking/pkg/errors"
)

var base = time.Date(2030, 3, 4, 9, 0, 0, 0, time.UTC)

func draftAt(offset time.Duration) model.SlotDraft {
	start := base.Add(offset)
	return model.SlotDraft{Start: start, End: start.Add(time.Hour)}
}

func patch(ref, key string) model.SlotPatch {
	return model.SlotPatch{
		Status:         model.SlotStatusBooked,
		PatientName:    "Amina",
		PatientPhone:   "+212600000000",
		ReferenceID:    ref,
		IdempotencyKey: key,
	}
}

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "slots.json")
	s, err := Open(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestMutationsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.json")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)

	slot, err := s.Create(ctx, draftAt(0))
	require.NoError(t, err)
	_, err = s.ConditionalUpdate(ctx, slot.ID, model.SlotStatusOpen, patch("RDV-0000000A", "k1"))
	require.NoError(t, err)

	reopened, err := Open(path)
	require.NoError(t, err)

	got, err := reopened.Get(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SlotStatusBooked, got.Status)
	require.NotNil(t, got.IdempotencyKey)
	assert.Equal(t, "k1", *got.IdempotencyKey)
	assert.True(t, got.StartTime.Equal(base))
}

func TestCreateBatchIsAllOrNothing(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "slots.json"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.CreateBatch(ctx, []model.SlotDraft{draftAt(0), {Start: base, End: base}})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	all, err := s.List(ctx, model.SlotFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	created, err := s.CreateBatch(ctx, []model.SlotDraft{draftAt(time.Hour), draftAt(0)})
	require.NoError(t, err)
	assert.Len(t, created, 2)

	all, err = s.List(ctx, model.SlotFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].StartTime.Before(all[1].StartTime))
}

func TestConditionalUpdateOutcomes(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "slots.json"))
	require.NoError(t, err)
	ctx := context.Background()

	a, err := s.Create(ctx, draftAt(0))
	require.NoError(t, err)
	b, err := s.Create(ctx, draftAt(time.Hour))
	require.NoError(t, err)

	_, err = s.ConditionalUpdate(ctx, a.ID, model.SlotStatusOpen, patch("RDV-00000001", "k1"))
	require.NoError(t, err)

	_, err = s.ConditionalUpdate(ctx, a.ID, model.SlotStatusOpen, patch("RDV-00000002", ""))
	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))

	_, err = s.ConditionalUpdate(ctx, "nope", model.SlotStatusOpen, patch("RDV-00000003", ""))
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	_, err = s.ConditionalUpdate(ctx, b.ID, model.SlotStatusOpen, patch("RDV-00000001", ""))
	assert.True(t, errors.Is(err, repository.ErrDuplicateReference))

	_, err = s.ConditionalUpdate(ctx, b.ID, model.SlotStatusOpen, patch("RDV-00000004", "k1"))
	assert.True(t, errors.Is(err, repository.ErrDuplicateIdempotencyKey))
}

func TestConditionalUpdateSingleWinner(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "slots.json"))
	require.NoError(t, err)
	ctx := context.Background()

	slot, err := s.Create(ctx, draftAt(0))
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ConditionalUpdate(ctx, slot.ID, model.SlotStatusOpen, patch(fmt.Sprintf("RDV-%08X", i), ""))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
		}
	}
	assert.Equal(t, 1, winners)
}

func TestDeletes(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "slots.json"))
	require.NoError(t, err)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		slot, err := s.Create(ctx, draftAt(time.Duration(i)*24*time.Hour))
		require.NoError(t, err)
		ids = append(ids, slot.ID)
	}

	require.NoError(t, s.Delete(ctx, ids[0]))
	require.NoError(t, s.Delete(ctx, ids[0]))

	results := s.DeleteMany(ctx, []string{ids[1], "ghost"})
	require.Len(t, results, 2)
	assert.True(t, results[0].Deleted)
	assert.True(t, results[1].Deleted)

	_, err = s.DeleteWhere(ctx, model.SlotFilter{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	n, err := s.DeleteWhere(ctx, model.SlotFilter{EndBefore: base.Add(60 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	remaining, err := s.List(ctx, model.SlotFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, ids[3], remaining[0].ID)
}
