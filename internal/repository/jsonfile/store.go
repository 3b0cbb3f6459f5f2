// Package jsonfile is a single-process slot repository backed by one JSON
// document. Every mutation rewrites the document through a temp file and an
// atomic rename, so a crash leaves either the old or the new state.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/slot-booking/internal/lifecycle"
	"github.com/jwalitptl/slot-booking/internal/model"
	"github.com/jwalitptl/slot-booking/internal/repository"
	apperrors "github.com/jwalitptl/slot-booking/pkg/errors"
)

// record is the on-disk shape. It keeps the idempotency key, which the API
// representation hides.
type record struct {
	ID             string           `json:"id"`
	StartTime      time.Time        `json:"start_time"`
	EndTime        time.Time        `json:"end_time"`
	Status         model.SlotStatus `json:"status"`
	PatientName    *string          `json:"patient_name,omitempty"`
	PatientPhone   *string          `json:"patient_phone,omitempty"`
	ReferenceID    *string          `json:"reference_id,omitempty"`
	IdempotencyKey *string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

type document struct {
	Slots []record `json:"slots"`
}

type Store struct {
	mu    sync.Mutex
	path  string
	slots map[string]model.Slot
	now   func() time.Time
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads path, creating an empty document if it does not exist.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, slots: make(map[string]model.Slot), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		if err := s.persist(s.slots); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc document
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}
	for _, r := range doc.Slots {
		s.slots[r.ID] = fromRecord(r)
	}
	return s, nil
}

var _ repository.SlotRepository = (*Store)(nil)

func toRecord(s model.Slot) record {
	return record{
		ID:             s.ID,
		StartTime:      s.StartTime,
		EndTime:        s.EndTime,
		Status:         s.Status,
		PatientName:    s.PatientName,
		PatientPhone:   s.PatientPhone,
		ReferenceID:    s.ReferenceID,
		IdempotencyKey: s.IdempotencyKey,
		CreatedAt:      s.CreatedAt,
	}
}

func fromRecord(r record) model.Slot {
	return model.Slot{
		ID:             r.ID,
		StartTime:      r.StartTime.UTC(),
		EndTime:        r.EndTime.UTC(),
		Status:         r.Status,
		PatientName:    r.PatientName,
		PatientPhone:   r.PatientPhone,
		ReferenceID:    r.ReferenceID,
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func sorted(slots map[string]model.Slot) []model.Slot {
	out := make([]model.Slot, 0, len(slots))
	for _, s := range slots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// persist writes slots to a sibling temp file, syncs it and renames it over
// the document. Callers hold s.mu.
func (s *Store) persist(slots map[string]model.Slot) error {
	doc := document{Slots: make([]record, 0, len(slots))}
	for _, slot := range sorted(slots) {
		doc.Slots = append(doc.Slots, toRecord(slot))
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return apperrors.Storage("encode slots", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return apperrors.Storage("create temp file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.Storage("write slots", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperrors.Storage("sync slots", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Storage("close temp file", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return apperrors.Storage("replace slots file", err)
	}
	return nil
}

// commit persists next and swaps it in only on success.
func (s *Store) commit(next map[string]model.Slot) error {
	if err := s.persist(next); err != nil {
		return err
	}
	s.slots = next
	return nil
}

func (s *Store) clone() map[string]model.Slot {
	next := make(map[string]model.Slot, len(s.slots))
	for id, slot := range s.slots {
		next[id] = slot
	}
	return next
}

func (s *Store) newSlot(draft model.SlotDraft) (model.Slot, error) {
	if err := lifecycle.ValidateDraft(draft); err != nil {
		return model.Slot{}, err
	}
	return model.Slot{
		ID:        uuid.New().String(),
		StartTime: draft.Start.UTC(),
		EndTime:   draft.End.UTC(),
		Status:    model.SlotStatusOpen,
		CreatedAt: s.now().UTC(),
	}, nil
}

func (s *Store) Create(ctx context.Context, draft model.SlotDraft) (*model.Slot, error) {
	slot, err := s.newSlot(draft)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.clone()
	next[slot.ID] = slot
	if err := s.commit(next); err != nil {
		return nil, err
	}
	return &slot, nil
}

func (s *Store) CreateBatch(ctx context.Context, drafts []model.SlotDraft) ([]*model.Slot, error) {
	if len(drafts) == 0 {
		return nil, apperrors.Validation("at least one slot is required")
	}

	created := make([]*model.Slot, 0, len(drafts))
	for i, d := range drafts {
		slot, err := s.newSlot(d)
		if err != nil {
			return nil, apperrors.Validationf("slot %d: %s", i, err.Error())
		}
		created = append(created, &slot)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.clone()
	for _, slot := range created {
		next[slot.ID] = *slot
	}
	if err := s.commit(next); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[id]
	if !ok {
		return nil, apperrors.NotFound("slot", id)
	}
	return &slot, nil
}

func (s *Store) List(ctx context.Context, filter model.SlotFilter) ([]*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*model.Slot{}
	for _, slot := range sorted(s.slots) {
		slot := slot
		if filter.Matches(&slot) {
			out = append(out, &slot)
		}
	}
	return out, nil
}

func (s *Store) ConditionalUpdate(ctx context.Context, id string, expected model.SlotStatus, patch model.SlotPatch) (*model.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.slots[id]
	if !ok {
		return nil, apperrors.NotFound("slot", id)
	}
	if current.Status != expected {
		return nil, apperrors.Conflict(fmt.Sprintf("slot %s is %s, expected %s", id, current.Status, expected))
	}

	for otherID, other := range s.slots {
		if otherID == id {
			continue
		}
		if patch.ReferenceID != "" && other.ReferenceID != nil && *other.ReferenceID == patch.ReferenceID {
			return nil, apperrors.New(apperrors.KindConflict, "reference id already in use", repository.ErrDuplicateReference)
		}
		if patch.IdempotencyKey != "" && other.IdempotencyKey != nil && *other.IdempotencyKey == patch.IdempotencyKey {
			return nil, apperrors.New(apperrors.KindValidation, "idempotency key already used for another slot", repository.ErrDuplicateIdempotencyKey)
		}
	}

	updated := lifecycle.Apply(current, patch)
	next := s.clone()
	next[id] = updated
	if err := s.commit(next); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.slots[id]; !ok {
		return nil
	}
	next := s.clone()
	delete(next, id)
	return s.commit(next)
}

func (s *Store) DeleteMany(ctx context.Context, ids []string) []model.DeleteResult {
	results := make([]model.DeleteResult, 0, len(ids))
	for _, id := range ids {
		err := s.Delete(ctx, id)
		results = append(results, model.DeleteResult{ID: id, Deleted: err == nil, Err: err})
	}
	return results
}

func (s *Store) DeleteWhere(ctx context.Context, filter model.SlotFilter) (int64, error) {
	if filter.Empty() {
		return 0, apperrors.Validation("refusing to delete with an empty filter")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.clone()
	var n int64
	for id, slot := range s.slots {
		slot := slot
		if filter.Matches(&slot) {
			delete(next, id)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.commit(next); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return apperrors.Storage("stat slots file", err)
	}
	return nil
}

func (s *Store) Close() error { return nil }
