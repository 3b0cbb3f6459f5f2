package repository

import (
	"context"

	"github.com/jwalitptl/slot-booking/internal/model"
)

// All repository interfaces in one file
type (
	// SlotRepository is the durable record of slots. Every mutating call
	// persists before it returns.
	SlotRepository interface {
		Create(ctx context.Context, draft model.SlotDraft) (*model.Slot, error)
		// CreateBatch is all-or-nothing.
		CreateBatch(ctx context.Context, drafts []model.SlotDraft) ([]*model.Slot, error)
		Get(ctx context.Context, id string) (*model.Slot, error)
		// List returns slots ordered by start_time ascending.
		List(ctx context.Context, filter model.SlotFilter) ([]*model.Slot, error)
		// ConditionalUpdate applies patch only if the stored status equals
		// expected. It fails with a conflict error otherwise and with a
		// not_found error when id is unknown.
		ConditionalUpdate(ctx context.Context, id string, expected model.SlotStatus, patch model.SlotPatch) (*model.Slot, error)
		// Delete is idempotent.
		Delete(ctx context.Context, id string) error
		// DeleteMany deletes each id independently and reports per-id results.
		DeleteMany(ctx context.Context, ids []string) []model.DeleteResult
		DeleteWhere(ctx context.Context, filter model.SlotFilter) (int64, error)
		Ping(ctx context.Context) error
		Close() error
	}
)
