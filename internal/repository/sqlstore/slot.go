// Package sqlstore implements the slot repository on PostgreSQL and SQLite.
// Queries are written with '?' placeholders and rebound per driver.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/jwalitptl/slot-booking/internal/lifecycle"
	"github.com/jwalitptl/slot-booking/internal/model"
	"github.com/jwalitptl/slot-booking/internal/repository"
	apperrors "github.com/jwalitptl/slot-booking/pkg/errors"
	"github.com/jwalitptl/slot-booking/pkg/metrics"
)

const slotColumns = `id, start_time, end_time, status, patient_name, patient_phone,
	reference_id, idempotency_key, created_at`

type slotRepository struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*slotRepository)

// WithMetrics records per-operation counters and latencies.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *slotRepository) { r.metrics = m }
}

// WithClock overrides the clock used for created_at.
func WithClock(now func() time.Time) Option {
	return func(r *slotRepository) { r.now = now }
}

func NewSlotRepository(db *sqlx.DB, opts ...Option) repository.SlotRepository {
	r := &slotRepository{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// dbTime normalizes timestamps so that SQLite's text comparison orders them
// the same way as PostgreSQL's TIMESTAMPTZ.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func (r *slotRepository) observe(op string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.StoreOperations.WithLabelValues(op, status).Inc()
	r.metrics.StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (r *slotRepository) newSlot(draft model.SlotDraft) (*model.Slot, error) {
	if err := lifecycle.ValidateDraft(draft); err != nil {
		return nil, err
	}
	return &model.Slot{
		ID:        uuid.New().String(),
		StartTime: dbTime(draft.Start),
		EndTime:   dbTime(draft.End),
		Status:    model.SlotStatusOpen,
		CreatedAt: dbTime(r.now()),
	}, nil
}

func (r *slotRepository) insert(ctx context.Context, ext sqlx.ExtContext, slot *model.Slot) error {
	query := ext.Rebind(`
		INSERT INTO slots (id, start_time, end_time, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	_, err := ext.ExecContext(ctx, query,
		slot.ID,
		slot.StartTime,
		slot.EndTime,
		slot.Status,
		slot.CreatedAt,
	)
	return err
}

func (r *slotRepository) Create(ctx context.Context, draft model.SlotDraft) (slot *model.Slot, err error) {
	defer func(start time.Time) { r.observe("create", start, err) }(time.Now())

	slot, err = r.newSlot(draft)
	if err != nil {
		return nil, err
	}
	if err := r.insert(ctx, r.db, slot); err != nil {
		return nil, apperrors.Storage("create slot", err)
	}
	return slot, nil
}

func (r *slotRepository) CreateBatch(ctx context.Context, drafts []model.SlotDraft) (slots []*model.Slot, err error) {
	defer func(start time.Time) { r.observe("create_batch", start, err) }(time.Now())

	if len(drafts) == 0 {
		return nil, apperrors.Validation("at least one slot is required")
	}

	slots = make([]*model.Slot, 0, len(drafts))
	for i, d := range drafts {
		slot, err := r.newSlot(d)
		if err != nil {
			return nil, apperrors.Validationf("slot %d: %s", i, err.Error())
		}
		slots = append(slots, slot)
	}

	err = withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, slot := range slots {
			if err := r.insert(ctx, tx, slot); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Storage("create slots", err)
	}
	return slots, nil
}

func getSlot(ctx context.Context, q sqlx.ExtContext, id string) (*model.Slot, error) {
	query := q.Rebind(`SELECT ` + slotColumns + ` FROM slots WHERE id = ?`)
	var slot model.Slot
	if err := sqlx.GetContext(ctx, q, &slot, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("slot", id)
		}
		return nil, apperrors.Storage("get slot", err)
	}
	return &slot, nil
}

func (r *slotRepository) Get(ctx context.Context, id string) (slot *model.Slot, err error) {
	defer func(start time.Time) { r.observe("get", start, err) }(time.Now())
	return getSlot(ctx, r.db, id)
}

// where renders filter as a WHERE clause with '?' placeholders.
func where(filter model.SlotFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.From.IsZero() {
		conds = append(conds, "start_time >= ?")
		args = append(args, dbTime(filter.From))
	}
	if !filter.To.IsZero() {
		conds = append(conds, "start_time < ?")
		args = append(args, dbTime(filter.To))
	}
	if !filter.EndBefore.IsZero() {
		conds = append(conds, "end_time < ?")
		args = append(args, dbTime(filter.EndBefore))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *slotRepository) List(ctx context.Context, filter model.SlotFilter) (slots []*model.Slot, err error) {
	defer func(start time.Time) { r.observe("list", start, err) }(time.Now())

	clause, args := where(filter)
	query := r.db.Rebind(`SELECT ` + slotColumns + ` FROM slots` + clause + ` ORDER BY start_time ASC, id ASC`)

	slots = []*model.Slot{}
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, apperrors.Storage("list slots", err)
	}
	return slots, nil
}

// ConditionalUpdate runs as a single autocommit statement, so a competing
// claim waits at most for that statement and never for a caller's
// transaction. PostgreSQL returns the row from the UPDATE itself; SQLite has
// one connection, so the read that follows cannot interleave with another
// write.
func (r *slotRepository) ConditionalUpdate(ctx context.Context, id string, expected model.SlotStatus, patch model.SlotPatch) (slot *model.Slot, err error) {
	defer func(start time.Time) { r.observe("conditional_update", start, err) }(time.Now())

	query := `
		UPDATE slots
		SET status = ?, patient_name = ?, patient_phone = ?, reference_id = ?, idempotency_key = ?
		WHERE id = ? AND status = ?`
	args := []interface{}{
		patch.Status,
		nullString(patch.PatientName),
		nullString(patch.PatientPhone),
		nullString(patch.ReferenceID),
		nullString(patch.IdempotencyKey),
		id,
		expected,
	}

	var updated bool
	if r.db.DriverName() == "postgres" {
		slot, updated, err = r.updateReturning(ctx, query, args)
	} else {
		slot, updated, err = r.updateThenRead(ctx, id, query, args)
	}
	if err != nil {
		return nil, err
	}
	if updated {
		return slot, nil
	}

	current, err := getSlot(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	return nil, apperrors.Conflict(fmt.Sprintf("slot %s is %s, expected %s", id, current.Status, expected))
}

func (r *slotRepository) updateReturning(ctx context.Context, query string, args []interface{}) (*model.Slot, bool, error) {
	var slot model.Slot
	err := r.db.GetContext(ctx, &slot, r.db.Rebind(query+` RETURNING `+slotColumns), args...)
	switch {
	case err == nil:
		return &slot, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	}
	return nil, false, mapWriteError(err)
}

func (r *slotRepository) updateThenRead(ctx context.Context, id, query string, args []interface{}) (*model.Slot, bool, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, false, mapWriteError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, apperrors.Storage("get rows affected", err)
	}
	if rows == 0 {
		return nil, false, nil
	}
	slot, err := getSlot(ctx, r.db, id)
	if err != nil {
		return nil, false, err
	}
	return slot, true, nil
}

func (r *slotRepository) Delete(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { r.observe("delete", start, err) }(time.Now())

	query := r.db.Rebind(`DELETE FROM slots WHERE id = ?`)
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return apperrors.Storage("delete slot", err)
	}
	return nil
}

func (r *slotRepository) DeleteMany(ctx context.Context, ids []string) []model.DeleteResult {
	results := make([]model.DeleteResult, 0, len(ids))
	for _, id := range ids {
		err := r.Delete(ctx, id)
		results = append(results, model.DeleteResult{ID: id, Deleted: err == nil, Err: err})
	}
	return results
}

func (r *slotRepository) DeleteWhere(ctx context.Context, filter model.SlotFilter) (n int64, err error) {
	defer func(start time.Time) { r.observe("delete_where", start, err) }(time.Now())

	if filter.Empty() {
		return 0, apperrors.Validation("refusing to delete with an empty filter")
	}

	clause, args := where(filter)
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM slots`+clause), args...)
	if err != nil {
		return 0, apperrors.Storage("delete slots", err)
	}
	n, err = result.RowsAffected()
	if err != nil {
		return 0, apperrors.Storage("get rows affected", err)
	}
	return n, nil
}

func (r *slotRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return apperrors.Storage("ping", err)
	}
	return nil
}

func (r *slotRepository) Close() error {
	return r.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// mapWriteError turns unique violations on the claim columns into the
// repository sentinels.
func mapWriteError(err error) error {
	switch uniqueColumn(err) {
	case "reference_id":
		return apperrors.New(apperrors.KindConflict, "reference id already in use", repository.ErrDuplicateReference)
	case "idempotency_key":
		return apperrors.New(apperrors.KindValidation, "idempotency key already used for another slot", repository.ErrDuplicateIdempotencyKey)
	}
	return apperrors.Storage("update slot", err)
}

// uniqueColumn reports which claim column a unique violation hit, or "".
func uniqueColumn(err error) string {
	var detail string

	var pqErr *pq.Error
	var liteErr sqlite3.Error
	switch {
	case errors.As(err, &pqErr) && pqErr.Code == "23505":
		detail = pqErr.Constraint + " " + pqErr.Message
	case errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique:
		detail = liteErr.Error()
	default:
		return ""
	}

	switch {
	case strings.Contains(detail, "reference_id"):
		return "reference_id"
	case strings.Contains(detail, "idempotency"):
		return "idempotency_key"
	}
	return ""
}
