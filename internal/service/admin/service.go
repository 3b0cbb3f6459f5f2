package admin

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jwalitptl/slot-booking/internal/model"
	"github.com/jwalitptl/slot-booking/internal/repository"
	apperrors "github.com/jwalitptl/slot-booking/pkg/errors"
	"github.com/jwalitptl/slot-booking/pkg/logger"
	"github.com/jwalitptl/slot-booking/pkg/metrics"
)

// Recurring template limits
const (
	MaxRecurringWeeks = 12
	MaxRecurringSlots = 500
)

type Service struct {
	repo     repository.SlotRepository
	log      *logger.Logger
	metrics  *metrics.Metrics
	location *time.Location
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLocation sets the practice timezone used by recurring templates that
// do not name one.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.location = loc }
}

func NewService(repo repository.SlotRepository, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	s := &Service{
		repo:     repo,
		log:      log.With("admin"),
		location: time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSingle creates one open slot. A nil end means start plus the default
// slot duration.
func (s *Service) CreateSingle(ctx context.Context, start time.Time, end *time.Time) (*model.Slot, error) {
	if start.IsZero() {
		return nil, apperrors.Validation("start is required")
	}
	draft := model.SlotDraft{Start: start, End: start.Add(model.DefaultSlotDuration)}
	if end != nil {
		draft.End = *end
	}

	slot, err := s.repo.Create(ctx, draft)
	if err != nil {
		return nil, err
	}
	s.created(1)
	s.log.Info("slot created", "slot_id", slot.ID, "start_time", slot.StartTime)
	return slot, nil
}

// CreateBatch creates all drafts or none.
func (s *Service) CreateBatch(ctx context.Context, drafts []model.SlotDraft) ([]*model.Slot, error) {
	slots, err := s.repo.CreateBatch(ctx, drafts)
	if err != nil {
		return nil, err
	}
	s.created(len(slots))
	s.log.Info("slots created", "count", len(slots))
	return slots, nil
}

// ExpandRecurring turns a weekly template into drafts ordered by start time.
func (s *Service) ExpandRecurring(req model.RecurringSlotsRequest) ([]model.SlotDraft, error) {
	loc := s.location
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			return nil, apperrors.Validationf("unknown timezone %q", req.Timezone)
		}
		loc = l
	}

	from, err := time.ParseInLocation("2006-01-02", req.FromDate, loc)
	if err != nil {
		return nil, apperrors.Validationf("from_date must be YYYY-MM-DD: %s", req.FromDate)
	}
	if req.Weeks < 1 || req.Weeks > MaxRecurringWeeks {
		return nil, apperrors.Validationf("weeks must be between 1 and %d", MaxRecurringWeeks)
	}
	if len(req.Weekdays) == 0 {
		return nil, apperrors.Validation("at least one weekday is required")
	}
	if len(req.Times) == 0 {
		return nil, apperrors.Validation("at least one time is required")
	}

	days := make(map[time.Weekday]bool, len(req.Weekdays))
	for _, d := range req.Weekdays {
		if d < 0 || d > 6 {
			return nil, apperrors.Validationf("weekday %d out of range 0-6", d)
		}
		days[time.Weekday(d)] = true
	}

	type clock struct{ hour, minute int }
	clocks := make([]clock, 0, len(req.Times))
	for _, t := range req.Times {
		parsed, err := time.Parse("15:04", strings.TrimSpace(t))
		if err != nil {
			return nil, apperrors.Validationf("time must be HH:MM: %s", t)
		}
		clocks = append(clocks, clock{parsed.Hour(), parsed.Minute()})
	}

	duration := model.DefaultSlotDuration
	if req.DurationMinutes > 0 {
		duration = time.Duration(req.DurationMinutes) * time.Minute
	}

	seen := make(map[int64]bool)
	var drafts []model.SlotDraft
	for offset := 0; offset < req.Weeks*7; offset++ {
		day := from.AddDate(0, 0, offset)
		if !days[day.Weekday()] {
			continue
		}
		for _, c := range clocks {
			start := time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.minute, 0, 0, loc)
			if seen[start.Unix()] {
				continue
			}
			seen[start.Unix()] = true
			drafts = append(drafts, model.SlotDraft{Start: start, End: start.Add(duration)})
			if len(drafts) > MaxRecurringSlots {
				return nil, apperrors.Validationf("template expands to more than %d slots", MaxRecurringSlots)
			}
		}
	}
	if len(drafts) == 0 {
		return nil, apperrors.Validation("template produced no slots")
	}

	sort.Slice(drafts, func(i, j int) bool { return drafts[i].Start.Before(drafts[j].Start) })
	return drafts, nil
}

// CreateRecurring expands a weekly template and creates it as one batch.
func (s *Service) CreateRecurring(ctx context.Context, req model.RecurringSlotsRequest) ([]*model.Slot, error) {
	drafts, err := s.ExpandRecurring(req)
	if err != nil {
		return nil, err
	}
	return s.CreateBatch(ctx, drafts)
}

// DeleteSlot removes a slot in any status. Deleting an unknown id succeeds.
func (s *Service) DeleteSlot(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperrors.Validation("slot id is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.SlotsDeleted.Inc()
	}
	s.log.Info("slot deleted", "slot_id", id)
	return nil
}

// ClearVisibleRange deletes every id independently. Blank and repeated ids
// are dropped first; one failure never stops the rest.
func (s *Service) ClearVisibleRange(ctx context.Context, ids []string) model.ClearResult {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}

	result := model.ClearResult{Deleted: []string{}, Failed: []model.ClearFailure{}}
	if len(unique) == 0 {
		return result
	}

	for _, r := range s.repo.DeleteMany(ctx, unique) {
		if r.Err != nil || !r.Deleted {
			msg := "not deleted"
			if r.Err != nil {
				msg = r.Err.Error()
			}
			result.Failed = append(result.Failed, model.ClearFailure{ID: r.ID, Error: msg})
			continue
		}
		result.Deleted = append(result.Deleted, r.ID)
	}
	result.Count = len(result.Deleted)

	if s.metrics != nil {
		s.metrics.SlotsDeleted.Add(float64(result.Count))
	}
	if len(result.Failed) > 0 {
		s.log.Warn("clear finished with failures", "deleted", result.Count, "failed", len(result.Failed))
	} else {
		s.log.Info("slots cleared", "deleted", result.Count)
	}
	return result
}

// PurgePast deletes every slot whose end is before now, whatever its status.
func (s *Service) PurgePast(ctx context.Context) (int64, error) {
	now := s.now()
	n, err := s.repo.DeleteWhere(ctx, model.SlotFilter{EndBefore: now})
	if err != nil {
		return 0, fmt.Errorf("failed to purge past slots: %w", err)
	}
	if s.metrics != nil {
		s.metrics.PurgeRemoved.Add(float64(n))
	}
	s.log.Info("past slots purged", "removed", n, "before", now.UTC())
	return n, nil
}

func (s *Service) created(n int) {
	if s.metrics != nil {
		s.metrics.SlotsCreated.Add(float64(n))
	}
}
