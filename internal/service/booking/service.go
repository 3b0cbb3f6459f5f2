// Package booking coordinates slot claims. At most one claim on a slot can
// succeed; the store's conditional update decides races.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/slot-booking/internal/lifecycle"
	"github.com/jwalitptl/slot-booking/internal/model"
	"github.com/jwalitptl/slot-booking/internal/repository"
	apperrors "github.com/jwalitptl/slot-booking/pkg/errors"
	"github.com/jwalitptl/slot-booking/pkg/logger"
	"github.com/jwalitptl/slot-booking/pkg/metrics"
)

const (
	DefaultReferencePrefix = "RDV"
	// maxReferenceRetries bounds regeneration after a reference collision.
	maxReferenceRetries = 3
	maxIdempotencyKey   = 128
)

// Claim outcomes, used as metric labels.
const (
	OutcomeSuccess      = "success"
	OutcomeReplayed     = "replayed"
	OutcomeAlreadyTaken = "already_taken"
	OutcomeExpired      = "expired"
	OutcomeInvalid      = "invalid"
	OutcomeNotFound     = "not_found"
	OutcomeError        = "error"
)

// Notifier receives confirmed claims. Dispatch must not block the caller.
type Notifier interface {
	Dispatch(ctx context.Context, conf model.Confirmation)
}

type Config struct {
	// ClaimStatus is the status a claimed slot moves to: booked or pending.
	ClaimStatus     model.SlotStatus
	ReferencePrefix string
}

type Service struct {
	repo         repository.SlotRepository
	notifier     Notifier
	log          *logger.Logger
	metrics      *metrics.Metrics
	claimStatus  model.SlotStatus
	now          func() time.Time
	newReference func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithReferenceGenerator(gen func() string) Option {
	return func(s *Service) { s.newReference = gen }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo repository.SlotRepository, notifier Notifier, log *logger.Logger, cfg Config, opts ...Option) (*Service, error) {
	if cfg.ClaimStatus == "" {
		cfg.ClaimStatus = model.SlotStatusBooked
	}
	if !lifecycle.IsClaimedStatus(cfg.ClaimStatus) {
		return nil, fmt.Errorf("invalid claim status %q", cfg.ClaimStatus)
	}
	if cfg.ReferencePrefix == "" {
		cfg.ReferencePrefix = DefaultReferencePrefix
	}
	if log == nil {
		log = logger.Nop()
	}

	prefix := cfg.ReferencePrefix
	s := &Service{
		repo:         repo,
		notifier:     notifier,
		log:          log.With("booking"),
		claimStatus:  cfg.ClaimStatus,
		now:          time.Now,
		newReference: func() string { return NewReference(prefix) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewReference returns prefix-XXXXXXXX with eight uppercase hex characters
// taken from a random UUID.
func NewReference(prefix string) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return prefix + "-" + strings.ToUpper(hex[:8])
}

// AttemptClaim books slotID for patron. A non-empty idempotencyKey makes the
// call safe to retry: a repeat with the same key returns the original
// confirmation instead of already_taken.
func (s *Service) AttemptClaim(ctx context.Context, slotID string, patron model.Patron, idempotencyKey string) (conf *model.Confirmation, err error) {
	defer func() { s.record(slotID, conf, err) }()

	patron, err = lifecycle.NormalizePatron(patron)
	if err != nil {
		return nil, err
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if len(idempotencyKey) > maxIdempotencyKey {
		return nil, apperrors.Validationf("idempotency key must not exceed %d characters", maxIdempotencyKey)
	}

	slot, err := s.repo.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if replay := replayOf(slot, idempotencyKey, patron); replay != nil {
		return replay, nil
	}
	if err := lifecycle.CheckClaimable(slot, s.now()); err != nil {
		return nil, err
	}

	for attempt := 0; attempt <= maxReferenceRetries; attempt++ {
		ref := s.newReference()
		patch, err := lifecycle.ClaimPatch(s.claimStatus, patron, ref, idempotencyKey)
		if err != nil {
			return nil, apperrors.Internal(err)
		}

		claimed, err := s.repo.ConditionalUpdate(ctx, slotID, model.SlotStatusOpen, patch)
		switch {
		case err == nil:
			conf = &model.Confirmation{ReferenceID: ref, Slot: claimed}
			if s.notifier != nil {
				s.notifier.Dispatch(ctx, *conf)
			}
			return conf, nil
		case errors.Is(err, repository.ErrDuplicateReference):
			s.log.Warn("reference collision, regenerating", "slot_id", slotID, "reference_id", ref, "attempt", attempt+1)
			continue
		case apperrors.IsKind(err, apperrors.KindConflict):
			return s.resolveConflict(ctx, slotID, idempotencyKey, patron)
		default:
			return nil, err
		}
	}

	return nil, apperrors.Internal(fmt.Errorf("no unique reference after %d attempts", maxReferenceRetries+1))
}

// resolveConflict runs after losing the conditional update. The loser either
// retried its own earlier claim or lost the race.
func (s *Service) resolveConflict(ctx context.Context, slotID, idempotencyKey string, patron model.Patron) (*model.Confirmation, error) {
	slot, err := s.repo.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if replay := replayOf(slot, idempotencyKey, patron); replay != nil {
		return replay, nil
	}
	return nil, apperrors.AlreadyTaken(slotID)
}

// replayOf returns the stored confirmation when the same patron retries with
// the same key. A matching key from anyone else is not a replay.
func replayOf(slot *model.Slot, idempotencyKey string, patron model.Patron) *model.Confirmation {
	if idempotencyKey == "" || slot.IdempotencyKey == nil || slot.ReferenceID == nil {
		return nil
	}
	if *slot.IdempotencyKey != idempotencyKey || slot.Status == model.SlotStatusOpen {
		return nil
	}
	if slot.PatientName == nil || *slot.PatientName != patron.Name ||
		slot.PatientPhone == nil || *slot.PatientPhone != patron.Phone {
		return nil
	}
	return &model.Confirmation{ReferenceID: *slot.ReferenceID, Slot: slot, Replayed: true}
}

func outcomeOf(conf *model.Confirmation, err error) string {
	if err == nil {
		if conf != nil && conf.Replayed {
			return OutcomeReplayed
		}
		return OutcomeSuccess
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindAlreadyTaken:
		return OutcomeAlreadyTaken
	case apperrors.KindExpired:
		return OutcomeExpired
	case apperrors.KindValidation:
		return OutcomeInvalid
	case apperrors.KindNotFound:
		return OutcomeNotFound
	}
	return OutcomeError
}

func (s *Service) record(slotID string, conf *model.Confirmation, err error) {
	outcome := outcomeOf(conf, err)
	if s.metrics != nil {
		s.metrics.ClaimAttempts.WithLabelValues(outcome).Inc()
	}

	switch outcome {
	case OutcomeSuccess, OutcomeReplayed:
		s.log.Info("slot claimed", "slot_id", slotID, "reference_id", conf.ReferenceID, "outcome", outcome)
	case OutcomeError:
		s.log.Error(err, "claim failed", "slot_id", slotID)
	default:
		s.log.Debug("claim rejected", "slot_id", slotID, "outcome", outcome)
	}
}
