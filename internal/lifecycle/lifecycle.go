// Package lifecycle holds the slot state machine. It performs no I/O; callers
// pass in the current time.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/slot-booking/internal/model"
	apperrors "github.com/jwalitptl/slot-booking/pkg/errors"
	"github.com/jwalitptl/slot-booking/pkg/validator"
)

type Event string

const (
	EventClaim  Event = "claim"
	EventDelete Event = "delete"
)

// Deleted is the pseudo-state reached by EventDelete.
const Deleted model.SlotStatus = ""

const (
	maxNameLength  = 120
	maxPhoneLength = 32
)

// transitions lists, per state and event, the states that may follow.
// A reopen/cancel flow would be an extra entry here.
var transitions = map[model.SlotStatus]map[Event][]model.SlotStatus{
	model.SlotStatusOpen: {
		EventClaim:  {model.SlotStatusPending, model.SlotStatusBooked},
		EventDelete: {Deleted},
	},
	model.SlotStatusPending: {
		EventDelete: {Deleted},
	},
	model.SlotStatusBooked: {
		EventDelete: {Deleted},
	},
}

// Transition checks that ev moves a slot from `from` to `to`.
func Transition(from model.SlotStatus, ev Event, to model.SlotStatus) error {
	for _, allowed := range transitions[from][ev] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("transition %s -(%s)-> %q is not allowed", from, ev, to)
}

// IsClaimedStatus reports whether s is a valid target for a claim.
func IsClaimedStatus(s model.SlotStatus) bool {
	return Transition(model.SlotStatusOpen, EventClaim, s) == nil
}

// CheckClaimable is the fast pre-check before the store's conditional update.
// It is advisory; the conditional update decides races.
func CheckClaimable(slot *model.Slot, now time.Time) error {
	if slot.Status != model.SlotStatusOpen {
		return apperrors.AlreadyTaken(slot.ID)
	}
	if !slot.StartTime.After(now) {
		return apperrors.Expired(slot.ID)
	}
	return nil
}

// ValidateDraft enforces end > start on a new slot.
func ValidateDraft(d model.SlotDraft) error {
	if d.Start.IsZero() {
		return apperrors.Validation("start is required")
	}
	if d.End.IsZero() {
		return apperrors.Validation("end is required")
	}
	if !d.End.After(d.Start) {
		return apperrors.Validationf("end (%s) must be after start (%s)",
			d.End.Format("2006-01-02T15:04:05Z07:00"), d.Start.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}

// NormalizePatron trims the patron fields and validates them.
func NormalizePatron(p model.Patron) (model.Patron, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Phone = strings.TrimSpace(p.Phone)

	if p.Name == "" {
		return p, apperrors.Validation("name is required")
	}
	if p.Phone == "" {
		return p, apperrors.Validation("phone is required")
	}
	if len([]rune(p.Name)) > maxNameLength {
		return p, apperrors.Validationf("name must not exceed %d characters", maxNameLength)
	}
	if len(p.Phone) > maxPhoneLength || !validator.ValidPhone(p.Phone) {
		return p, apperrors.Validation("phone is not a valid phone number")
	}
	return p, nil
}

// ClaimPatch builds the fields written by a claim.
func ClaimPatch(target model.SlotStatus, p model.Patron, referenceID, idempotencyKey string) (model.SlotPatch, error) {
	if err := Transition(model.SlotStatusOpen, EventClaim, target); err != nil {
		return model.SlotPatch{}, err
	}
	return model.SlotPatch{
		Status:         target,
		PatientName:    p.Name,
		PatientPhone:   p.Phone,
		ReferenceID:    referenceID,
		IdempotencyKey: idempotencyKey,
	}, nil
}

// Apply writes patch onto a copy of slot. Stores use it to keep the in-memory
// representation consistent with what they persist.
func Apply(slot model.Slot, patch model.SlotPatch) model.Slot {
	slot.Status = patch.Status
	slot.PatientName = strPtr(patch.PatientName)
	slot.PatientPhone = strPtr(patch.PatientPhone)
	slot.ReferenceID = strPtr(patch.ReferenceID)
	slot.IdempotencyKey = strPtr(patch.IdempotencyKey)
	return slot
}

// IsPast reports whether the slot ended strictly before now.
func IsPast(slot *model.Slot, now time.Time) bool {
	return slot.EndTime.Before(now)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
