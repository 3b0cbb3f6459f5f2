package model

import (
	"time"
)

type SlotStatus string

const (
	SlotStatusOpen    SlotStatus = "open"
	SlotStatusPending SlotStatus = "pending"
	SlotStatusBooked  SlotStatus = "booked"
)

// Valid reports whether s is one of the known statuses.
func (s SlotStatus) Valid() bool {
	switch s {
	case SlotStatusOpen, SlotStatusPending, SlotStatusBooked:
		return true
	}
	return false
}

// DefaultSlotDuration is used when a slot is created without an end time.
const DefaultSlotDuration = time.Hour

type Slot struct {
	ID             string     `db:"id" json:"id"`
	StartTime      time.Time  `db:"start_time" json:"start_time"`
	EndTime        time.Time  `db:"end_time" json:"end_time"`
	Status         SlotStatus `db:"status" json:"status"`
	PatientName    *string    `db:"patient_name" json:"patient_name,omitempty"`
	PatientPhone   *string    `db:"patient_phone" json:"patient_phone,omitempty"`
	ReferenceID    *string    `db:"reference_id" json:"reference_id,omitempty"`
	IdempotencyKey *string    `db:"idempotency_key" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Public returns a copy without patron fields or booking reference, for
// callers that are not the admin.
func (s *Slot) Public() *Slot {
	c := *s
	c.PatientName = nil
	c.PatientPhone = nil
	c.ReferenceID = nil
	c.IdempotencyKey = nil
	return &c
}

// SlotDraft is the admin input for a new open slot.
type SlotDraft struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SlotPatch carries the fields written by a successful claim.
type SlotPatch struct {
	Status         SlotStatus
	PatientName    string
	PatientPhone   string
	ReferenceID    string
	IdempotencyKey string
}

// SlotFilter selects slots for listing and predicate deletes. Zero values
// mean "no constraint".
type SlotFilter struct {
	Status    SlotStatus
	From      time.Time // start_time >= From
	To        time.Time // start_time < To
	EndBefore time.Time // end_time < EndBefore
}

// Empty reports whether the filter would match every slot.
func (f SlotFilter) Empty() bool {
	return f.Status == "" && f.From.IsZero() && f.To.IsZero() && f.EndBefore.IsZero()
}

// Matches applies the filter to a single slot.
func (f SlotFilter) Matches(s *Slot) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && s.StartTime.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !s.StartTime.Before(f.To) {
		return false
	}
	if !f.EndBefore.IsZero() && !s.EndTime.Before(f.EndBefore) {
		return false
	}
	return true
}

// DeleteResult reports the outcome of one id in a multi-delete.
type DeleteResult struct {
	ID      string
	Deleted bool
	Err     error
}

// Patron identifies the client claiming a slot.
type Patron struct {
	Name  string `json:"name" binding:"required,max=120"`
	Phone string `json:"phone" binding:"required,phone"`
}

// Confirmation is returned by a successful claim.
type Confirmation struct {
	ReferenceID string `json:"reference_id"`
	Slot        *Slot  `json:"slot"`
	// Replayed is set when an idempotent retry matched an earlier claim.
	Replayed bool `json:"replayed,omitempty"`
}

// Request payloads

type CreateSlotRequest struct {
	Start *time.Time  `json:"start"`
	End   *time.Time  `json:"end"`
	Slots []SlotDraft `json:"slots"`
}

type RecurringSlotsRequest struct {
	FromDate        string   `json:"from_date" binding:"required"`
	Weeks           int      `json:"weeks" binding:"required,min=1,max=12"`
	Weekdays        []int    `json:"weekdays" binding:"required,min=1,dive,min=0,max=6"`
	Times           []string `json:"times" binding:"required,min=1"`
	DurationMinutes int      `json:"duration_minutes" binding:"omitempty,min=5,max=480"`
	Timezone        string   `json:"timezone"`
}

type ClearSlotsRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// ClearFailure is one id that could not be deleted.
type ClearFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// ClearResult is the outcome of clearing a set of slots.
type ClearResult struct {
	Deleted []string       `json:"deleted"`
	Failed  []ClearFailure `json:"failed"`
	Count   int            `json:"count"`
}
