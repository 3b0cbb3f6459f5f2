package repository

import "errors"

var (
	// ErrDuplicateReference is wrapped when a claim's reference id collides
	// with an existing booking.
	ErrDuplicateReference = errors.New("reference id already in use")
	// ErrDuplicateIdempotencyKey is wrapped when a claim reuses an idempotency
	// key that belongs to another slot.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already in use")
)
