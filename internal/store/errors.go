package store

import "errors"

var (
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("not found")
	ErrBusy              = errors.New("busy")
	ErrHasActiveBookings = errors.New("date has active bookings")

	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)
