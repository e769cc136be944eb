package storage

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrMissingFields     = errors.New("appointment draft missing required fields")
)

// Conflict identifies the appointment already holding a slot.
type Conflict struct {
	ID           int64
	CustomerName string
	Service      string
}

// ConflictError is returned when a create or modify would double-book a
// (clinic, date, time slot) that an active appointment already occupies.
type ConflictError struct {
	Existing Conflict
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("slot already booked by appointment %d", e.Existing.ID)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// isUniqueViolation matches the partial unique index guarding active
// appointments per (clinic_id, date, time_slot).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
