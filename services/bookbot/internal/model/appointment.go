package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// CanTransition reports whether a status change follows the appointment
// lifecycle. Cancelled and completed are terminal.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCancelled || to == StatusCompleted
	default:
		return false
	}
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type Appointment struct {
	ID           int64
	ClinicID     int64
	GroupID      string
	RequesterID  string // platform user id; empty when the booking was anonymous
	CustomerName string
	Date         string // calendar date, YYYY-MM-DD
	TimeSlot     string // label, e.g. "10:00-11:00"
	Service      string
	Notes        *string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
