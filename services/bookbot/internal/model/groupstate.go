package model

import "time"

// Phase is the conversation's position in the booking flow.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseSelectingService  Phase = "selecting_service"
	PhaseSelectingDate     Phase = "selecting_date"
	PhaseSelectingTime     Phase = "selecting_time"
	PhaseWaitingName       Phase = "waiting_name"
	PhaseWaitingNoteChoice Phase = "waiting_note_choice"
	PhaseWaitingNoteText   Phase = "waiting_note_text"
)

type BookingMode string

const (
	ModeSingle   BookingMode = "single"
	ModeMultiple BookingMode = "multiple"
)

// Draft holds the partially collected booking fields. Fields are filled in
// flow order; a zero value means "not collected yet".
type Draft struct {
	Service string
	Date    string
	Time    string
	Name    string
	Note    *string
}

func (d Draft) Empty() bool {
	return d.Service == "" && d.Date == "" && d.Time == "" && d.Name == "" && d.Note == nil
}

// GroupState is one conversation's durable state, keyed by (GroupID, ClinicID).
type GroupState struct {
	GroupID   string
	ClinicID  int64
	Mode      BookingMode
	Phase     Phase
	Draft     Draft
	UpdatedAt time.Time
}
