package engine

import "github.com/twclinics/groupbook/services/bookbot/internal/model"

// Command is a side effect requested by a transition. The machine never
// performs effects itself; the booking service executes commands in order
// after persisting the new conversation state.
type Command interface {
	isCommand()
}

// CreateAppointment persists the completed draft as a pending appointment.
// The executor runs the conflict check first and owns the failure path.
type CreateAppointment struct {
	Draft model.Draft
}

// SendServiceMenu shows the treatment menu.
type SendServiceMenu struct{}

// SendDateMenu shows the bookable dates.
type SendDateMenu struct{}

// SendTimeMenu shows the time slots for the chosen date, scoped to that
// day's business hours.
type SendTimeMenu struct {
	Date string
}

// SendNamePrompt asks for the customer name; carries the draft so the
// renderer can recap the picks so far.
type SendNamePrompt struct {
	Draft model.Draft
}

// SendNoteChoice asks whether to attach a note.
type SendNoteChoice struct{}

// SendNotePrompt asks for the note text.
type SendNotePrompt struct{}

// SendConfirmation recaps the booking that was just created.
type SendConfirmation struct {
	Draft model.Draft
}

// SendPendingList broadcasts the group's current pending appointments.
type SendPendingList struct{}

// SendContinuePrompt offers "book another or show list" (multiple mode).
type SendContinuePrompt struct{}

func (CreateAppointment) isCommand()  {}
func (SendServiceMenu) isCommand()    {}
func (SendDateMenu) isCommand()       {}
func (SendTimeMenu) isCommand()       {}
func (SendNamePrompt) isCommand()     {}
func (SendNoteChoice) isCommand()     {}
func (SendNotePrompt) isCommand()     {}
func (SendConfirmation) isCommand()   {}
func (SendPendingList) isCommand()    {}
func (SendContinuePrompt) isCommand() {}
