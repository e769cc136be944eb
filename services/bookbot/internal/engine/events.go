package engine

import "github.com/twclinics/groupbook/services/bookbot/internal/model"

// Event is an inbound conversation event. The transport layer maps raw chat
// payloads (text messages, button postbacks) onto these variants; the
// machine switches over them exhaustively rather than on string tags.
type Event interface {
	isEvent()
}

// StartBooking begins a fresh booking cycle, abandoning any in-flight draft.
type StartBooking struct {
	Mode model.BookingMode
}

// PickService selects the treatment from the service menu.
type PickService struct {
	Name string
}

// PickDate selects a calendar date (YYYY-MM-DD).
type PickDate struct {
	Date string
}

// PickTime selects a time-slot label for the chosen date.
type PickTime struct {
	Slot string
}

// FreeText is a plain text message; only meaningful while the machine is
// waiting for a name or a note.
type FreeText struct {
	Content string
}

// ChooseNote answers the "add a note?" prompt.
type ChooseNote struct {
	Skip bool
}

// ShowList requests the group's pending-appointments view.
type ShowList struct{}

// ContinueBooking starts another booking in the same mode after one
// completed (multiple-mode follow-up).
type ContinueBooking struct{}

func (StartBooking) isEvent()    {}
func (PickService) isEvent()     {}
func (PickDate) isEvent()        {}
func (PickTime) isEvent()        {}
func (FreeText) isEvent()        {}
func (ChooseNote) isEvent()      {}
func (ShowList) isEvent()        {}
func (ContinueBooking) isEvent() {}
