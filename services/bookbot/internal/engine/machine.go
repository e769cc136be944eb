package engine

import (
	"strings"

	"github.com/twclinics/groupbook/services/bookbot/internal/model"
)

// Decision is the outcome of feeding one event to the machine: the next
// conversation state plus the side-effect commands to execute. A decision
// with Changed=false is a silent no-op (event not valid for the phase).
type Decision struct {
	Phase    model.Phase
	Mode     model.BookingMode
	Draft    model.Draft
	Commands []Command
	Changed  bool
}

// Decide computes the transition for (current state, event). It is pure:
// no store access, no clock, no I/O. Unknown (phase, event) pairs are
// ignored without advancing the phase.
func Decide(st model.GroupState, ev Event) Decision {
	// StartBooking and ShowList are accepted in every phase. A re-entrant
	// StartBooking abandons the in-flight draft and begins clean.
	switch e := ev.(type) {
	case StartBooking:
		return Decision{
			Phase:    model.PhaseSelectingService,
			Mode:     e.Mode,
			Draft:    model.Draft{},
			Commands: []Command{SendServiceMenu{}},
			Changed:  true,
		}
	case ShowList:
		return Decision{
			Phase:    st.Phase,
			Mode:     st.Mode,
			Draft:    st.Draft,
			Commands: []Command{SendPendingList{}},
			Changed:  true,
		}
	}

	switch st.Phase {
	case model.PhaseIdle:
		if _, ok := ev.(ContinueBooking); ok {
			return Decision{
				Phase:    model.PhaseSelectingService,
				Mode:     st.Mode,
				Draft:    model.Draft{},
				Commands: []Command{SendServiceMenu{}},
				Changed:  true,
			}
		}

	case model.PhaseSelectingService:
		if e, ok := ev.(PickService); ok {
			draft := st.Draft
			draft.Service = e.Name
			return Decision{
				Phase:    model.PhaseSelectingDate,
				Mode:     st.Mode,
				Draft:    draft,
				Commands: []Command{SendDateMenu{}},
				Changed:  true,
			}
		}

	case model.PhaseSelectingDate:
		if e, ok := ev.(PickDate); ok {
			draft := st.Draft
			draft.Date = e.Date
			return Decision{
				Phase:    model.PhaseSelectingTime,
				Mode:     st.Mode,
				Draft:    draft,
				Commands: []Command{SendTimeMenu{Date: e.Date}},
				Changed:  true,
			}
		}

	case model.PhaseSelectingTime:
		if e, ok := ev.(PickTime); ok {
			draft := st.Draft
			draft.Time = e.Slot
			return Decision{
				Phase:    model.PhaseWaitingName,
				Mode:     st.Mode,
				Draft:    draft,
				Commands: []Command{SendNamePrompt{Draft: draft}},
				Changed:  true,
			}
		}

	case model.PhaseWaitingName:
		if e, ok := ev.(FreeText); ok {
			name := strings.TrimSpace(e.Content)
			if name == "" {
				// Stay put and re-issue the prompt rather than storing an
				// empty customer name.
				return Decision{
					Phase:    model.PhaseWaitingName,
					Mode:     st.Mode,
					Draft:    st.Draft,
					Commands: []Command{SendNamePrompt{Draft: st.Draft}},
					Changed:  true,
				}
			}
			draft := st.Draft
			draft.Name = name
			return Decision{
				Phase:    model.PhaseWaitingNoteChoice,
				Mode:     st.Mode,
				Draft:    draft,
				Commands: []Command{SendNoteChoice{}},
				Changed:  true,
			}
		}

	case model.PhaseWaitingNoteChoice:
		if e, ok := ev.(ChooseNote); ok {
			if !e.Skip {
				return Decision{
					Phase:    model.PhaseWaitingNoteText,
					Mode:     st.Mode,
					Draft:    st.Draft,
					Commands: []Command{SendNotePrompt{}},
					Changed:  true,
				}
			}
			return finishBooking(st, st.Draft)
		}

	case model.PhaseWaitingNoteText:
		if e, ok := ev.(FreeText); ok {
			draft := st.Draft
			note := strings.TrimSpace(e.Content)
			draft.Note = &note
			return finishBooking(st, draft)
		}
	}

	// Silent no-op: keep state, emit nothing.
	return Decision{Phase: st.Phase, Mode: st.Mode, Draft: st.Draft}
}

// finishBooking emits the create + confirmation commands and returns the
// conversation to idle with a cleared draft. Single mode broadcasts the
// pending list; multiple mode offers another round.
func finishBooking(st model.GroupState, draft model.Draft) Decision {
	cmds := []Command{
		CreateAppointment{Draft: draft},
		SendConfirmation{Draft: draft},
	}
	if st.Mode == model.ModeMultiple {
		cmds = append(cmds, SendContinuePrompt{})
	} else {
		cmds = append(cmds, SendPendingList{})
	}
	return Decision{
		Phase:    model.PhaseIdle,
		Mode:     st.Mode,
		Draft:    model.Draft{},
		Commands: cmds,
		Changed:  true,
	}
}
