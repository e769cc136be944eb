package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twclinics/groupbook/services/bookbot/internal/authz"
	"github.com/twclinics/groupbook/services/bookbot/internal/engine"
	"github.com/twclinics/groupbook/services/bookbot/internal/model"
	"github.com/twclinics/groupbook/services/bookbot/internal/notify"
	"github.com/twclinics/groupbook/services/bookbot/internal/storage"
)

// StateStore persists per-group conversation state.
type StateStore interface {
	Get(ctx context.Context, groupID string, clinicID int64) (model.GroupState, error)
	Upsert(ctx context.Context, st model.GroupState) error
}

// AppointmentStore is the slice of the appointment repository the
// orchestrator needs.
type AppointmentStore interface {
	Create(ctx context.Context, appt *model.Appointment) (int64, error)
	GetByID(ctx context.Context, id int64) (model.Appointment, error)
	TransitionStatus(ctx context.Context, id int64, to model.Status) (model.Appointment, error)
	Delete(ctx context.Context, id int64) (model.Appointment, error)
	ListPendingByGroup(ctx context.Context, groupID string) ([]model.Appointment, error)
	ListUpcomingByRequester(ctx context.Context, requesterID, fromDate string) ([]model.Appointment, error)
	CancelByRequester(ctx context.Context, id int64, requesterID string) (bool, error)
	ModifyByRequester(ctx context.Context, id int64, requesterID string, upd storage.FieldUpdate) (bool, error)
	CheckConflict(ctx context.Context, clinicID int64, date, timeSlot string, excludeID int64) (*storage.Conflict, error)
}

// Locker serializes the read-decide-write critical section per group.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Service drives chat events through the state machine and executes the
// resulting commands: store writes first, then message pushes. Gateway
// failures are logged and swallowed — a lost message never rolls back
// booking state.
type Service struct {
	logger   *slog.Logger
	states   StateStore
	appts    AppointmentStore
	gate     authz.Gate
	gateway  notify.Gateway
	locker   Locker
	services []string
	now      func() time.Time
}

type ServiceConfig struct {
	// Services overrides the treatment catalog; nil keeps DefaultServices.
	Services []string
	// Now overrides the clock for tests.
	Now func() time.Time
}

func NewService(logger *slog.Logger, states StateStore, appts AppointmentStore, gate authz.Gate, gateway notify.Gateway, locker Locker, cfg ServiceConfig) *Service {
	services := cfg.Services
	if len(services) == 0 {
		services = DefaultServices
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logger:   logger,
		states:   states,
		appts:    appts,
		gate:     gate,
		gateway:  gateway,
		locker:   locker,
		services: services,
		now:      now,
	}
}

// HandleEvent processes one inbound chat event for a group. Events from
// unauthorized groups are dropped. The whole read-decide-write sequence
// runs under the group's lock so duplicate webhook deliveries cannot
// race on the draft.
func (s *Service) HandleEvent(ctx context.Context, clinicID int64, groupID, requesterID string, ev engine.Event) error {
	ok, err := s.gate.IsAuthorized(ctx, clinicID, groupID)
	if err != nil {
		return fmt.Errorf("authorization check: %w", err)
	}
	if !ok {
		s.logger.Warn("event from unauthorized group dropped", "clinic_id", clinicID, "group_id", groupID)
		return nil
	}

	release, err := s.locker.Acquire(ctx, fmt.Sprintf("group:%d:%s", clinicID, groupID))
	if err != nil {
		return fmt.Errorf("group lock: %w", err)
	}
	defer release()

	st, err := s.states.Get(ctx, groupID, clinicID)
	if err != nil {
		return fmt.Errorf("load group state: %w", err)
	}

	if msg, ok := s.rejectEvent(st, ev); !ok {
		// Invalid menu input: keep the phase, nudge the user.
		s.push(ctx, groupID, msg)
		return nil
	}

	d := engine.Decide(st, ev)
	if !d.Changed {
		return nil
	}

	next := st
	next.Mode = d.Mode
	next.Phase = d.Phase
	next.Draft = d.Draft

	var messages []notify.Message
	for _, cmd := range d.Commands {
		switch c := cmd.(type) {
		case engine.CreateAppointment:
			id, err := s.createFromDraft(ctx, clinicID, groupID, requesterID, c.Draft)
			if err != nil {
				var ce *storage.ConflictError
				if errors.As(err, &ce) {
					// Roll the conversation back to time selection, keeping
					// service and date, and stop executing this decision.
					next.Phase = model.PhaseSelectingTime
					next.Draft = model.Draft{Service: c.Draft.Service, Date: c.Draft.Date}
					if err := s.states.Upsert(ctx, next); err != nil {
						return fmt.Errorf("save group state: %w", err)
					}
					s.push(ctx, groupID, notify.Message{Text: conflictText(ce.Existing)})
					s.push(ctx, groupID, notify.Message{Text: timeMenuText(c.Draft.Date, s.slotsFor(c.Draft.Date))})
					return nil
				}
				return fmt.Errorf("create appointment: %w", err)
			}
			messages = append(messages, notify.Message{Text: confirmationText(c.Draft, id)})
		case engine.SendServiceMenu:
			messages = append(messages, notify.Message{Text: serviceMenuText(s.services)})
		case engine.SendDateMenu:
			messages = append(messages, notify.Message{Text: dateMenuText(BookableDates(s.now()))})
		case engine.SendTimeMenu:
			messages = append(messages, notify.Message{Text: timeMenuText(c.Date, s.slotsFor(c.Date))})
		case engine.SendNamePrompt:
			messages = append(messages, notify.Message{Text: namePromptText(c.Draft)})
		case engine.SendNoteChoice:
			messages = append(messages, notify.Message{Text: noteChoiceText()})
		case engine.SendNotePrompt:
			messages = append(messages, notify.Message{Text: notePromptText()})
		case engine.SendConfirmation:
			// Rendered by the CreateAppointment arm, which knows the id.
		case engine.SendPendingList:
			pending, err := s.appts.ListPendingByGroup(ctx, groupID)
			if err != nil {
				return fmt.Errorf("list pending: %w", err)
			}
			messages = append(messages, notify.Message{Text: pendingListText(pending)})
		case engine.SendContinuePrompt:
			messages = append(messages, notify.Message{Text: continuePromptText()})
		}
	}

	if err := s.states.Upsert(ctx, next); err != nil {
		return fmt.Errorf("save group state: %w", err)
	}

	for _, msg := range messages {
		s.push(ctx, groupID, msg)
	}
	return nil
}

// rejectEvent pre-validates menu picks against the catalog and schedule.
// A false return means the event must not reach the machine; the message
// is the nudge to send instead.
func (s *Service) rejectEvent(st model.GroupState, ev engine.Event) (notify.Message, bool) {
	switch e := ev.(type) {
	case engine.PickService:
		if st.Phase != model.PhaseSelectingService {
			break
		}
		for _, svc := range s.services {
			if svc == e.Name {
				return notify.Message{}, true
			}
		}
		return notify.Message{Text: invalidServiceText()}, false
	case engine.PickDate:
		if st.Phase != model.PhaseSelectingDate {
			break
		}
		if !ValidDate(e.Date, s.now()) {
			return notify.Message{Text: invalidDateText()}, false
		}
	case engine.PickTime:
		if st.Phase != model.PhaseSelectingTime {
			break
		}
		if !ValidSlot(st.Draft.Date, e.Slot) {
			return notify.Message{Text: invalidSlotText()}, false
		}
	}
	return notify.Message{}, true
}

func (s *Service) createFromDraft(ctx context.Context, clinicID int64, groupID, requesterID string, d model.Draft) (int64, error) {
	appt := &model.Appointment{
		ClinicID:     clinicID,
		GroupID:      groupID,
		RequesterID:  requesterID,
		CustomerName: d.Name,
		Date:         d.Date,
		TimeSlot:     d.Time,
		Service:      d.Service,
		Notes:        d.Note,
	}
	return s.appts.Create(ctx, appt)
}

func (s *Service) slotsFor(date string) []string {
	slots, err := SlotsForDate(date)
	if err != nil {
		return nil
	}
	return slots
}

// push delivers one message, logging failures without propagating them.
func (s *Service) push(ctx context.Context, recipientID string, msg notify.Message) {
	if err := s.gateway.Push(ctx, recipientID, msg); err != nil {
		s.logger.Error("message push failed", "recipient", recipientID, "provider", s.gateway.ProviderID(), "err", err)
	}
}

// StaffConfirm moves an appointment to confirmed, notifies the original
// requester, and re-broadcasts the group's pending list.
func (s *Service) StaffConfirm(ctx context.Context, id int64) (model.Appointment, error) {
	appt, err := s.appts.TransitionStatus(ctx, id, model.StatusConfirmed)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.RequesterID != "" {
		s.push(ctx, appt.RequesterID, notify.Message{Text: staffConfirmedText(appt)})
	}
	s.broadcastPending(ctx, appt.GroupID)
	return appt, nil
}

// StaffCancel moves an appointment to cancelled and re-broadcasts the
// pending list.
func (s *Service) StaffCancel(ctx context.Context, id int64) (model.Appointment, error) {
	appt, err := s.appts.TransitionStatus(ctx, id, model.StatusCancelled)
	if err != nil {
		return model.Appointment{}, err
	}
	s.broadcastPending(ctx, appt.GroupID)
	return appt, nil
}

// StaffComplete marks a confirmed appointment as completed.
func (s *Service) StaffComplete(ctx context.Context, id int64) (model.Appointment, error) {
	appt, err := s.appts.TransitionStatus(ctx, id, model.StatusCompleted)
	if err != nil {
		return model.Appointment{}, err
	}
	s.broadcastPending(ctx, appt.GroupID)
	return appt, nil
}

// StaffDelete removes the record outright (admin cleanup, not a
// lifecycle transition).
func (s *Service) StaffDelete(ctx context.Context, id int64) error {
	appt, err := s.appts.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.broadcastPending(ctx, appt.GroupID)
	return nil
}

func (s *Service) broadcastPending(ctx context.Context, groupID string) {
	if groupID == "" {
		return
	}
	pending, err := s.appts.ListPendingByGroup(ctx, groupID)
	if err != nil {
		s.logger.Error("pending list recompute failed", "group_id", groupID, "err", err)
		return
	}
	s.push(ctx, groupID, notify.Message{Text: pendingListText(pending)})
}

// CancelMine cancels the requester's own appointment; false means no
// active appointment of theirs matched.
func (s *Service) CancelMine(ctx context.Context, id int64, requesterID string) (bool, error) {
	return s.appts.CancelByRequester(ctx, id, requesterID)
}

// ModifyMine applies a partial update to the requester's own
// appointment; false covers ownership mismatch and slot conflicts alike.
func (s *Service) ModifyMine(ctx context.Context, id int64, requesterID string, upd storage.FieldUpdate) (bool, error) {
	if upd.Date != "" && !ValidDate(upd.Date, s.now()) {
		return false, nil
	}
	if upd.Time != "" {
		date := upd.Date
		if date == "" {
			appt, err := s.appts.GetByID(ctx, id)
			if err != nil {
				return false, err
			}
			date = appt.Date
		}
		if !ValidSlot(date, upd.Time) {
			return false, nil
		}
	}
	return s.appts.ModifyByRequester(ctx, id, requesterID, upd)
}

// ListMine returns the requester's upcoming active appointments.
func (s *Service) ListMine(ctx context.Context, requesterID string) ([]model.Appointment, error) {
	return s.appts.ListUpcomingByRequester(ctx, requesterID, s.now().UTC().Format("2006-01-02"))
}
