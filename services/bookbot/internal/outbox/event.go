package outbox

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/twclinics/groupbook/services/bookbot/internal/model"
)

// Topic names, one per lifecycle event. The Kafka topic equals the
// event type.
const (
	TopicAppointmentPending   = "appointment.pending.v1"
	TopicAppointmentConfirmed = "appointment.confirmed.v1"
	TopicAppointmentCancelled = "appointment.cancelled.v1"
	TopicAppointmentCompleted = "appointment.completed.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type appointmentPayload struct {
	AppointmentID int64     `json:"appointment_id"`
	ClinicID      int64     `json:"clinic_id"`
	GroupID       string    `json:"group_id"`
	CustomerName  string    `json:"customer_name"`
	Date          string    `json:"date"`
	TimeSlot      string    `json:"time_slot"`
	Service       string    `json:"service"`
	Status        string    `json:"status"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// AppointmentEvent builds the outbox event for an appointment entering
// the given status.
func AppointmentEvent(appt model.Appointment, status model.Status) (Event, error) {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID: appt.ID,
		ClinicID:      appt.ClinicID,
		GroupID:       appt.GroupID,
		CustomerName:  appt.CustomerName,
		Date:          appt.Date,
		TimeSlot:      appt.TimeSlot,
		Service:       appt.Service,
		Status:        string(status),
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	var eventType string
	switch status {
	case model.StatusPending:
		eventType = TopicAppointmentPending
	case model.StatusConfirmed:
		eventType = TopicAppointmentConfirmed
	case model.StatusCancelled:
		eventType = TopicAppointmentCancelled
	case model.StatusCompleted:
		eventType = TopicAppointmentCompleted
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   strconv.FormatInt(appt.ID, 10),
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
