package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/twclinics/groupbook/services/bookbot/internal/engine"
	"github.com/twclinics/groupbook/services/bookbot/internal/model"
	"github.com/twclinics/groupbook/services/bookbot/internal/storage"
)

// Bot is the slice of the booking orchestrator the chat endpoints use.
type Bot interface {
	HandleEvent(ctx context.Context, clinicID int64, groupID, requesterID string, ev engine.Event) error
	CancelMine(ctx context.Context, id int64, requesterID string) (bool, error)
	ModifyMine(ctx context.Context, id int64, requesterID string, upd storage.FieldUpdate) (bool, error)
	ListMine(ctx context.Context, requesterID string) ([]model.Appointment, error)
}

// EventsHandler receives structured chat events from the messaging
// platform adapter and customer self-service calls.
type EventsHandler struct {
	bot    Bot
	logger *slog.Logger
}

func NewEventsHandler(bot Bot, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bot: bot, logger: logger}
}

type chatEventRequest struct {
	ClinicID    int64  `json:"clinic_id"`
	GroupID     string `json:"group_id"`
	RequesterID string `json:"requester_id"`
	Event       struct {
		Type    string `json:"type"`
		Mode    string `json:"mode"`
		Service string `json:"service"`
		Date    string `json:"date"`
		Slot    string `json:"slot"`
		Text    string `json:"text"`
		Skip    bool   `json:"skip"`
	} `json:"event"`
}

func parseEvent(req chatEventRequest) (engine.Event, error) {
	switch req.Event.Type {
	case "start_booking":
		mode := model.ModeSingle
		if req.Event.Mode == string(model.ModeMultiple) {
			mode = model.ModeMultiple
		}
		return engine.StartBooking{Mode: mode}, nil
	case "pick_service":
		return engine.PickService{Name: req.Event.Service}, nil
	case "pick_date":
		return engine.PickDate{Date: req.Event.Date}, nil
	case "pick_time":
		return engine.PickTime{Slot: req.Event.Slot}, nil
	case "free_text":
		return engine.FreeText{Content: req.Event.Text}, nil
	case "choose_note":
		return engine.ChooseNote{Skip: req.Event.Skip}, nil
	case "show_list":
		return engine.ShowList{}, nil
	case "continue_booking":
		return engine.ContinueBooking{}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", req.Event.Type)
}

func (h *EventsHandler) Receive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.GroupID = strings.TrimSpace(req.GroupID)
	if req.ClinicID <= 0 || req.GroupID == "" {
		http.Error(w, "clinic_id and group_id required", http.StatusBadRequest)
		return
	}

	ev, err := parseEvent(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.bot.HandleEvent(r.Context(), req.ClinicID, req.GroupID, strings.TrimSpace(req.RequesterID), ev); err != nil {
		h.logger.Error("event handling failed", "group_id", req.GroupID, "err", err)
		http.Error(w, "event handling failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type customerCancelRequest struct {
	AppointmentID int64  `json:"appointment_id"`
	RequesterID   string `json:"requester_id"`
}

func (h *EventsHandler) CancelMine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req customerCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.AppointmentID <= 0 || strings.TrimSpace(req.RequesterID) == "" {
		http.Error(w, "appointment_id and requester_id required", http.StatusBadRequest)
		return
	}

	ok, err := h.bot.CancelMine(r.Context(), req.AppointmentID, strings.TrimSpace(req.RequesterID))
	if err != nil {
		h.logger.Error("customer cancel failed", "appointment_id", req.AppointmentID, "err", err)
		http.Error(w, "cancel failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type customerModifyRequest struct {
	AppointmentID int64  `json:"appointment_id"`
	RequesterID   string `json:"requester_id"`
	Date          string `json:"date,omitempty"`
	Time          string `json:"time,omitempty"`
	Service       string `json:"service,omitempty"`
}

func (h *EventsHandler) ModifyMine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req customerModifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.AppointmentID <= 0 || strings.TrimSpace(req.RequesterID) == "" {
		http.Error(w, "appointment_id and requester_id required", http.StatusBadRequest)
		return
	}
	upd := storage.FieldUpdate{
		Date:    strings.TrimSpace(req.Date),
		Time:    strings.TrimSpace(req.Time),
		Service: strings.TrimSpace(req.Service),
	}
	if upd.Date == "" && upd.Time == "" && upd.Service == "" {
		http.Error(w, "nothing to modify", http.StatusBadRequest)
		return
	}

	ok, err := h.bot.ModifyMine(r.Context(), req.AppointmentID, strings.TrimSpace(req.RequesterID), upd)
	if err != nil {
		h.logger.Error("customer modify failed", "appointment_id", req.AppointmentID, "err", err)
		http.Error(w, "modify failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		// Ownership mismatch, unknown id, and slot conflicts all land here
		// so the response leaks nothing about other customers' bookings.
		http.Error(w, "modification rejected", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type appointmentItem struct {
	ID           int64  `json:"id"`
	CustomerName string `json:"customer_name"`
	Date         string `json:"date"`
	TimeSlot     string `json:"time_slot"`
	Service      string `json:"service"`
	Notes        string `json:"notes,omitempty"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

func toItem(a model.Appointment) appointmentItem {
	item := appointmentItem{
		ID:           a.ID,
		CustomerName: a.CustomerName,
		Date:         a.Date,
		TimeSlot:     a.TimeSlot,
		Service:      a.Service,
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
	if a.Notes != nil {
		item.Notes = *a.Notes
	}
	return item
}

func (h *EventsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requesterID := strings.TrimSpace(r.URL.Query().Get("requester_id"))
	if requesterID == "" {
		http.Error(w, "requester_id required", http.StatusBadRequest)
		return
	}

	appts, err := h.bot.ListMine(r.Context(), requesterID)
	if err != nil {
		h.logger.Error("customer list failed", "requester_id", requesterID, "err", err)
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}

	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"appointments": items})
}
