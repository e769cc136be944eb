package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/twclinics/groupbook/services/bookbot/internal/engine"
	"github.com/twclinics/groupbook/services/bookbot/internal/model"
	"github.com/twclinics/groupbook/services/bookbot/internal/storage"
)

type fakeBot struct {
	clinicID    int64
	groupID     string
	requesterID string
	ev          engine.Event
	calls       int
}

func (f *fakeBot) HandleEvent(_ context.Context, clinicID int64, groupID, requesterID string, ev engine.Event) error {
	f.clinicID = clinicID
	f.groupID = groupID
	f.requesterID = requesterID
	f.ev = ev
	f.calls++
	return nil
}

func (f *fakeBot) CancelMine(context.Context, int64, string) (bool, error) { return true, nil }

func (f *fakeBot) ModifyMine(context.Context, int64, string, storage.FieldUpdate) (bool, error) {
	return true, nil
}

func (f *fakeBot) ListMine(context.Context, string) ([]model.Appointment, error) { return nil, nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestReceiveParsesEvents(t *testing.T) {
	cases := []struct {
		name string
		body string
		want engine.Event
	}{
		{
			"start booking multiple",
			`{"clinic_id":1,"group_id":"G1","requester_id":"U1","event":{"type":"start_booking","mode":"multiple"}}`,
			engine.StartBooking{Mode: model.ModeMultiple},
		},
		{
			"pick service",
			`{"clinic_id":1,"group_id":"G1","event":{"type":"pick_service","service":"肉毒"}}`,
			engine.PickService{Name: "肉毒"},
		},
		{
			"pick date",
			`{"clinic_id":1,"group_id":"G1","event":{"type":"pick_date","date":"2025-06-02"}}`,
			engine.PickDate{Date: "2025-06-02"},
		},
		{
			"pick time",
			`{"clinic_id":1,"group_id":"G1","event":{"type":"pick_time","slot":"12:00-13:00"}}`,
			engine.PickTime{Slot: "12:00-13:00"},
		},
		{
			"free text",
			`{"clinic_id":1,"group_id":"G1","event":{"type":"free_text","text":"王小明"}}`,
			engine.FreeText{Content: "王小明"},
		},
		{
			"choose note skip",
			`{"clinic_id":1,"group_id":"G1","event":{"type":"choose_note","skip":true}}`,
			engine.ChooseNote{Skip: true},
		},
		{
			"show list",
			`{"clinic_id":1,"group_id":"G1","event":{"type":"show_list"}}`,
			engine.ShowList{},
		},
		{
			"continue booking",
			`{"clinic_id":1,"group_id":"G1","event":{"type":"continue_booking"}}`,
			engine.ContinueBooking{},
		},
	}

	for _, tc := range cases {
		bot := &fakeBot{}
		h := NewEventsHandler(bot, discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		h.Receive(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Errorf("%s: status = %d, want 202", tc.name, rec.Code)
			continue
		}
		if bot.calls != 1 {
			t.Errorf("%s: bot called %d times", tc.name, bot.calls)
			continue
		}
		if bot.ev != tc.want {
			t.Errorf("%s: event = %#v, want %#v", tc.name, bot.ev, tc.want)
		}
	}
}

func TestReceiveRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown event type", `{"clinic_id":1,"group_id":"G1","event":{"type":"make_coffee"}}`},
		{"missing group id", `{"clinic_id":1,"event":{"type":"show_list"}}`},
		{"missing clinic id", `{"group_id":"G1","event":{"type":"show_list"}}`},
		{"not json", `start_booking please`},
	}

	for _, tc := range cases {
		bot := &fakeBot{}
		h := NewEventsHandler(bot, discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		h.Receive(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rec.Code)
		}
		if bot.calls != 0 {
			t.Errorf("%s: bot called on invalid input", tc.name)
		}
	}
}

func TestReceiveRejectsGet(t *testing.T) {
	h := NewEventsHandler(&fakeBot{}, discardLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	h := NewAdminHandler(nil, nil, nil, nil, discardLogger(), "secret", 0)

	endpoints := []struct {
		name   string
		method string
		fn     http.HandlerFunc
	}{
		{"confirm", http.MethodPost, h.Confirm},
		{"cancel", http.MethodPost, h.Cancel},
		{"complete", http.MethodPost, h.Complete},
		{"delete", http.MethodPost, h.Delete},
		{"list", http.MethodGet, h.List},
		{"stats", http.MethodGet, h.Stats},
	}
	for _, ep := range endpoints {
		req := httptest.NewRequest(ep.method, "/api/v1/admin/"+ep.name, strings.NewReader(`{"appointment_id":1}`))
		rec := httptest.NewRecorder()
		ep.fn(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status = %d, want 401", ep.name, rec.Code)
		}
	}
}
