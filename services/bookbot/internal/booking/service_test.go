package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/twclinics/groupbook/services/bookbot/internal/engine"
	"github.com/twclinics/groupbook/services/bookbot/internal/model"
	"github.com/twclinics/groupbook/services/bookbot/internal/notify"
	"github.com/twclinics/groupbook/services/bookbot/internal/storage"
)

type fakeStates struct {
	st      model.GroupState
	upserts int
}

func (f *fakeStates) Get(_ context.Context, groupID string, clinicID int64) (model.GroupState, error) {
	if f.st.GroupID == "" {
		return model.GroupState{GroupID: groupID, ClinicID: clinicID, Phase: model.PhaseIdle, Mode: model.ModeSingle}, nil
	}
	return f.st, nil
}

func (f *fakeStates) Upsert(_ context.Context, st model.GroupState) error {
	f.st = st
	f.upserts++
	return nil
}

type fakeAppts struct {
	nextID    int64
	created   []model.Appointment
	createErr error
}

func (f *fakeAppts) Create(_ context.Context, appt *model.Appointment) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	a := *appt
	a.ID = f.nextID
	a.Status = model.StatusPending
	f.created = append(f.created, a)
	return a.ID, nil
}

func (f *fakeAppts) GetByID(_ context.Context, id int64) (model.Appointment, error) {
	for _, a := range f.created {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Appointment{}, storage.ErrNotFound
}

func (f *fakeAppts) TransitionStatus(_ context.Context, id int64, to model.Status) (model.Appointment, error) {
	for i, a := range f.created {
		if a.ID != id {
			continue
		}
		if !model.CanTransition(a.Status, to) {
			return model.Appointment{}, storage.ErrInvalidTransition
		}
		f.created[i].Status = to
		return f.created[i], nil
	}
	return model.Appointment{}, storage.ErrNotFound
}

func (f *fakeAppts) Delete(_ context.Context, id int64) (model.Appointment, error) {
	for i, a := range f.created {
		if a.ID == id {
			f.created = append(f.created[:i], f.created[i+1:]...)
			return a, nil
		}
	}
	return model.Appointment{}, storage.ErrNotFound
}

func (f *fakeAppts) ListPendingByGroup(_ context.Context, groupID string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.created {
		if a.GroupID == groupID && a.Status == model.StatusPending {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAppts) ListUpcomingByRequester(_ context.Context, requesterID, fromDate string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range f.created {
		if a.RequesterID == requesterID && a.Date >= fromDate {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAppts) CancelByRequester(_ context.Context, id int64, requesterID string) (bool, error) {
	for i, a := range f.created {
		if a.ID == id && a.RequesterID == requesterID &&
			(a.Status == model.StatusPending || a.Status == model.StatusConfirmed) {
			f.created[i].Status = model.StatusCancelled
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAppts) ModifyByRequester(_ context.Context, id int64, requesterID string, upd storage.FieldUpdate) (bool, error) {
	for i, a := range f.created {
		if a.ID == id && a.RequesterID == requesterID {
			if upd.Date != "" {
				f.created[i].Date = upd.Date
			}
			if upd.Time != "" {
				f.created[i].TimeSlot = upd.Time
			}
			if upd.Service != "" {
				f.created[i].Service = upd.Service
			}
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAppts) CheckConflict(_ context.Context, _ int64, _, _ string, _ int64) (*storage.Conflict, error) {
	return nil, nil
}

type fakeGate struct {
	allow bool
}

func (f *fakeGate) IsAuthorized(context.Context, int64, string) (bool, error) {
	return f.allow, nil
}

type fakeGateway struct {
	pushes []string // "recipient|text"
	err    error
}

func (f *fakeGateway) Push(_ context.Context, recipientID string, msg notify.Message) error {
	f.pushes = append(f.pushes, recipientID+"|"+msg.Text)
	return f.err
}

func (f *fakeGateway) ProviderID() string { return "fake" }

type fakeLocker struct {
	acquired int
}

func (f *fakeLocker) Acquire(context.Context, string) (func(), error) {
	f.acquired++
	return func() {}, nil
}

func newTestService(states *fakeStates, appts *fakeAppts, gate *fakeGate, gw *fakeGateway, lk *fakeLocker) *Service {
	logger := slog.New(slog.NewTextHandler(testWriter{}, nil))
	return NewService(logger, states, appts, gate, gw, lk, ServiceConfig{
		Now: func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func driveHappyPath(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	events := []engine.Event{
		engine.StartBooking{Mode: model.ModeSingle},
		engine.PickService{Name: "肉毒"},
		engine.PickDate{Date: "2025-06-02"},
		engine.PickTime{Slot: "12:00-13:00"},
		engine.FreeText{Content: "王小明"},
		engine.ChooseNote{Skip: true},
	}
	for i, ev := range events {
		if err := svc.HandleEvent(ctx, 1, "G1", "U1", ev); err != nil {
			t.Fatalf("event %d (%T): %v", i, ev, err)
		}
	}
}

func TestHappyPathCreatesExactlyOnePending(t *testing.T) {
	states := &fakeStates{}
	appts := &fakeAppts{}
	gw := &fakeGateway{}
	lk := &fakeLocker{}
	svc := newTestService(states, appts, &fakeGate{allow: true}, gw, lk)

	driveHappyPath(t, svc)

	if len(appts.created) != 1 {
		t.Fatalf("created %d appointments, want 1", len(appts.created))
	}
	a := appts.created[0]
	if a.Status != model.StatusPending {
		t.Fatalf("status = %s, want pending", a.Status)
	}
	if a.CustomerName != "王小明" || a.Service != "肉毒" || a.Date != "2025-06-02" || a.TimeSlot != "12:00-13:00" {
		t.Fatalf("fields lost in translation: %+v", a)
	}
	if a.Notes != nil {
		t.Fatalf("notes = %q, want nil", *a.Notes)
	}
	if states.st.Phase != model.PhaseIdle {
		t.Fatalf("conversation phase = %s, want idle", states.st.Phase)
	}
	if lk.acquired != 6 {
		t.Fatalf("lock acquired %d times, want once per event", lk.acquired)
	}
}

func TestConflictRevertsToTimeSelection(t *testing.T) {
	states := &fakeStates{}
	appts := &fakeAppts{createErr: &storage.ConflictError{
		Existing: storage.Conflict{ID: 7, CustomerName: "李大華", Service: "玻尿酸"},
	}}
	gw := &fakeGateway{}
	svc := newTestService(states, appts, &fakeGate{allow: true}, gw, &fakeLocker{})

	driveHappyPath(t, svc)

	if states.st.Phase != model.PhaseSelectingTime {
		t.Fatalf("phase = %s, want selecting_time after conflict", states.st.Phase)
	}
	if states.st.Draft.Service != "肉毒" || states.st.Draft.Date != "2025-06-02" {
		t.Fatalf("service/date dropped from draft: %+v", states.st.Draft)
	}
	if states.st.Draft.Time != "" {
		t.Fatalf("conflicting time kept in draft: %q", states.st.Draft.Time)
	}

	var sawConflictMsg, sawTimeMenu bool
	for _, p := range gw.pushes {
		if strings.Contains(p, "李大華") {
			sawConflictMsg = true
		}
		if strings.Contains(p, "可預約時段") {
			sawTimeMenu = true
		}
	}
	if !sawConflictMsg || !sawTimeMenu {
		t.Fatalf("conflict handling messages missing: %v", gw.pushes)
	}
}

func TestGatewayFailureNeverFailsBooking(t *testing.T) {
	states := &fakeStates{}
	appts := &fakeAppts{}
	gw := &fakeGateway{err: errors.New("push channel down")}
	svc := newTestService(states, appts, &fakeGate{allow: true}, gw, &fakeLocker{})

	driveHappyPath(t, svc)

	if len(appts.created) != 1 {
		t.Fatalf("created %d appointments despite gateway errors, want 1", len(appts.created))
	}
}

func TestUnauthorizedGroupDropped(t *testing.T) {
	states := &fakeStates{}
	appts := &fakeAppts{}
	gw := &fakeGateway{}
	svc := newTestService(states, appts, &fakeGate{allow: false}, gw, &fakeLocker{})

	err := svc.HandleEvent(context.Background(), 1, "G1", "U1", engine.StartBooking{Mode: model.ModeSingle})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if states.upserts != 0 {
		t.Fatal("state written for unauthorized group")
	}
	if len(gw.pushes) != 0 {
		t.Fatalf("messages pushed to unauthorized group: %v", gw.pushes)
	}
}

func TestInvalidDateRejectedWithoutAdvancing(t *testing.T) {
	states := &fakeStates{st: model.GroupState{
		GroupID: "G1", ClinicID: 1, Phase: model.PhaseSelectingDate, Mode: model.ModeSingle,
		Draft: model.Draft{Service: "肉毒"},
	}}
	appts := &fakeAppts{}
	gw := &fakeGateway{}
	svc := newTestService(states, appts, &fakeGate{allow: true}, gw, &fakeLocker{})

	// 2025-06-08 is a Sunday.
	if err := svc.HandleEvent(context.Background(), 1, "G1", "U1", engine.PickDate{Date: "2025-06-08"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if states.st.Phase != model.PhaseSelectingDate {
		t.Fatalf("phase advanced to %s on invalid date", states.st.Phase)
	}
	if len(gw.pushes) != 1 || !strings.Contains(gw.pushes[0], "請重新選擇") {
		t.Fatalf("expected a single rejection nudge, got %v", gw.pushes)
	}
}

func TestStaffConfirmNotifiesRequester(t *testing.T) {
	states := &fakeStates{}
	appts := &fakeAppts{}
	gw := &fakeGateway{}
	svc := newTestService(states, appts, &fakeGate{allow: true}, gw, &fakeLocker{})

	driveHappyPath(t, svc)
	gw.pushes = nil

	appt, err := svc.StaffConfirm(context.Background(), 1)
	if err != nil {
		t.Fatalf("StaffConfirm: %v", err)
	}
	if appt.Status != model.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", appt.Status)
	}

	var toRequester, toGroup bool
	for _, p := range gw.pushes {
		if strings.HasPrefix(p, "U1|") {
			toRequester = true
		}
		if strings.HasPrefix(p, "G1|") {
			toGroup = true
		}
	}
	if !toRequester {
		t.Fatalf("requester not notified: %v", gw.pushes)
	}
	if !toGroup {
		t.Fatalf("pending list not re-broadcast to group: %v", gw.pushes)
	}
}

func TestStaffCompleteOnPendingRejected(t *testing.T) {
	states := &fakeStates{}
	appts := &fakeAppts{}
	svc := newTestService(states, appts, &fakeGate{allow: true}, &fakeGateway{}, &fakeLocker{})

	driveHappyPath(t, svc)

	_, err := svc.StaffComplete(context.Background(), 1)
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if appts.created[0].Status != model.StatusPending {
		t.Fatalf("status mutated to %s on rejected transition", appts.created[0].Status)
	}
}

func TestPendingListWarningAtThreshold(t *testing.T) {
	var appts []model.Appointment
	for i := 0; i < pendingWarnThreshold; i++ {
		appts = append(appts, model.Appointment{
			ID: int64(i + 1), Date: "2025-06-02", TimeSlot: "12:00-13:00",
			CustomerName: "某人", Service: "肉毒", Status: model.StatusPending,
		})
	}
	text := pendingListText(appts)
	if !strings.Contains(text, "⚠️") {
		t.Fatalf("threshold warning missing:\n%s", text)
	}
	if strings.Contains(pendingListText(appts[:2]), "⚠️") {
		t.Fatal("warning shown below threshold")
	}
}

func TestCancelMineOwnershipMismatch(t *testing.T) {
	states := &fakeStates{}
	appts := &fakeAppts{}
	svc := newTestService(states, appts, &fakeGate{allow: true}, &fakeGateway{}, &fakeLocker{})

	driveHappyPath(t, svc)

	ok, err := svc.CancelMine(context.Background(), 1, "someone-else")
	if err != nil {
		t.Fatalf("CancelMine: %v", err)
	}
	if ok {
		t.Fatal("cancel succeeded for a non-owner")
	}

	ok, err = svc.CancelMine(context.Background(), 1, "U1")
	if err != nil {
		t.Fatalf("CancelMine: %v", err)
	}
	if !ok {
		t.Fatal("owner could not cancel their own appointment")
	}
}
