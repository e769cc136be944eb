package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/twclinics/groupbook/services/reminder/internal/storage"
)

type fakeStore struct {
	date  string
	appts []storage.Appointment
	err   error
}

func (f *fakeStore) ListConfirmedForDate(_ context.Context, date string) ([]storage.Appointment, error) {
	f.date = date
	if f.err != nil {
		return nil, f.err
	}
	return f.appts, nil
}

type fakeSender struct {
	sent    []string
	failFor map[string]bool
}

func (f *fakeSender) Send(_ context.Context, to string, _ string) error {
	if f.failFor[to] {
		return errors.New("provider rejected")
	}
	f.sent = append(f.sent, to)
	return nil
}

func (f *fakeSender) ProviderID() string { return "fake" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
}

func TestRunTargetsTomorrow(t *testing.T) {
	store := &fakeStore{}
	d := New(store, &fakeSender{}, testLogger(), Config{Delay: time.Millisecond, Now: fixedNow})

	d.Run(context.Background())
	if store.date != "2025-06-02" {
		t.Fatalf("queried date %s, want 2025-06-02", store.date)
	}
}

func TestRunCountsSentAndFailed(t *testing.T) {
	store := &fakeStore{appts: []storage.Appointment{
		{ID: 1, RequesterID: "U1", CustomerName: "王小明", Date: "2025-06-02", TimeSlot: "12:00-13:00", Service: "肉毒"},
		{ID: 2, RequesterID: "", CustomerName: "無名氏", Date: "2025-06-02", TimeSlot: "13:00-14:00", Service: "玻尿酸"},
		{ID: 3, RequesterID: "U3", CustomerName: "李大華", Date: "2025-06-02", TimeSlot: "14:00-15:00", Service: "皮秒雷射"},
	}}
	sender := &fakeSender{}
	d := New(store, sender, testLogger(), Config{Delay: time.Millisecond, Now: fixedNow})

	res := d.Run(context.Background())
	if !res.Success {
		t.Fatal("run reported failure with a healthy store")
	}
	if res.Sent != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v, want sent 2 failed 1", res)
	}
	if len(sender.sent) != 2 || sender.sent[0] != "U1" || sender.sent[1] != "U3" {
		t.Fatalf("sends = %v, want [U1 U3] in slot order", sender.sent)
	}
}

func TestSendFailureDoesNotAbortRun(t *testing.T) {
	store := &fakeStore{appts: []storage.Appointment{
		{ID: 1, RequesterID: "U1", TimeSlot: "12:00-13:00"},
		{ID: 2, RequesterID: "U2", TimeSlot: "13:00-14:00"},
		{ID: 3, RequesterID: "U3", TimeSlot: "14:00-15:00"},
	}}
	sender := &fakeSender{failFor: map[string]bool{"U2": true}}
	d := New(store, sender, testLogger(), Config{Delay: time.Millisecond, Now: fixedNow})

	res := d.Run(context.Background())
	if res.Sent != 2 || res.Failed != 1 {
		t.Fatalf("result = %+v, want sent 2 failed 1", res)
	}
}

func TestStoreUnreachableReportsWholesaleFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	sender := &fakeSender{}
	d := New(store, sender, testLogger(), Config{Delay: time.Millisecond, Now: fixedNow})

	res := d.Run(context.Background())
	if res.Success || res.Sent != 0 || res.Failed != 0 {
		t.Fatalf("result = %+v, want {false 0 0}", res)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("sends attempted with unreachable store: %v", sender.sent)
	}
}

func TestEmptyDayIsSuccessfulNoOp(t *testing.T) {
	d := New(&fakeStore{}, &fakeSender{}, testLogger(), Config{Delay: time.Millisecond, Now: fixedNow})
	res := d.Run(context.Background())
	if !res.Success || res.Sent != 0 || res.Failed != 0 {
		t.Fatalf("result = %+v, want {true 0 0}", res)
	}
}
