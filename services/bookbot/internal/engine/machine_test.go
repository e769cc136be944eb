package engine

import (
	"reflect"
	"testing"

	"github.com/twclinics/groupbook/services/bookbot/internal/model"
)

func idleState() model.GroupState {
	return model.GroupState{GroupID: "G", ClinicID: 1, Phase: model.PhaseIdle}
}

// Drives the full single-mode happy path and checks the draft accumulated
// from the picks ends up verbatim in the create command, with no note.
func TestFullBookingFlow(t *testing.T) {
	st := idleState()

	events := []Event{
		StartBooking{Mode: model.ModeSingle},
		PickService{Name: "肉毒"},
		PickDate{Date: "2025-06-02"},
		PickTime{Slot: "10:00-11:00"},
		FreeText{Content: "王小明"},
		ChooseNote{Skip: true},
	}
	wantPhases := []model.Phase{
		model.PhaseSelectingService,
		model.PhaseSelectingDate,
		model.PhaseSelectingTime,
		model.PhaseWaitingName,
		model.PhaseWaitingNoteChoice,
		model.PhaseIdle,
	}

	var created *CreateAppointment
	for i, ev := range events {
		d := Decide(st, ev)
		if !d.Changed {
			t.Fatalf("event %d (%T) was ignored", i, ev)
		}
		if d.Phase != wantPhases[i] {
			t.Fatalf("event %d (%T): phase = %s, want %s", i, ev, d.Phase, wantPhases[i])
		}
		for _, cmd := range d.Commands {
			if c, ok := cmd.(CreateAppointment); ok {
				created = &c
			}
		}
		st.Phase = d.Phase
		st.Mode = d.Mode
		st.Draft = d.Draft
	}

	if created == nil {
		t.Fatal("no CreateAppointment command emitted")
	}
	want := model.Draft{Service: "肉毒", Date: "2025-06-02", Time: "10:00-11:00", Name: "王小明"}
	if !reflect.DeepEqual(created.Draft, want) {
		t.Fatalf("created draft = %+v, want %+v", created.Draft, want)
	}
	if created.Draft.Note != nil {
		t.Fatalf("expected nil note, got %q", *created.Draft.Note)
	}
	if !st.Draft.Empty() {
		t.Fatalf("draft not cleared after booking: %+v", st.Draft)
	}
}

func TestNoteFlow(t *testing.T) {
	st := idleState()
	st.Phase = model.PhaseWaitingNoteChoice
	st.Mode = model.ModeSingle
	st.Draft = model.Draft{Service: "玻尿酸", Date: "2025-06-03", Time: "14:00-15:00", Name: "李大華"}

	d := Decide(st, ChooseNote{Skip: false})
	if d.Phase != model.PhaseWaitingNoteText {
		t.Fatalf("phase = %s, want waiting_note_text", d.Phase)
	}
	if len(d.Commands) != 1 {
		t.Fatalf("expected only the note prompt, got %d commands", len(d.Commands))
	}

	st.Phase = d.Phase
	st.Draft = d.Draft
	d = Decide(st, FreeText{Content: "  對麻醉過敏  "})
	if d.Phase != model.PhaseIdle {
		t.Fatalf("phase = %s, want idle", d.Phase)
	}
	var created *CreateAppointment
	for _, cmd := range d.Commands {
		if c, ok := cmd.(CreateAppointment); ok {
			created = &c
		}
	}
	if created == nil {
		t.Fatal("no CreateAppointment command emitted")
	}
	if created.Draft.Note == nil || *created.Draft.Note != "對麻醉過敏" {
		t.Fatalf("note not trimmed/stored: %+v", created.Draft.Note)
	}
}

// Re-sending start_booking mid-draft must discard the old draft entirely.
func TestRestartDiscardsDraft(t *testing.T) {
	st := idleState()
	st.Phase = model.PhaseWaitingName
	st.Mode = model.ModeSingle
	st.Draft = model.Draft{Service: "海飛秀", Date: "2025-06-01", Time: "12:00-13:00"}

	d := Decide(st, StartBooking{Mode: model.ModeMultiple})
	if d.Phase != model.PhaseSelectingService {
		t.Fatalf("phase = %s, want selecting_service", d.Phase)
	}
	if d.Mode != model.ModeMultiple {
		t.Fatalf("mode = %s, want multiple", d.Mode)
	}
	if !d.Draft.Empty() {
		t.Fatalf("old draft leaked into restart: %+v", d.Draft)
	}
}

func TestContinueBookingPreservesMode(t *testing.T) {
	st := idleState()
	st.Mode = model.ModeMultiple

	d := Decide(st, ContinueBooking{})
	if d.Phase != model.PhaseSelectingService {
		t.Fatalf("phase = %s, want selecting_service", d.Phase)
	}
	if d.Mode != model.ModeMultiple {
		t.Fatalf("mode = %s, want multiple preserved", d.Mode)
	}
}

func TestMultipleModeEmitsContinuePrompt(t *testing.T) {
	st := idleState()
	st.Phase = model.PhaseWaitingNoteChoice
	st.Mode = model.ModeMultiple
	st.Draft = model.Draft{Service: "PRP", Date: "2025-06-05", Time: "16:00-17:00", Name: "陳美玲"}

	d := Decide(st, ChooseNote{Skip: true})
	var sawContinue, sawList bool
	for _, cmd := range d.Commands {
		switch cmd.(type) {
		case SendContinuePrompt:
			sawContinue = true
		case SendPendingList:
			sawList = true
		}
	}
	if !sawContinue || sawList {
		t.Fatalf("multiple mode should emit continue prompt, not pending list: %v", d.Commands)
	}
}

func TestEmptyNameReprompts(t *testing.T) {
	st := idleState()
	st.Phase = model.PhaseWaitingName
	st.Draft = model.Draft{Service: "肉毒", Date: "2025-06-02", Time: "10:00-11:00"}

	d := Decide(st, FreeText{Content: "   "})
	if d.Phase != model.PhaseWaitingName {
		t.Fatalf("phase = %s, want waiting_name", d.Phase)
	}
	if len(d.Commands) != 1 {
		t.Fatalf("expected one re-prompt command, got %d", len(d.Commands))
	}
	if _, ok := d.Commands[0].(SendNamePrompt); !ok {
		t.Fatalf("expected SendNamePrompt, got %T", d.Commands[0])
	}
	if d.Draft.Name != "" {
		t.Fatalf("empty name stored: %q", d.Draft.Name)
	}
}

// Events outside their phase are silent no-ops.
func TestInvalidEventsAreSilentNoOps(t *testing.T) {
	cases := []struct {
		name  string
		phase model.Phase
		ev    Event
	}{
		{"free text while idle", model.PhaseIdle, FreeText{Content: "hello"}},
		{"free text while selecting service", model.PhaseSelectingService, FreeText{Content: "hello"}},
		{"free text while selecting date", model.PhaseSelectingDate, FreeText{Content: "hello"}},
		{"free text while selecting time", model.PhaseSelectingTime, FreeText{Content: "hello"}},
		{"pick time while idle", model.PhaseIdle, PickTime{Slot: "10:00-11:00"}},
		{"pick date while waiting name", model.PhaseWaitingName, PickDate{Date: "2025-06-02"}},
		{"choose note while selecting time", model.PhaseSelectingTime, ChooseNote{Skip: true}},
		{"continue while mid-draft", model.PhaseSelectingDate, ContinueBooking{}},
	}

	for _, tc := range cases {
		st := idleState()
		st.Phase = tc.phase
		st.Draft = model.Draft{Service: "x"}
		d := Decide(st, tc.ev)
		if d.Changed {
			t.Errorf("%s: expected silent no-op", tc.name)
		}
		if d.Phase != tc.phase {
			t.Errorf("%s: phase changed to %s", tc.name, d.Phase)
		}
		if len(d.Commands) != 0 {
			t.Errorf("%s: emitted %d commands", tc.name, len(d.Commands))
		}
		if !reflect.DeepEqual(d.Draft, st.Draft) {
			t.Errorf("%s: draft mutated", tc.name)
		}
	}
}

func TestShowListFromAnyPhase(t *testing.T) {
	for _, phase := range []model.Phase{model.PhaseIdle, model.PhaseSelectingTime, model.PhaseWaitingName} {
		st := idleState()
		st.Phase = phase
		st.Draft = model.Draft{Service: "肉毒"}
		d := Decide(st, ShowList{})
		if d.Phase != phase {
			t.Errorf("show_list from %s changed phase to %s", phase, d.Phase)
		}
		if len(d.Commands) != 1 {
			t.Fatalf("show_list from %s: got %d commands", phase, len(d.Commands))
		}
		if _, ok := d.Commands[0].(SendPendingList); !ok {
			t.Errorf("show_list from %s: got %T", phase, d.Commands[0])
		}
		if !reflect.DeepEqual(d.Draft, st.Draft) {
			t.Errorf("show_list from %s mutated draft", phase)
		}
	}
}
