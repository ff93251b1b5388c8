package pipeline

import (
	"reflect"
	"testing"

	"github.com/cursor-telemetry/backend/internal/session"
)

func TestBuildSession(t *testing.T) {
	events := []session.Event{
		{Type: session.EventFileChange, Timestamp: 1000, Content: "a"},
		{Type: session.EventConversation, Timestamp: 2500, Content: "b"},
		{Type: session.EventToolCall, Timestamp: 4000, Content: "c"},
	}

	s := BuildSession(events)
	if s.ID != "session_1000_4000" {
		t.Errorf("ID = %q, want %q", s.ID, "session_1000_4000")
	}
	if s.StartTime != 1000 || s.EndTime != 4000 || s.Duration != 3000 {
		t.Errorf("times = %d/%d/%d, want 1000/4000/3000", s.StartTime, s.EndTime, s.Duration)
	}
	if len(s.Events) != 3 {
		t.Errorf("len(Events) = %d, want 3", len(s.Events))
	}
	if s.Fingerprint == "" {
		t.Error("Fingerprint is empty")
	}
	if s.StartTime > s.EndTime {
		t.Error("StartTime > EndTime")
	}
}

func TestBuildSessionIdentityStable(t *testing.T) {
	events := []session.Event{
		{Type: session.EventFileChange, Timestamp: 10, Content: "x", SequenceHint: 1},
		{Type: session.EventFileChange, Timestamp: 20, Content: "y", SequenceHint: 2},
	}

	a := BuildSession(events)
	b := BuildSession(events)
	if a.ID != b.ID {
		t.Errorf("IDs differ across runs: %q vs %q", a.ID, b.ID)
	}
	if a.Fingerprint != b.Fingerprint {
		t.Errorf("fingerprints differ across runs: %s vs %s", a.Fingerprint, b.Fingerprint)
	}
}

func TestBuildSessionDefensiveSort(t *testing.T) {
	unsorted := []session.Event{
		{Type: session.EventFileChange, Timestamp: 300, SequenceHint: 3},
		{Type: session.EventFileChange, Timestamp: 100, SequenceHint: 1},
		{Type: session.EventFileChange, Timestamp: 200, SequenceHint: 2},
	}

	s := BuildSession(unsorted)
	if s.StartTime != 100 || s.EndTime != 300 {
		t.Errorf("times = %d/%d, want 100/300", s.StartTime, s.EndTime)
	}
	for i := 1; i < len(s.Events); i++ {
		if s.Events[i].Before(&s.Events[i-1]) {
			t.Fatal("session events not sorted")
		}
	}

	// The input slice must not be mutated.
	if unsorted[0].Timestamp != 300 {
		t.Error("BuildSession mutated its input")
	}
}

func TestBuildSessionSingleEvent(t *testing.T) {
	s := BuildSession([]session.Event{{Type: session.EventConversation, Timestamp: 77, Content: "hi"}})
	if s.StartTime != 77 || s.EndTime != 77 || s.Duration != 0 {
		t.Errorf("times = %d/%d/%d, want 77/77/0", s.StartTime, s.EndTime, s.Duration)
	}
	if s.ID != "session_77_77" {
		t.Errorf("ID = %q, want session_77_77", s.ID)
	}
}

func TestBuildSessionFingerprintMatchesEventOrder(t *testing.T) {
	a := session.Event{Type: session.EventFileChange, Timestamp: 1, Content: "a"}
	b := session.Event{Type: session.EventFileChange, Timestamp: 2, Content: "b"}

	s := BuildSession([]session.Event{b, a}) // arrives unsorted
	want := session.Fingerprint([]session.Event{a, b})
	if s.Fingerprint != want {
		t.Error("fingerprint not computed over the sorted event order")
	}
	if !reflect.DeepEqual(s.Events[0], a) {
		t.Error("events not re-sorted before fingerprinting")
	}
}
