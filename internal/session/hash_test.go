package session

import "testing"

// Pinned vectors: the hash is part of the stored data format, so any
// algorithm change must show up as a test failure, not a silent migration.
func TestContentHashStability(t *testing.T) {
	ev := Event{Type: EventFileChange, Timestamp: 12345, Content: "hello", FilePath: "/tmp/a.go"}
	want := "d7040733bdc191d28230e33551efc0bdc70015ade03280d37df2d6595123e82a"
	if got := ev.ContentHash(); got != want {
		t.Errorf("ContentHash() = %s, want %s", got, want)
	}
}

func TestFingerprintStability(t *testing.T) {
	events := []Event{
		{Type: EventFileChange, Timestamp: 1, Content: "hello", FilePath: "/tmp/a.go"},
		{Type: EventConversation, Timestamp: 2, Content: "how do I sort"},
	}
	want := "861ba9520a4edfeaf4ccad4d9386d02e2da40239ca78a0e61058951f8149eab5"
	if got := Fingerprint(events); got != want {
		t.Errorf("Fingerprint() = %s, want %s", got, want)
	}
}

func TestContentHashIgnoresTimestamp(t *testing.T) {
	a := Event{Type: EventCodeChange, Timestamp: 1000, Content: "diff", FilePath: "/f"}
	b := Event{Type: EventCodeChange, Timestamp: 99999, Content: "diff", FilePath: "/f"}
	if a.ContentHash() != b.ContentHash() {
		t.Error("events differing only in timestamp should hash identically")
	}
}

func TestContentHashCoversFields(t *testing.T) {
	base := Event{Type: EventCodeChange, Content: "diff", FilePath: "/f"}

	typ := base
	typ.Type = EventFileChange
	if typ.ContentHash() == base.ContentHash() {
		t.Error("type change should change the hash")
	}

	content := base
	content.Content = "diff2"
	if content.ContentHash() == base.ContentHash() {
		t.Error("content change should change the hash")
	}

	path := base
	path.FilePath = "/g"
	if path.ContentHash() == base.ContentHash() {
		t.Error("file path change should change the hash")
	}
}

func TestContentHashFieldBoundaries(t *testing.T) {
	// The null separator must keep adjacent fields from bleeding together.
	a := Event{Type: EventConversation, Content: "ab", FilePath: "c"}
	b := Event{Type: EventConversation, Content: "a", FilePath: "bc"}
	if a.ContentHash() == b.ContentHash() {
		t.Error("field boundary shift should change the hash")
	}
}

func TestFingerprintOrderAndCountSensitive(t *testing.T) {
	a := Event{Type: EventFileChange, Content: "x"}
	b := Event{Type: EventFileChange, Content: "y"}

	if Fingerprint([]Event{a, b}) == Fingerprint([]Event{b, a}) {
		t.Error("reordering events should change the fingerprint")
	}
	if Fingerprint([]Event{a}) == Fingerprint([]Event{a, a}) {
		t.Error("repeating an event should change the fingerprint")
	}
	if Fingerprint([]Event{a, b}) != Fingerprint([]Event{a, b}) {
		t.Error("identical sequences should fingerprint identically")
	}
}
