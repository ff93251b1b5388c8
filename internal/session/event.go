package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EventType classifies an observed development activity.
type EventType int

const (
	EventUnknown EventType = iota
	EventFileChange
	EventCodeChange
	EventConversation
	EventToolCall
	EventSessionEnd // explicit end-of-session marker
)

var eventTypeNames = map[EventType]string{
	EventFileChange:   "file_change",
	EventCodeChange:   "code_change",
	EventConversation: "conversation",
	EventToolCall:     "tool_call",
	EventSessionEnd:   "session_end",
}

var eventTypeFromName = map[string]EventType{
	"file_change":  EventFileChange,
	"code_change":  EventCodeChange,
	"conversation": EventConversation,
	"tool_call":    EventToolCall,
	"session_end":  EventSessionEnd,
}

func (t EventType) String() string {
	if s, ok := eventTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// ParseEventType maps a wire/storage name back to its EventType.
// Unrecognized names yield EventUnknown.
func ParseEventType(name string) EventType {
	if v, ok := eventTypeFromName[name]; ok {
		return v
	}
	return EventUnknown
}

func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *EventType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := eventTypeFromName[s]; ok {
		*t = v
	} else {
		*t = EventUnknown
	}
	return nil
}

// Event is one atomic observed activity flowing through the pipeline.
// Timestamp is milliseconds since the Unix epoch and is the only required
// field. SequenceHint is assigned by the event buffer at insertion time and
// breaks ordering ties between events sharing a timestamp; callers must
// leave it zero.
type Event struct {
	Type             EventType `json:"type"`
	Timestamp        int64     `json:"timestamp"`
	SequenceHint     uint64    `json:"-"`
	Content          string    `json:"content,omitempty"`
	FilePath         string    `json:"filePath,omitempty"`
	ProcessID        int       `json:"pid,omitempty"`
	WorkingDirectory string    `json:"workingDir,omitempty"`
	Application      string    `json:"application,omitempty"`
}

// ValidationError reports an event rejected at submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s %s", e.Field, e.Reason)
}

// Validate checks the submission invariants: a known type and a
// positive timestamp. All other fields are optional.
func (ev *Event) Validate() error {
	if ev.Type == EventUnknown {
		return &ValidationError{Field: "type", Reason: "is unknown"}
	}
	if ev.Timestamp <= 0 {
		return &ValidationError{Field: "timestamp", Reason: "must be a positive epoch-millisecond value"}
	}
	return nil
}

// Before reports whether ev orders strictly before other under the
// (Timestamp, SequenceHint) ordering used throughout the pipeline.
func (ev *Event) Before(other *Event) bool {
	if ev.Timestamp != other.Timestamp {
		return ev.Timestamp < other.Timestamp
	}
	return ev.SequenceHint < other.SequenceHint
}

// ContextFingerprint combines the working-context fields into a single
// comparable string. Two events with different fingerprints belong to
// different working contexts for boundary purposes.
func (ev *Event) ContextFingerprint() string {
	var b strings.Builder
	b.WriteString(ev.FilePath)
	b.WriteByte('|')
	if ev.ProcessID != 0 {
		b.WriteString(strconv.Itoa(ev.ProcessID))
	}
	b.WriteByte('|')
	b.WriteString(ev.WorkingDirectory)
	b.WriteByte('|')
	b.WriteString(ev.Application)
	return b.String()
}
