package pipeline

import "github.com/cursor-telemetry/backend/internal/session"

// BoundaryReason identifies which rule started a segment.
type BoundaryReason int

const (
	ReasonBatchStart BoundaryReason = iota // first segment of the input
	ReasonTimeout
	ReasonExplicitEnd
	ReasonContextSwitch
)

var reasonNames = map[BoundaryReason]string{
	ReasonBatchStart:    "batch_start",
	ReasonTimeout:       "timeout",
	ReasonExplicitEnd:   "explicit_end",
	ReasonContextSwitch: "context_switch",
}

func (r BoundaryReason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "unknown"
}

// Segment is one boundary-delimited run of events. Reason records the
// rule that opened it.
type Segment struct {
	Events []session.Event
	Reason BoundaryReason
}

// BoundaryConfig holds the thresholds for the boundary rules, in
// milliseconds.
type BoundaryConfig struct {
	SessionTimeout         int64
	ContextSwitchThreshold int64
}

// DetectBoundaries partitions a deduplicated, time-ordered sequence into
// session segments. It is stateless: the same input always yields the
// same partition, no matter how the events were originally buffered.
//
// For each consecutive pair the rules are evaluated in a fixed order and
// the first match wins:
//
//  1. timeout — the gap exceeds SessionTimeout
//  2. explicit — the previous event is a session_end marker
//  3. context switch — the context fingerprints differ AND the gap
//     exceeds ContextSwitchThreshold
//
// The order matters for attribution: a session_end followed by a gap
// longer than SessionTimeout records a timeout boundary, not an explicit
// one. Rapid alternation between files inside a burst never splits a
// session on its own (rule 3 requires elapsed time).
//
// An empty input yields no segments; a single event yields one
// single-event segment.
func DetectBoundaries(events []session.Event, cfg BoundaryConfig) []Segment {
	if len(events) == 0 {
		return nil
	}

	var segments []Segment
	start := 0
	reason := ReasonBatchStart
	for i := 1; i < len(events); i++ {
		r, split := boundaryBetween(&events[i-1], &events[i], cfg)
		if !split {
			continue
		}
		segments = append(segments, Segment{Events: events[start:i:i], Reason: reason})
		start = i
		reason = r
	}
	return append(segments, Segment{Events: events[start:len(events):len(events)], Reason: reason})
}

func boundaryBetween(prev, cur *session.Event, cfg BoundaryConfig) (BoundaryReason, bool) {
	gap := cur.Timestamp - prev.Timestamp
	switch {
	case gap > cfg.SessionTimeout:
		return ReasonTimeout, true
	case prev.Type == session.EventSessionEnd:
		return ReasonExplicitEnd, true
	case gap > cfg.ContextSwitchThreshold && prev.ContextFingerprint() != cur.ContextFingerprint():
		return ReasonContextSwitch, true
	}
	return ReasonBatchStart, false
}
