package session

// Session is a maximal run of events grouped by the boundary rules; the
// pipeline's unit of output. All fields are derived deterministically from
// the member events, so re-processing the same event sequence reproduces
// an identical Session. Immutable after construction.
type Session struct {
	ID          string  `json:"id"`
	Events      []Event `json:"events"`
	StartTime   int64   `json:"startTime"` // ms since epoch, first event
	EndTime     int64   `json:"endTime"`   // ms since epoch, last event
	Duration    int64   `json:"duration"`  // EndTime - StartTime, ms
	Fingerprint string  `json:"fingerprint"`
}

// Clone returns a deep copy so the caller can hand the session to
// collaborators without sharing the events slice.
func (s *Session) Clone() *Session {
	c := *s
	if len(s.Events) > 0 {
		c.Events = make([]Event, len(s.Events))
		copy(c.Events, s.Events)
	}
	return &c
}
