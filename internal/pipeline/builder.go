package pipeline

import (
	"fmt"

	"github.com/cursor-telemetry/backend/internal/session"
)

// BuildSession converts one boundary-delimited event slice into a
// Session. The slice is copied and defensively re-sorted by (Timestamp,
// SequenceHint) so an unsorted caller cannot break the identity.
//
// The ID is a stable function of the first and last timestamps and the
// fingerprint chains the member content hashes, so re-processing the same
// slice — in the same run or after a restart — reproduces an identical
// Session. An empty slice is a caller contract violation: BoundaryDetector
// never produces one.
func BuildSession(events []session.Event) session.Session {
	sorted := make([]session.Event, len(events))
	copy(sorted, events)
	sortEvents(sorted)

	first := sorted[0]
	last := sorted[len(sorted)-1]

	return session.Session{
		ID:          fmt.Sprintf("session_%d_%d", first.Timestamp, last.Timestamp),
		Events:      sorted,
		StartTime:   first.Timestamp,
		EndTime:     last.Timestamp,
		Duration:    last.Timestamp - first.Timestamp,
		Fingerprint: session.Fingerprint(sorted),
	}
}
