package pipeline

import "github.com/cursor-telemetry/backend/internal/session"

type dedupKey struct {
	hash   string
	bucket int64
}

// Deduplicate removes content-duplicate events from an already-ordered
// batch. Two events are duplicates when their content hashes match and
// their timestamps fall into the same windowMs-wide bucket
// (floor(Timestamp/windowMs)); the first occurrence in batch order wins.
// Output order is preserved.
//
// Bucketing is an approximation of a sliding window: two identical events
// straddling a bucket edge (e.g. t=4999 and t=5001 with a 5000ms window)
// both survive. Accepted trade-off for O(n) processing.
func Deduplicate(events []session.Event, windowMs int64) []session.Event {
	if windowMs <= 0 || len(events) < 2 {
		return events
	}

	seen := make(map[dedupKey]struct{}, len(events))
	out := make([]session.Event, 0, len(events))
	for _, ev := range events {
		k := dedupKey{hash: ev.ContentHash(), bucket: ev.Timestamp / windowMs}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, ev)
	}
	return out
}
