package session

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed hashing. The version suffix allows
// the algorithm to be migrated without silently colliding with old values.
const (
	domainEvent   = "telemetry/event/v1"
	domainSession = "telemetry/session/v1"
)

// hashWithDomain computes SHA-256 over the domain, then each field, with a
// null byte between every part. The separator prevents boundary ambiguity
// between adjacent fields ("ab"+"c" vs "a"+"bc").
func hashWithDomain(domain string, fields ...string) string {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, f := range fields {
		h.Write([]byte{0x00})
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash returns the deterministic content identity of the event,
// computed over {Type, Content, FilePath}. Timestamp is deliberately
// excluded: duplicate detection is content-based, and the same edit
// observed twice must hash identically regardless of when it arrived.
func (ev *Event) ContentHash() string {
	return hashWithDomain(domainEvent, ev.Type.String(), ev.Content, ev.FilePath)
}

// Fingerprint computes the deterministic identity of an ordered event
// sequence by chaining each member's content hash. It changes if event
// content, count, or order changes, and is independent of when the
// sequence is re-processed.
func Fingerprint(events []Event) string {
	h := sha256.New()
	h.Write([]byte(domainSession))
	for i := range events {
		h.Write([]byte{0x00})
		h.Write([]byte(events[i].ContentHash()))
	}
	return hex.EncodeToString(h.Sum(nil))
}
