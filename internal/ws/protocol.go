package ws

import (
	"github.com/cursor-telemetry/backend/internal/session"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgSessions MessageType = "sessions"
	MsgError    MessageType = "error"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload carries recent stored sessions, sent once on connect.
type SnapshotPayload struct {
	Sessions []*session.Session `json:"sessions"`
}

// SessionsPayload carries newly completed sessions in emission order.
type SessionsPayload struct {
	Sessions []*session.Session `json:"sessions"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}
