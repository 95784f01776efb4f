package ports

import "relaygate/internal/core/domain"

// Server-to-client event names.
const (
	EventMessage    = "message"
	EventHistory    = "history"
	EventPresence   = "presence"
	EventTyping     = "typing"
	EventChannels   = "channels"
	EventModeration = "moderation"
	EventNotice     = "notice"
	EventError      = "error"
)

// ServerEvent is the envelope every server-to-client emission uses.
type ServerEvent struct {
	Event     string           `json:"event"`
	Namespace domain.Namespace `json:"namespace,omitempty"`
	Channel   string           `json:"channel,omitempty"`
	Payload   interface{}      `json:"payload,omitempty"`
}

// ErrorEnvelope is returned to the originating connection only; it never
// leaks to other room members.
type ErrorEnvelope struct {
	Scope   string `json:"scope"`
	Message string `json:"message"`
}

// PresencePayload announces a join or leave inside a room.
type PresencePayload struct {
	ActorID domain.ActorID `json:"actor_id"`
	Action  string         `json:"action"` // "joined" or "left"
	At      string         `json:"at"`     // RFC 3339
}
