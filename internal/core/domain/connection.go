package domain

import "time"

type ConnectionID string

// Namespace is a logical topic space a connection attaches to.
type Namespace string

const (
	NamespaceChat       Namespace = "chat"
	NamespaceVoice      Namespace = "voice"
	NamespaceEvents     Namespace = "events"
	NamespaceModeration Namespace = "moderation"
)

// ConnectionMeta describes one live connection of an actor as tracked by the
// registry and presence layer.
type ConnectionMeta struct {
	ID          ConnectionID `json:"connection_id"`
	ActorID     ActorID      `json:"actor_id"`
	Namespace   Namespace    `json:"namespace"`
	ConnectedAt time.Time    `json:"connected_at"`
	RemoteAddr  string       `json:"remote_addr"`
}

// PresenceRecord is the aggregated "where is this actor online" view. One
// logical record per actor; connection membership is idempotent per
// connection id.
type PresenceRecord struct {
	ActorID     ActorID          `json:"actor_id"`
	Connections []ConnectionMeta `json:"connections"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Online reports whether the actor has at least one live connection.
func (p *PresenceRecord) Online() bool {
	return p != nil && len(p.Connections) > 0
}
