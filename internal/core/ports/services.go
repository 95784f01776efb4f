package ports

import (
	"context"
	"time"

	"relaygate/internal/core/domain"
)

// ModerationContext carries channel/thread context into content evaluation.
type ModerationContext struct {
	ChannelSlug string
	ThreadID    domain.ThreadID
	ActorID     domain.ActorID
}

// ContentModerator evaluates a normalized message body. The scoring algorithm
// is external; the pipeline only consumes the decision. An error means the
// moderator could not be reached and the publish fails closed.
type ContentModerator interface {
	Evaluate(ctx context.Context, body string, mctx ModerationContext) (domain.ModerationDecision, error)
}

// MediaTokenIssuer signs short-lived media-session credentials. The signing
// algorithm is external to the gateway.
type MediaTokenIssuer interface {
	Issue(ctx context.Context, kind, room string, identity domain.ActorID, role string, ttl time.Duration) (*domain.MediaCredential, error)
}

// ClientTransport is the send/close surface the registry and hub hold for a
// live connection.
type ClientTransport interface {
	// Send delivers one server event to the client.
	Send(v interface{}) error

	// SendNotice delivers a scoped informational envelope.
	SendNotice(scope, message string) error

	// Close terminates the transport with a reason.
	Close(reason string) error
}

// Broadcaster fans one event out to every connection currently joined to a
// channel's room.
type Broadcaster interface {
	BroadcastToChannel(namespace domain.Namespace, channelSlug string, event ServerEvent) error
}

// RoomRoster exposes live room occupancy for capacity checks.
type RoomRoster interface {
	Occupancy(namespace domain.Namespace, roomSlug string) int
}
