package ports

import (
	"context"

	"relaygate/internal/core/domain"
)

// PresenceBackend is the pluggable "who is online where" store. Presence is
// best-effort relative to the authoritative connection registry: failures are
// logged by callers, never propagated to connection admission.
type PresenceBackend interface {
	// TrackJoin records one live connection. Idempotent per connection id.
	TrackJoin(ctx context.Context, actorID domain.ActorID, meta domain.ConnectionMeta) error

	// TrackLeave removes one connection. Idempotent per connection id.
	TrackLeave(ctx context.Context, actorID domain.ActorID, meta domain.ConnectionMeta, reason string) error

	// SetSummary replaces the actor's aggregated record (last writer wins).
	// An empty connection list signals offline.
	SetSummary(ctx context.Context, record *domain.PresenceRecord) error

	// GetSummary returns the aggregated record; an offline actor yields a
	// record with no connections, not an error.
	GetSummary(ctx context.Context, actorID domain.ActorID) (*domain.PresenceRecord, error)
}

// MessageStore is the narrow persistence contract for threads, messages,
// participants and audit events. Implementations must make RunInTransaction
// atomic: either every write inside commits or none do.
type MessageStore interface {
	FindOrCreateThread(ctx context.Context, channelSlug string) (*domain.Thread, error)
	AppendMessage(ctx context.Context, msg *domain.Message) error
	ListRecent(ctx context.Context, channelSlug string, limit int) ([]*domain.Message, error)
	GetParticipant(ctx context.Context, channelSlug string, actorID domain.ActorID) (*domain.Participant, error)
	UpdateParticipant(ctx context.Context, p *domain.Participant) error
	RemoveMessage(ctx context.Context, channelSlug string, id domain.MessageID) error
	CountParticipants(ctx context.Context, channelSlug string) (int, error)
	CountMessages(ctx context.Context, channelSlug string) (int, error)
	AppendAudit(ctx context.Context, ev *domain.AuditEvent) error
	RunInTransaction(ctx context.Context, fn func(tx MessageStore) error) error
}

// ListRecentMaxLimit caps ListRecent page sizes.
const ListRecentMaxLimit = 200
