package distributed

import (
	"context"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"

	"go.uber.org/zap"
)

// presencePublisher is the slice of the event bus the relay needs.
type presencePublisher interface {
	PublishPresence(ctx context.Context, record *domain.PresenceRecord) error
}

// PresenceRelay decorates a presence backend so that every summary write is
// also relayed to sibling instances over the event bus. The relay is
// best-effort: a failed publish never fails the local write.
type PresenceRelay struct {
	inner  ports.PresenceBackend
	bus    presencePublisher
	logger *zap.SugaredLogger
}

func NewPresenceRelay(inner ports.PresenceBackend, bus presencePublisher, logger *zap.SugaredLogger) *PresenceRelay {
	return &PresenceRelay{
		inner:  inner,
		bus:    bus,
		logger: logger,
	}
}

func (r *PresenceRelay) TrackJoin(ctx context.Context, actorID domain.ActorID, meta domain.ConnectionMeta) error {
	return r.inner.TrackJoin(ctx, actorID, meta)
}

func (r *PresenceRelay) TrackLeave(ctx context.Context, actorID domain.ActorID, meta domain.ConnectionMeta, reason string) error {
	return r.inner.TrackLeave(ctx, actorID, meta, reason)
}

func (r *PresenceRelay) SetSummary(ctx context.Context, record *domain.PresenceRecord) error {
	if err := r.inner.SetSummary(ctx, record); err != nil {
		return err
	}

	if err := r.bus.PublishPresence(ctx, record); err != nil {
		r.logger.Warnw("presence relay failed",
			"actor_id", record.ActorID,
			"connections", len(record.Connections),
			"error", err,
		)
	}
	return nil
}

func (r *PresenceRelay) GetSummary(ctx context.Context, actorID domain.ActorID) (*domain.PresenceRecord, error) {
	return r.inner.GetSummary(ctx, actorID)
}
