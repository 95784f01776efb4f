package gateway

import (
	"context"
	"encoding/json"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"
	"relaygate/internal/infrastructure/distributed"

	"go.uber.org/zap"
)

// FanoutBroadcaster delivers locally through the hub and relays the same
// event to sibling instances over the event bus. With a nil bus it degrades
// to single-instance local fanout. Remote presence summaries are applied to
// the undecorated presence backend so a relayed write is never republished.
type FanoutBroadcaster struct {
	local    *Hub
	bus      *distributed.EventBus
	presence ports.PresenceBackend
	logger   *zap.SugaredLogger
}

func NewFanoutBroadcaster(local *Hub, bus *distributed.EventBus, presence ports.PresenceBackend, logger *zap.SugaredLogger) *FanoutBroadcaster {
	return &FanoutBroadcaster{
		local:    local,
		bus:      bus,
		presence: presence,
		logger:   logger,
	}
}

func (f *FanoutBroadcaster) BroadcastToChannel(namespace domain.Namespace, channelSlug string, event ports.ServerEvent) error {
	if err := f.local.BroadcastToChannel(namespace, channelSlug, event); err != nil {
		return err
	}

	if f.bus == nil {
		return nil
	}
	if err := f.bus.PublishBroadcast(context.Background(), namespace, channelSlug, event); err != nil {
		// Local delivery already happened; cross-instance relay is
		// best-effort.
		f.logger.Warnw("cross-instance relay failed",
			"namespace", namespace,
			"channel", channelSlug,
			"error", err,
		)
	}
	return nil
}

// Run subscribes to the event bus and applies remote events locally. Blocks
// until ctx is cancelled; call in its own goroutine.
func (f *FanoutBroadcaster) Run(ctx context.Context) error {
	if f.bus == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.bus.Subscribe(ctx, f.handleEvent)
}

func (f *FanoutBroadcaster) handleEvent(event *distributed.Event) error {
	switch event.Type {
	case distributed.EventMessagePublished:
		var serverEvent ports.ServerEvent
		if err := json.Unmarshal(event.Payload, &serverEvent); err != nil {
			return err
		}
		return f.local.BroadcastToChannel(event.Namespace, event.Channel, serverEvent)

	case distributed.EventPresenceUpdated:
		if f.presence == nil {
			return nil
		}
		var record domain.PresenceRecord
		if err := json.Unmarshal(event.Payload, &record); err != nil {
			return err
		}
		return f.presence.SetSummary(context.Background(), &record)

	default:
		return nil
	}
}
