package services

import (
	"context"
	"errors"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"
	apperrors "relaygate/pkg/errors"
	"relaygate/pkg/utils"

	"go.uber.org/zap"
)

// ModerationAdmin executes moderator actions. Every mutation and its audit
// record commit inside a single store transaction; partial application is not
// permitted.
type ModerationAdmin struct {
	catalog     *Catalog
	store       ports.MessageStore
	broadcaster ports.Broadcaster
	logger      *zap.SugaredLogger

	now func() time.Time
}

// NewModerationAdmin wires the administrative moderation surface.
func NewModerationAdmin(catalog *Catalog, store ports.MessageStore, broadcaster ports.Broadcaster, logger *zap.SugaredLogger) *ModerationAdmin {
	return &ModerationAdmin{
		catalog:     catalog,
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
	}
}

// MuteParticipant mutes target in the channel until the given time.
func (m *ModerationAdmin) MuteParticipant(ctx context.Context, moderator *domain.Actor, channelSlug string, target domain.ActorID, mutedUntil time.Time) error {
	channel, err := m.authorize(moderator, channelSlug)
	if err != nil {
		return err
	}
	if target == "" {
		return apperrors.NewInvalidInputError("target actor is required")
	}
	if !mutedUntil.After(m.now()) {
		return apperrors.NewInvalidInputError("muted_until must be in the future")
	}

	audit := &domain.AuditEvent{
		ID:          utils.GenerateAuditID(),
		ChannelSlug: channel.Slug,
		ActorID:     moderator.ID,
		Action:      "muted",
		TargetID:    string(target),
		CreatedAt:   m.now(),
	}

	err = m.store.RunInTransaction(ctx, func(tx ports.MessageStore) error {
		participant := &domain.Participant{
			ActorID:     target,
			ChannelSlug: channel.Slug,
			MutedUntil:  &mutedUntil,
		}
		if err := tx.UpdateParticipant(ctx, participant); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit)
	})
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "mute persistence failed", 503)
	}

	m.notify(channel.Slug, map[string]interface{}{
		"action":      "muted",
		"actor_id":    target,
		"muted_until": mutedUntil,
	})
	return nil
}

// RemoveMessage deletes a message and records the removal.
func (m *ModerationAdmin) RemoveMessage(ctx context.Context, moderator *domain.Actor, channelSlug string, messageID domain.MessageID, reason string) error {
	channel, err := m.authorize(moderator, channelSlug)
	if err != nil {
		return err
	}
	if messageID == "" {
		return apperrors.NewInvalidInputError("message id is required")
	}

	audit := &domain.AuditEvent{
		ID:          utils.GenerateAuditID(),
		ChannelSlug: channel.Slug,
		ActorID:     moderator.ID,
		Action:      "message_removed",
		TargetID:    string(messageID),
		Reason:      reason,
		CreatedAt:   m.now(),
	}

	err = m.store.RunInTransaction(ctx, func(tx ports.MessageStore) error {
		if err := tx.RemoveMessage(ctx, channel.Slug, messageID); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, audit)
	})
	if err == nil {
		m.notify(channel.Slug, map[string]interface{}{
			"action":     "message_removed",
			"message_id": messageID,
			"reason":     reason,
		})
		return nil
	}
	if errors.Is(err, domain.ErrMessageNotFound) {
		return apperrors.NewNotFoundError("message")
	}
	return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "message removal failed", 503)
}

func (m *ModerationAdmin) authorize(moderator *domain.Actor, channelSlug string) (*domain.ChannelDefinition, error) {
	if !domain.CanModerate(moderator) {
		return nil, apperrors.NewForbiddenError("moderation privileges required")
	}
	channel, err := m.catalog.Channel(channelSlug)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("unknown channel")
	}
	return channel, nil
}

func (m *ModerationAdmin) notify(channelSlug string, payload map[string]interface{}) {
	event := ports.ServerEvent{
		Event:     ports.EventModeration,
		Namespace: domain.NamespaceChat,
		Channel:   channelSlug,
		Payload:   payload,
	}
	if err := m.broadcaster.BroadcastToChannel(domain.NamespaceChat, channelSlug, event); err != nil {
		m.logger.Warnw("moderation notice broadcast failed",
			"channel", channelSlug,
			"error", err,
		)
	}
}
