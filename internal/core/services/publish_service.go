package services

import (
	"context"
	"errors"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"
	"relaygate/pkg/circuitbreaker"
	apperrors "relaygate/pkg/errors"
	"relaygate/pkg/tracing"
	"relaygate/pkg/utils"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PublishRequest is one publish attempt from a connection.
type PublishRequest struct {
	Actor       *domain.Actor
	Namespace   domain.Namespace
	ChannelSlug string
	Body        string
	Type        string
	Metadata    map[string]interface{}
}

// PublishPipeline runs a message through validate → normalize → mute check →
// moderate → persist → broadcast, strictly in order with no retries. The
// moderation decision is made at most once per attempt; a Block aborts before
// any message row exists.
type PublishPipeline struct {
	catalog     *Catalog
	limiter     *SlidingWindowLimiter
	store       ports.MessageStore
	moderator   ports.ContentModerator
	breaker     *circuitbreaker.CircuitBreaker
	broadcaster ports.Broadcaster
	logger      *zap.SugaredLogger

	now func() time.Time
}

// NewPublishPipeline wires the pipeline. The breaker guards the moderator
// call: a tripped breaker fails publishes closed instead of hammering a dead
// moderation service.
func NewPublishPipeline(
	catalog *Catalog,
	limiter *SlidingWindowLimiter,
	store ports.MessageStore,
	moderator ports.ContentModerator,
	breaker *circuitbreaker.CircuitBreaker,
	broadcaster ports.Broadcaster,
	logger *zap.SugaredLogger,
) *PublishPipeline {
	return &PublishPipeline{
		catalog:     catalog,
		limiter:     limiter,
		store:       store,
		moderator:   moderator,
		breaker:     breaker,
		broadcaster: broadcaster,
		logger:      logger,
		now:         time.Now,
	}
}

// Publish executes one attempt. Steps before moderation fail fast with no
// side effects. Once validation passes, persistence and broadcast run on a
// detached context so a vanished origin connection cannot abort them.
func (p *PublishPipeline) Publish(ctx context.Context, req PublishRequest) (*domain.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "publish")
	defer span.End()
	tracing.AddSpanAttributes(ctx,
		attribute.String("channel", req.ChannelSlug),
		attribute.String("actor_id", string(req.Actor.ID)),
	)

	// Step 1: validate.
	if req.ChannelSlug == "" {
		return nil, apperrors.NewInvalidInputError("channel is required")
	}
	if utils.IsEmpty(req.Body) && req.Type != string(domain.MessageTypeEvent) {
		return nil, apperrors.NewInvalidInputError("body is required")
	}

	channel, err := p.catalog.Channel(req.ChannelSlug)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("unknown channel")
	}
	if !channel.CanAccess(req.Actor) {
		return nil, apperrors.NewForbiddenError("channel access denied")
	}
	if !p.limiter.Admit(req.Actor.ID, channel.Slug) {
		return nil, apperrors.NewRateLimitError()
	}

	// Step 2: normalize.
	body := utils.SanitizeString(req.Body)
	msgType := normalizeMessageType(req.Type)
	if len([]rune(body)) > domain.MaxMessageBodyRunes {
		return nil, apperrors.NewInvalidInputError("body exceeds maximum length")
	}
	if msgType == domain.MessageTypeText && body == "" {
		return nil, apperrors.NewInvalidInputError("text body is empty after normalization")
	}

	// Step 3: mute check.
	participant, err := p.store.GetParticipant(ctx, channel.Slug, req.Actor.ID)
	if err != nil && !errors.Is(err, domain.ErrParticipantNotFound) {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "participant lookup failed", 503)
	}
	if participant.MutedAt(p.now()) {
		return nil, apperrors.NewForbiddenError("actor is muted in this channel")
	}

	// Past validation the attempt must complete even if the origin
	// connection tears down mid-flight.
	ctx = context.WithoutCancel(ctx)

	thread, err := p.store.FindOrCreateThread(ctx, channel.Slug)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "thread lookup failed", 503)
	}

	// Step 4: moderate. No default-allow: a moderator outage fails the
	// publish.
	var decision domain.ModerationDecision
	modErr := p.breaker.Execute(func() error {
		var evalErr error
		decision, evalErr = p.moderator.Evaluate(ctx, body, ports.ModerationContext{
			ChannelSlug: channel.Slug,
			ThreadID:    thread.ID,
			ActorID:     req.Actor.ID,
		})
		return evalErr
	})
	if modErr != nil {
		tracing.RecordError(ctx, modErr)
		return nil, apperrors.WrapError(modErr, apperrors.ErrCodeServiceUnavailable, "moderation unavailable", 503)
	}

	msg := &domain.Message{
		ID:          domain.MessageID(utils.GenerateMessageID()),
		ThreadID:    thread.ID,
		ChannelSlug: channel.Slug,
		SenderID:    req.Actor.ID,
		SenderRoles: req.Actor.Roles.Values(),
		Body:        body,
		Type:        msgType,
		Metadata:    req.Metadata,
		CreatedAt:   p.now(),
	}

	// Step 5: persist according to the decision.
	switch decision.Verdict {
	case domain.VerdictBlock:
		audit := p.auditFor(channel.Slug, req.Actor.ID, "blocked", decision)
		if err := p.store.AppendAudit(ctx, audit); err != nil {
			p.logger.Warnw("audit write failed for blocked message",
				"channel", channel.Slug,
				"actor_id", req.Actor.ID,
				"error", err,
			)
		}
		return nil, apperrors.NewPolicyViolationError("message rejected by moderation")

	case domain.VerdictReview:
		msg.Status = domain.MessageStatusPendingReview
		audit := p.auditFor(channel.Slug, req.Actor.ID, "flagged", decision)
		audit.TargetID = string(msg.ID)
		err = p.store.RunInTransaction(ctx, func(tx ports.MessageStore) error {
			if err := tx.AppendMessage(ctx, msg); err != nil {
				return err
			}
			return tx.AppendAudit(ctx, audit)
		})

	default: // Allow
		msg.Status = domain.MessageStatusApproved
		err = p.store.AppendMessage(ctx, msg)
	}
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "message persistence failed", 503)
	}

	// Step 6: broadcast only after persistence succeeded.
	event := ports.ServerEvent{
		Event:     ports.EventMessage,
		Namespace: req.Namespace,
		Channel:   channel.Slug,
		Payload:   msg,
	}
	if err := p.broadcaster.BroadcastToChannel(req.Namespace, channel.Slug, event); err != nil {
		p.logger.Warnw("broadcast failed after persist",
			"channel", channel.Slug,
			"message_id", msg.ID,
			"error", err,
		)
	}

	return msg, nil
}

// ListRecent returns the latest persisted messages for a channel, capped at
// the store's page limit.
func (p *PublishPipeline) ListRecent(ctx context.Context, actor *domain.Actor, channelSlug string, limit int) ([]*domain.Message, error) {
	channel, err := p.catalog.Channel(channelSlug)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("unknown channel")
	}
	if !channel.CanAccess(actor) {
		return nil, apperrors.NewForbiddenError("channel access denied")
	}
	if limit <= 0 || limit > ports.ListRecentMaxLimit {
		limit = ports.ListRecentMaxLimit
	}
	msgs, err := p.store.ListRecent(ctx, channel.Slug, limit)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "message listing failed", 503)
	}
	return msgs, nil
}

// Acknowledge advances the actor's read marker for a channel. Mute state on
// the participant row is preserved.
func (p *PublishPipeline) Acknowledge(ctx context.Context, actor *domain.Actor, channelSlug string) error {
	channel, err := p.catalog.Channel(channelSlug)
	if err != nil {
		return apperrors.NewInvalidInputError("unknown channel")
	}
	if !channel.CanAccess(actor) {
		return apperrors.NewForbiddenError("channel access denied")
	}

	participant, err := p.store.GetParticipant(ctx, channel.Slug, actor.ID)
	if errors.Is(err, domain.ErrParticipantNotFound) {
		participant = &domain.Participant{ActorID: actor.ID, ChannelSlug: channel.Slug}
	} else if err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "participant lookup failed", 503)
	}

	readAt := p.now()
	participant.LastReadAt = &readAt
	if err := p.store.UpdateParticipant(ctx, participant); err != nil {
		return apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "participant update failed", 503)
	}
	return nil
}

func (p *PublishPipeline) auditFor(channelSlug string, actorID domain.ActorID, action string, decision domain.ModerationDecision) *domain.AuditEvent {
	return &domain.AuditEvent{
		ID:          utils.GenerateAuditID(),
		ChannelSlug: channelSlug,
		ActorID:     actorID,
		Action:      action,
		Severity:    decision.Severity,
		Signals:     decision.Signals,
		CreatedAt:   p.now(),
	}
}

func normalizeMessageType(raw string) domain.MessageType {
	switch domain.MessageType(utils.NormalizeToken(raw)) {
	case domain.MessageTypeFile:
		return domain.MessageTypeFile
	case domain.MessageTypeEvent:
		return domain.MessageTypeEvent
	default:
		return domain.MessageTypeText
	}
}
