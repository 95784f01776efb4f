package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"
	"relaygate/internal/infrastructure/repositories/memory"
	"relaygate/pkg/circuitbreaker"
	apperrors "relaygate/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type publishFixture struct {
	pipeline    *PublishPipeline
	store       *memory.MemoryMessageStore
	moderator   *scriptedModerator
	broadcaster *recordingBroadcaster
	limiter     *SlidingWindowLimiter
}

func newPublishFixture(t *testing.T, moderator *scriptedModerator) *publishFixture {
	t.Helper()

	store := memory.NewMemoryMessageStore()
	broadcaster := &recordingBroadcaster{}
	limiter := NewSlidingWindowLimiter(100, time.Minute)
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())

	pipeline := NewPublishPipeline(
		DefaultCatalog(),
		limiter,
		store,
		moderator,
		breaker,
		broadcaster,
		zaptest.NewLogger(t).Sugar(),
	)

	return &publishFixture{
		pipeline:    pipeline,
		store:       store,
		moderator:   moderator,
		broadcaster: broadcaster,
		limiter:     limiter,
	}
}

func publishReq(body string) PublishRequest {
	return PublishRequest{
		Actor:       domain.NewActor("user_1", []string{"freelancer"}, nil),
		Namespace:   domain.NamespaceChat,
		ChannelSlug: "general",
		Body:        body,
	}
}

func TestPublish_AllowVerdict_PersistsAndBroadcasts(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{decision: domain.ModerationDecision{Verdict: domain.VerdictAllow}})

	msg, err := f.pipeline.Publish(context.Background(), publishReq("hello everyone"))
	require.NoError(t, err)
	require.NotNil(t, msg)

	assert.Equal(t, domain.MessageStatusApproved, msg.Status)
	assert.Equal(t, "hello everyone", msg.Body)
	assert.Equal(t, domain.MessageTypeText, msg.Type)

	stored, err := f.store.ListRecent(context.Background(), "general", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	require.Equal(t, 1, f.broadcaster.count())
	event := f.broadcaster.last()
	assert.Equal(t, ports.EventMessage, event.Event)
	assert.Equal(t, "general", event.Channel)
}

func TestPublish_BlockVerdict_NoMessageRow_AuditOnly(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{decision: domain.ModerationDecision{
		Verdict:  domain.VerdictBlock,
		Severity: 1.0,
		Signals:  []string{"scam"},
	}})

	msg, err := f.pipeline.Publish(context.Background(), publishReq("buy my scam"))
	require.Error(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, apperrors.ErrCodePolicyViolation, apperrors.CodeOf(err))

	stored, err := f.store.ListRecent(context.Background(), "general", 10)
	require.NoError(t, err)
	assert.Empty(t, stored, "blocked message must not be persisted")

	audits := f.store.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, "blocked", audits[0].Action)
	assert.Equal(t, []string{"scam"}, audits[0].Signals)

	assert.Zero(t, f.broadcaster.count(), "blocked message must not be broadcast")
}

func TestPublish_ReviewVerdict_PendingRowPlusAudit(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{decision: domain.ModerationDecision{
		Verdict:  domain.VerdictReview,
		Severity: 0.5,
	}})

	msg, err := f.pipeline.Publish(context.Background(), publishReq("borderline content"))
	require.NoError(t, err)
	assert.Equal(t, domain.MessageStatusPendingReview, msg.Status)

	stored, err := f.store.ListRecent(context.Background(), "general", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.MessageStatusPendingReview, stored[0].Status)

	audits := f.store.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, "flagged", audits[0].Action)
	assert.Equal(t, string(msg.ID), audits[0].TargetID)

	assert.Equal(t, 1, f.broadcaster.count(), "review verdict still broadcasts")
}

func TestPublish_OverlengthBody_RejectedBeforeModeration(t *testing.T) {
	moderator := &scriptedModerator{decision: domain.ModerationDecision{Verdict: domain.VerdictAllow}}
	f := newPublishFixture(t, moderator)

	_, err := f.pipeline.Publish(context.Background(), publishReq(strings.Repeat("x", 6000)))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
	assert.Zero(t, moderator.calls, "moderator must not be consulted for invalid input")
}

func TestPublish_EmptyBody_Invalid(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{decision: domain.ModerationDecision{Verdict: domain.VerdictAllow}})

	for _, body := range []string{"", "   ", "\x00\x01"} {
		_, err := f.pipeline.Publish(context.Background(), publishReq(body))
		require.Error(t, err, "body %q", body)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
	}
}

func TestPublish_UnknownChannel_Invalid(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{decision: domain.ModerationDecision{Verdict: domain.VerdictAllow}})

	req := publishReq("hello")
	req.ChannelSlug = "no-such-channel"
	_, err := f.pipeline.Publish(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
}

func TestPublish_AccessDenied_Forbidden(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{decision: domain.ModerationDecision{Verdict: domain.VerdictAllow}})

	req := publishReq("hello ops")
	req.ChannelSlug = "project-ops" // freelancer role is not allowed here
	_, err := f.pipeline.Publish(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.CodeOf(err))
}

func TestPublish_MutedActor_Forbidden(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{decision: domain.ModerationDecision{Verdict: domain.VerdictAllow}})

	until := time.Now().Add(time.Hour)
	err := f.store.UpdateParticipant(context.Background(), &domain.Participant{
		ActorID:     "user_1",
		ChannelSlug: "general",
		MutedUntil:  &until,
	})
	require.NoError(t, err)

	_, err = f.pipeline.Publish(context.Background(), publishReq("still here"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.CodeOf(err))
}

func TestPublish_ExpiredMute_Admits(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{decision: domain.ModerationDecision{Verdict: domain.VerdictAllow}})

	until := time.Now().Add(-time.Minute)
	require.NoError(t, f.store.UpdateParticipant(context.Background(), &domain.Participant{
		ActorID:     "user_1",
		ChannelSlug: "general",
		MutedUntil:  &until,
	}))

	_, err := f.pipeline.Publish(context.Background(), publishReq("mute expired"))
	assert.NoError(t, err)
}

func TestPublish_RateLimited(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{decision: domain.ModerationDecision{Verdict: domain.VerdictAllow}})

	// Exhaust the pair's window out of band.
	for i := 0; i < 100; i++ {
		f.limiter.Admit("user_1", "general")
	}

	_, err := f.pipeline.Publish(context.Background(), publishReq("one too many"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRateLimit, apperrors.CodeOf(err))
}

func TestPublish_ModeratorOutage_FailsClosed(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{err: errors.New("moderation backend down")})

	msg, err := f.pipeline.Publish(context.Background(), publishReq("anything"))
	require.Error(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, apperrors.ErrCodeServiceUnavailable, apperrors.CodeOf(err))

	stored, _ := f.store.ListRecent(context.Background(), "general", 10)
	assert.Empty(t, stored, "no message may persist when moderation is unavailable")
	assert.Zero(t, f.broadcaster.count())
}

func TestPublish_NormalizesTypeAndBody(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{decision: domain.ModerationDecision{Verdict: domain.VerdictAllow}})

	req := publishReq("  padded body  ")
	req.Type = "SPREADSHEET" // not in the allow-list
	msg, err := f.pipeline.Publish(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "padded body", msg.Body)
	assert.Equal(t, domain.MessageTypeText, msg.Type)

	req = publishReq("report.pdf")
	req.Type = "File"
	msg, err = f.pipeline.Publish(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeFile, msg.Type)
}

func TestListRecent_ChecksAccessAndClampsLimit(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{decision: domain.ModerationDecision{Verdict: domain.VerdictAllow}})
	ctx := context.Background()

	_, err := f.pipeline.Publish(ctx, publishReq("first"))
	require.NoError(t, err)

	freelancer := domain.NewActor("user_1", []string{"freelancer"}, nil)

	msgs, err := f.pipeline.ListRecent(ctx, freelancer, "general", -5)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, err = f.pipeline.ListRecent(ctx, freelancer, "project-ops", 10)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.CodeOf(err))
}

func TestAcknowledge_SetsReadMarkerAndKeepsMute(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{decision: domain.ModerationDecision{Verdict: domain.VerdictAllow}})
	ctx := context.Background()
	freelancer := domain.NewActor("user_1", []string{"freelancer"}, nil)

	require.NoError(t, f.pipeline.Acknowledge(ctx, freelancer, "general"))

	p, err := f.store.GetParticipant(ctx, "general", freelancer.ID)
	require.NoError(t, err)
	require.NotNil(t, p.LastReadAt)

	// A later ack must not wipe an existing mute.
	until := time.Now().Add(time.Hour)
	p.MutedUntil = &until
	require.NoError(t, f.store.UpdateParticipant(ctx, p))

	require.NoError(t, f.pipeline.Acknowledge(ctx, freelancer, "general"))
	p, err = f.store.GetParticipant(ctx, "general", freelancer.ID)
	require.NoError(t, err)
	require.NotNil(t, p.MutedUntil)
	assert.True(t, p.MutedUntil.After(time.Now()))
}

func TestAcknowledge_ChecksAccess(t *testing.T) {
	f := newPublishFixture(t, &scriptedModerator{decision: domain.ModerationDecision{Verdict: domain.VerdictAllow}})
	freelancer := domain.NewActor("user_1", []string{"freelancer"}, nil)

	err := f.pipeline.Acknowledge(context.Background(), freelancer, "project-ops")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.CodeOf(err))

	err = f.pipeline.Acknowledge(context.Background(), freelancer, "no-such-channel")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
}
