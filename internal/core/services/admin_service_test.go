package services

import (
	"context"
	"testing"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"
	"relaygate/internal/infrastructure/repositories/memory"
	apperrors "relaygate/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newAdminFixture(t *testing.T) (*ModerationAdmin, *memory.MemoryMessageStore, *recordingBroadcaster) {
	t.Helper()
	store := memory.NewMemoryMessageStore()
	broadcaster := &recordingBroadcaster{}
	admin := NewModerationAdmin(DefaultCatalog(), store, broadcaster, zaptest.NewLogger(t).Sugar())
	return admin, store, broadcaster
}

func moderatorActor() *domain.Actor {
	return domain.NewActor("mod_1", []string{"moderator"}, nil)
}

func TestMuteParticipant_RequiresModerationPrivileges(t *testing.T) {
	admin, _, _ := newAdminFixture(t)

	plain := domain.NewActor("user_1", []string{"freelancer"}, nil)
	err := admin.MuteParticipant(context.Background(), plain, "general", "user_2", time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.CodeOf(err))
}

func TestMuteParticipant_PersistsMuteAndAudit(t *testing.T) {
	admin, store, broadcaster := newAdminFixture(t)
	ctx := context.Background()

	until := time.Now().Add(30 * time.Minute)
	err := admin.MuteParticipant(ctx, moderatorActor(), "general", "user_2", until)
	require.NoError(t, err)

	participant, err := store.GetParticipant(ctx, "general", "user_2")
	require.NoError(t, err)
	require.NotNil(t, participant.MutedUntil)
	assert.True(t, participant.MutedAt(time.Now()))

	audits := store.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, "muted", audits[0].Action)
	assert.Equal(t, "user_2", audits[0].TargetID)
	assert.Equal(t, domain.ActorID("mod_1"), audits[0].ActorID)

	require.Equal(t, 1, broadcaster.count())
	assert.Equal(t, ports.EventModeration, broadcaster.last().Event)
}

func TestMuteParticipant_PastDeadlineRejected(t *testing.T) {
	admin, store, _ := newAdminFixture(t)

	err := admin.MuteParticipant(context.Background(), moderatorActor(), "general", "user_2", time.Now().Add(-time.Minute))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
	assert.Empty(t, store.Audits())
}

func TestRemoveMessage_RemovesRowAndAudits(t *testing.T) {
	admin, store, _ := newAdminFixture(t)
	ctx := context.Background()

	msg := &domain.Message{
		ID:          "msg_1",
		ThreadID:    "thread_1",
		ChannelSlug: "general",
		SenderID:    "user_2",
		Body:        "offending content",
		Type:        domain.MessageTypeText,
		Status:      domain.MessageStatusApproved,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, store.AppendMessage(ctx, msg))

	err := admin.RemoveMessage(ctx, moderatorActor(), "general", "msg_1", "spam")
	require.NoError(t, err)

	remaining, err := store.ListRecent(ctx, "general", 10)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	audits := store.Audits()
	require.Len(t, audits, 1)
	assert.Equal(t, "message_removed", audits[0].Action)
	assert.Equal(t, "spam", audits[0].Reason)
}

func TestRemoveMessage_UnknownMessage_NotFound(t *testing.T) {
	admin, store, _ := newAdminFixture(t)

	err := admin.RemoveMessage(context.Background(), moderatorActor(), "general", "ghost", "spam")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
	assert.Empty(t, store.Audits(), "failed removal must not leave an audit row")
}
