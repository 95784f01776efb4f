package memory

import (
	"context"
	"sync"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"
	"relaygate/pkg/utils"
)

type participantKey struct {
	channel string
	actorID domain.ActorID
}

// MemoryMessageStore is the single-node MessageStore used for tests and
// standalone deployments. RunInTransaction runs the callback against a deep
// staging copy that replaces live state only when it returns nil. Every
// mutation takes txMu first, so a direct write can never land between the
// staging copy and the swap and be silently discarded.
type MemoryMessageStore struct {
	txMu         sync.Mutex
	mu           sync.RWMutex
	threads      map[string]*domain.Thread // keyed by channel slug
	messages     map[string][]*domain.Message
	participants map[participantKey]*domain.Participant
	audits       []*domain.AuditEvent
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{
		threads:      make(map[string]*domain.Thread),
		messages:     make(map[string][]*domain.Message),
		participants: make(map[participantKey]*domain.Participant),
	}
}

func (s *MemoryMessageStore) FindOrCreateThread(ctx context.Context, channelSlug string) (*domain.Thread, error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findOrCreateThreadLocked(channelSlug), nil
}

func (s *MemoryMessageStore) findOrCreateThreadLocked(channelSlug string) *domain.Thread {
	if t, ok := s.threads[channelSlug]; ok {
		return t
	}
	t := &domain.Thread{
		ID:          domain.ThreadID(utils.GenerateID("thread")),
		ChannelSlug: channelSlug,
		CreatedAt:   time.Now(),
	}
	s.threads[channelSlug] = t
	return t
}

func (s *MemoryMessageStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendMessageLocked(msg)
	return nil
}

func (s *MemoryMessageStore) appendMessageLocked(msg *domain.Message) {
	s.messages[msg.ChannelSlug] = append(s.messages[msg.ChannelSlug], msg)

	thread := s.findOrCreateThreadLocked(msg.ChannelSlug)
	thread.LastMessagePreview = utils.TruncateRunes(msg.Body, 120)
	thread.LastMessageAt = msg.CreatedAt
}

func (s *MemoryMessageStore) ListRecent(ctx context.Context, channelSlug string, limit int) ([]*domain.Message, error) {
	if limit <= 0 || limit > ports.ListRecentMaxLimit {
		limit = ports.ListRecentMaxLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[channelSlug]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryMessageStore) GetParticipant(ctx context.Context, channelSlug string, actorID domain.ActorID) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[participantKey{channel: channelSlug, actorID: actorID}]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *MemoryMessageStore) UpdateParticipant(ctx context.Context, p *domain.Participant) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *p
	s.participants[participantKey{channel: p.ChannelSlug, actorID: p.ActorID}] = &clone
	return nil
}

func (s *MemoryMessageStore) RemoveMessage(ctx context.Context, channelSlug string, id domain.MessageID) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[channelSlug]
	for i, m := range msgs {
		if m.ID == id {
			s.messages[channelSlug] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return domain.ErrMessageNotFound
}

func (s *MemoryMessageStore) CountParticipants(ctx context.Context, channelSlug string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.participants {
		if key.channel == channelSlug {
			count++
		}
	}
	return count, nil
}

func (s *MemoryMessageStore) CountMessages(ctx context.Context, channelSlug string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages[channelSlug]), nil
}

func (s *MemoryMessageStore) AppendAudit(ctx context.Context, ev *domain.AuditEvent) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *ev
	s.audits = append(s.audits, &clone)
	return nil
}

// Audits returns a snapshot of recorded audit events, newest last.
func (s *MemoryMessageStore) Audits() []*domain.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.AuditEvent, len(s.audits))
	copy(out, s.audits)
	return out
}

// RunInTransaction applies fn to a staging copy and swaps it in only on
// success, so the mutation and its audit record commit or roll back together.
// Direct writes block on txMu until the transaction settles; the staging copy
// is therefore never stale at swap time.
func (s *MemoryMessageStore) RunInTransaction(ctx context.Context, fn func(tx ports.MessageStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	staged := s.cloneLocked()
	s.mu.Unlock()

	if err := fn(staged); err != nil {
		return err
	}

	s.mu.Lock()
	s.threads = staged.threads
	s.messages = staged.messages
	s.participants = staged.participants
	s.audits = staged.audits
	s.mu.Unlock()
	return nil
}

func (s *MemoryMessageStore) cloneLocked() *MemoryMessageStore {
	clone := NewMemoryMessageStore()
	for slug, t := range s.threads {
		tc := *t
		clone.threads[slug] = &tc
	}
	for slug, msgs := range s.messages {
		clone.messages[slug] = append([]*domain.Message(nil), msgs...)
	}
	for key, p := range s.participants {
		pc := *p
		clone.participants[key] = &pc
	}
	clone.audits = append([]*domain.AuditEvent(nil), s.audits...)
	return clone
}
