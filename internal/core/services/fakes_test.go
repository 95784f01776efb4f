package services

import (
	"context"
	"sync"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"
)

// fakePresence counts writes so tests can assert on the exactly-one-summary
// contract.
type fakePresence struct {
	mu        sync.Mutex
	joins     int
	leaves    int
	summaries []*domain.PresenceRecord
	setErr    error
}

func (f *fakePresence) TrackJoin(ctx context.Context, actorID domain.ActorID, meta domain.ConnectionMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	return nil
}

func (f *fakePresence) TrackLeave(ctx context.Context, actorID domain.ActorID, meta domain.ConnectionMeta, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	return nil
}

func (f *fakePresence) SetSummary(ctx context.Context, record *domain.PresenceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.summaries = append(f.summaries, record)
	return nil
}

func (f *fakePresence) GetSummary(ctx context.Context, actorID domain.ActorID) (*domain.PresenceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.summaries) == 0 {
		return &domain.PresenceRecord{ActorID: actorID}, nil
	}
	return f.summaries[len(f.summaries)-1], nil
}

func (f *fakePresence) summaryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.summaries)
}

func (f *fakePresence) lastSummary() *domain.PresenceRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.summaries) == 0 {
		return nil
	}
	return f.summaries[len(f.summaries)-1]
}

// fakeTransport records notices and closes delivered to a connection.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []interface{}
	notices []string
	closed  bool
	reason  string
}

func (f *fakeTransport) Send(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeTransport) SendNotice(scope, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, message)
	return nil
}

func (f *fakeTransport) Close(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.reason = reason
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) lastNotice() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.notices) == 0 {
		return ""
	}
	return f.notices[len(f.notices)-1]
}

// scriptedModerator returns a fixed decision or error.
type scriptedModerator struct {
	decision domain.ModerationDecision
	err      error
	calls    int
}

func (m *scriptedModerator) Evaluate(ctx context.Context, body string, mctx ports.ModerationContext) (domain.ModerationDecision, error) {
	m.calls++
	if m.err != nil {
		return domain.ModerationDecision{}, m.err
	}
	return m.decision, nil
}

// recordingBroadcaster captures fanned-out events.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []ports.ServerEvent
}

func (b *recordingBroadcaster) BroadcastToChannel(namespace domain.Namespace, channelSlug string, event ports.ServerEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func (b *recordingBroadcaster) last() *ports.ServerEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	return &b.events[len(b.events)-1]
}

// fixedRoster reports a constant room occupancy.
type fixedRoster struct {
	occupancy int
}

func (r *fixedRoster) Occupancy(namespace domain.Namespace, roomSlug string) int {
	return r.occupancy
}

// scriptedIssuer returns deterministic credentials or a scripted error.
type scriptedIssuer struct {
	err  error
	ttls []time.Duration
}

func (i *scriptedIssuer) Issue(ctx context.Context, kind, room string, identity domain.ActorID, role string, ttl time.Duration) (*domain.MediaCredential, error) {
	if i.err != nil {
		return nil, i.err
	}
	i.ttls = append(i.ttls, ttl)
	return &domain.MediaCredential{
		Kind:      kind,
		Token:     "token-" + kind,
		Room:      room,
		Identity:  identity,
		Role:      role,
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}
