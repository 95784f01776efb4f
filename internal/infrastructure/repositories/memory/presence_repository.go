package memory

import (
	"context"
	"sync"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"
)

// MemoryPresenceBackend is the single-instance presence store: a map guarded
// by one mutex, no TTL machinery.
type MemoryPresenceBackend struct {
	mu        sync.RWMutex
	details   map[domain.ActorID]map[domain.ConnectionID]domain.ConnectionMeta
	summaries map[domain.ActorID]*domain.PresenceRecord
}

func NewMemoryPresenceBackend() ports.PresenceBackend {
	return &MemoryPresenceBackend{
		details:   make(map[domain.ActorID]map[domain.ConnectionID]domain.ConnectionMeta),
		summaries: make(map[domain.ActorID]*domain.PresenceRecord),
	}
}

func (b *MemoryPresenceBackend) TrackJoin(ctx context.Context, actorID domain.ActorID, meta domain.ConnectionMeta) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conns, ok := b.details[actorID]
	if !ok {
		conns = make(map[domain.ConnectionID]domain.ConnectionMeta)
		b.details[actorID] = conns
	}
	conns[meta.ID] = meta
	return nil
}

func (b *MemoryPresenceBackend) TrackLeave(ctx context.Context, actorID domain.ActorID, meta domain.ConnectionMeta, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conns, ok := b.details[actorID]; ok {
		delete(conns, meta.ID)
		if len(conns) == 0 {
			delete(b.details, actorID)
		}
	}
	return nil
}

func (b *MemoryPresenceBackend) SetSummary(ctx context.Context, record *domain.PresenceRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(record.Connections) == 0 {
		delete(b.summaries, record.ActorID)
		return nil
	}

	clone := *record
	clone.Connections = append([]domain.ConnectionMeta(nil), record.Connections...)
	b.summaries[record.ActorID] = &clone
	return nil
}

func (b *MemoryPresenceBackend) GetSummary(ctx context.Context, actorID domain.ActorID) (*domain.PresenceRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	record, ok := b.summaries[actorID]
	if !ok {
		return &domain.PresenceRecord{ActorID: actorID, UpdatedAt: time.Now()}, nil
	}

	clone := *record
	clone.Connections = append([]domain.ConnectionMeta(nil), record.Connections...)
	return &clone, nil
}
