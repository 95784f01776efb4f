package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"

	"go.uber.org/zap"
)

// SupersededNotice is sent to an evicted connection before its transport is
// closed.
const SupersededNotice = "connection superseded by a newer session"

type registeredConn struct {
	meta      domain.ConnectionMeta
	transport ports.ClientTransport
}

// actorEntry serializes all registry mutations for one actor. seq orders
// presence snapshots so a slow write can never clobber a newer one.
type actorEntry struct {
	mu    sync.Mutex
	conns []*registeredConn
	seq   uint64

	writeMu     sync.Mutex
	lastWritten uint64
}

// ConnectionRegistry tracks live connections per actor and enforces the
// max-concurrent-connections policy by evicting the oldest connection, never
// by rejecting the new one. Every register/unregister publishes exactly one
// presence summary for the actor; presence is best-effort and never blocks
// admission.
type ConnectionRegistry struct {
	mu     sync.Mutex
	actors map[domain.ActorID]*actorEntry

	maxPerActor int
	presence    ports.PresenceBackend
	logger      *zap.SugaredLogger

	onEvict func(meta domain.ConnectionMeta)
}

// NewConnectionRegistry builds a registry with the given per-actor cap.
func NewConnectionRegistry(maxPerActor int, presence ports.PresenceBackend, logger *zap.SugaredLogger) *ConnectionRegistry {
	if maxPerActor <= 0 {
		maxPerActor = 1
	}
	return &ConnectionRegistry{
		actors:      make(map[domain.ActorID]*actorEntry),
		maxPerActor: maxPerActor,
		presence:    presence,
		logger:      logger,
	}
}

// OnEvict installs a hook invoked for every evicted connection (metrics).
func (r *ConnectionRegistry) OnEvict(fn func(meta domain.ConnectionMeta)) {
	r.onEvict = fn
}

func (r *ConnectionRegistry) entry(actorID domain.ActorID) *actorEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.actors[actorID]
	if !ok {
		e = &actorEntry{}
		r.actors[actorID] = e
	}
	return e
}

// Register admits a connection for the actor. If the actor is at the cap the
// single oldest connection (by ConnectedAt) is notified and closed first; the
// new connection always wins.
func (r *ConnectionRegistry) Register(ctx context.Context, meta domain.ConnectionMeta, transport ports.ClientTransport) {
	e := r.entry(meta.ActorID)

	var evicted []*registeredConn

	e.mu.Lock()
	for len(e.conns) >= r.maxPerActor {
		oldest := 0
		for i, rc := range e.conns {
			if rc.meta.ConnectedAt.Before(e.conns[oldest].meta.ConnectedAt) {
				oldest = i
			}
		}
		evicted = append(evicted, e.conns[oldest])
		e.conns = append(e.conns[:oldest], e.conns[oldest+1:]...)
	}
	e.conns = append(e.conns, &registeredConn{meta: meta, transport: transport})
	e.seq++
	seq := e.seq
	snapshot := snapshotLocked(e)
	e.mu.Unlock()

	for _, rc := range evicted {
		if rc.transport != nil {
			if err := rc.transport.SendNotice("connection", SupersededNotice); err != nil {
				r.logger.Debugw("failed to deliver superseded notice",
					"actor_id", rc.meta.ActorID,
					"connection_id", rc.meta.ID,
					"error", err,
				)
			}
			if err := rc.transport.Close("superseded"); err != nil {
				r.logger.Debugw("failed to close evicted transport",
					"actor_id", rc.meta.ActorID,
					"connection_id", rc.meta.ID,
					"error", err,
				)
			}
		}
		if r.onEvict != nil {
			r.onEvict(rc.meta)
		}
		r.logger.Infow("evicted oldest connection",
			"actor_id", rc.meta.ActorID,
			"connection_id", rc.meta.ID,
		)
		if err := r.presence.TrackLeave(ctx, rc.meta.ActorID, rc.meta, "superseded"); err != nil {
			r.logger.Warnw("presence leave write failed", "actor_id", rc.meta.ActorID, "error", err)
		}
	}

	if err := r.presence.TrackJoin(ctx, meta.ActorID, meta); err != nil {
		r.logger.Warnw("presence join write failed", "actor_id", meta.ActorID, "error", err)
	}
	r.writeSummary(ctx, e, meta.ActorID, snapshot, seq)
}

// Unregister removes the connection. An empty remaining set drops the actor
// entry and publishes an offline (empty) presence summary.
func (r *ConnectionRegistry) Unregister(ctx context.Context, actorID domain.ActorID, connID domain.ConnectionID, reason string) {
	r.mu.Lock()
	e, ok := r.actors[actorID]
	r.mu.Unlock()
	if !ok {
		return
	}

	var removed *registeredConn

	e.mu.Lock()
	for i, rc := range e.conns {
		if rc.meta.ID == connID {
			removed = rc
			e.conns = append(e.conns[:i], e.conns[i+1:]...)
			break
		}
	}
	if removed == nil {
		e.mu.Unlock()
		return
	}
	e.seq++
	seq := e.seq
	snapshot := snapshotLocked(e)
	empty := len(e.conns) == 0
	e.mu.Unlock()

	if empty {
		// Re-check under both locks: a concurrent register may have revived
		// the entry.
		r.mu.Lock()
		e.mu.Lock()
		if len(e.conns) == 0 {
			delete(r.actors, actorID)
		}
		e.mu.Unlock()
		r.mu.Unlock()
	}

	if err := r.presence.TrackLeave(ctx, actorID, removed.meta, reason); err != nil {
		r.logger.Warnw("presence leave write failed", "actor_id", actorID, "error", err)
	}
	r.writeSummary(ctx, e, actorID, snapshot, seq)
}

// writeSummary publishes the actor's presence snapshot. Writes serialize per
// actor through writeMu, never under the connection-set lock, and a snapshot
// older than the last successful write is dropped rather than applied.
func (r *ConnectionRegistry) writeSummary(ctx context.Context, e *actorEntry, actorID domain.ActorID, snapshot []domain.ConnectionMeta, seq uint64) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if seq <= e.lastWritten {
		return
	}

	record := &domain.PresenceRecord{
		ActorID:     actorID,
		Connections: snapshot,
		UpdatedAt:   time.Now(),
	}
	if err := r.presence.SetSummary(ctx, record); err != nil {
		r.logger.Warnw("presence summary write failed",
			"actor_id", actorID,
			"connections", len(snapshot),
			"error", err,
		)
		return
	}
	e.lastWritten = seq
}

func snapshotLocked(e *actorEntry) []domain.ConnectionMeta {
	out := make([]domain.ConnectionMeta, 0, len(e.conns))
	for _, rc := range e.conns {
		out = append(out, rc.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// ActiveConnections returns a snapshot of the actor's live connections,
// oldest first.
func (r *ConnectionRegistry) ActiveConnections(actorID domain.ActorID) []domain.ConnectionMeta {
	r.mu.Lock()
	e, ok := r.actors[actorID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshotLocked(e)
}

// ConnectedActorCount returns the number of actors with at least one live
// connection.
func (r *ConnectionRegistry) ConnectedActorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// ActiveConnectionCount returns the total number of live connections.
func (r *ConnectionRegistry) ActiveConnectionCount() int {
	r.mu.Lock()
	entries := make([]*actorEntry, 0, len(r.actors))
	for _, e := range r.actors {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	total := 0
	for _, e := range entries {
		e.mu.Lock()
		total += len(e.conns)
		e.mu.Unlock()
	}
	return total
}
