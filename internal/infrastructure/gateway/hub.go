package gateway

import (
	"sync"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"

	"go.uber.org/zap"
)

type roomKey struct {
	namespace domain.Namespace
	slug      string
}

// Hub tracks which sessions are joined to which channel rooms on this
// instance and fans events out to them. It implements both the Broadcaster
// and RoomRoster ports.
type Hub struct {
	mu    sync.RWMutex
	rooms map[roomKey]map[domain.ConnectionID]*Session

	logger *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		rooms:  make(map[roomKey]map[domain.ConnectionID]*Session),
		logger: logger,
	}
}

// Join adds the session to the room, then announces the join. The membership
// mutation always precedes the announcement, and the announcement goes to the
// other members only, never back to the joining session.
func (h *Hub) Join(namespace domain.Namespace, slug string, s *Session) {
	key := roomKey{namespace: namespace, slug: slug}

	h.mu.Lock()
	room, ok := h.rooms[key]
	if !ok {
		room = make(map[domain.ConnectionID]*Session)
		h.rooms[key] = room
	}
	room[s.meta.ID] = s
	h.mu.Unlock()

	h.announce(namespace, slug, s.meta.ActorID, "joined", s.meta.ID)
}

// Leave removes the session from the room and announces the departure. A
// leave for a room the session never joined is a no-op.
func (h *Hub) Leave(namespace domain.Namespace, slug string, s *Session) {
	key := roomKey{namespace: namespace, slug: slug}

	h.mu.Lock()
	room, ok := h.rooms[key]
	if ok {
		if _, member := room[s.meta.ID]; !member {
			ok = false
		}
		delete(room, s.meta.ID)
		if len(room) == 0 {
			delete(h.rooms, key)
		}
	}
	h.mu.Unlock()

	if ok {
		h.announce(namespace, slug, s.meta.ActorID, "left", s.meta.ID)
	}
}

// RemoveSession drops the session from every room it joined, announcing each
// departure. Used on disconnect and eviction.
func (h *Hub) RemoveSession(s *Session) {
	var left []roomKey

	h.mu.Lock()
	for key, room := range h.rooms {
		if _, member := room[s.meta.ID]; member {
			delete(room, s.meta.ID)
			if len(room) == 0 {
				delete(h.rooms, key)
			}
			left = append(left, key)
		}
	}
	h.mu.Unlock()

	for _, key := range left {
		h.announce(key.namespace, key.slug, s.meta.ActorID, "left", s.meta.ID)
	}
}

// BroadcastToChannel delivers the event to every session in the room. Send
// failures are logged per session and never abort the fanout.
func (h *Hub) BroadcastToChannel(namespace domain.Namespace, channelSlug string, event ports.ServerEvent) error {
	h.broadcastExcept(namespace, channelSlug, event, "")
	return nil
}

func (h *Hub) broadcastExcept(namespace domain.Namespace, channelSlug string, event ports.ServerEvent, exclude domain.ConnectionID) {
	h.mu.RLock()
	room := h.rooms[roomKey{namespace: namespace, slug: channelSlug}]
	sessions := make([]*Session, 0, len(room))
	for id, s := range room {
		if id == exclude {
			continue
		}
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if err := s.Send(event); err != nil {
			h.logger.Debugw("broadcast delivery failed",
				"namespace", namespace,
				"channel", channelSlug,
				"connection_id", s.meta.ID,
				"error", err,
			)
		}
	}
}

// Occupancy reports how many sessions are currently joined to the room on
// this instance.
func (h *Hub) Occupancy(namespace domain.Namespace, roomSlug string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomKey{namespace: namespace, slug: roomSlug}])
}

// IsJoined reports whether the session is currently a member of the room.
func (h *Hub) IsJoined(namespace domain.Namespace, slug string, connID domain.ConnectionID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[roomKey{namespace: namespace, slug: slug}]
	if !ok {
		return false
	}
	_, member := room[connID]
	return member
}

func (h *Hub) announce(namespace domain.Namespace, slug string, actorID domain.ActorID, action string, origin domain.ConnectionID) {
	h.broadcastExcept(namespace, slug, ports.ServerEvent{
		Event:     ports.EventPresence,
		Namespace: namespace,
		Channel:   slug,
		Payload: ports.PresencePayload{
			ActorID: actorID,
			Action:  action,
			At:      time.Now().UTC().Format(time.RFC3339),
		},
	}, origin)
}
