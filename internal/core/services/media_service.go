package services

import (
	"context"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"
	apperrors "relaygate/pkg/errors"

	"go.uber.org/zap"
)

// Credential kinds issued per media session.
const (
	CredentialKindTransport = "transport"
	CredentialKindMessaging = "messaging"
)

// MediaSessionBroker issues capacity-checked, time-boxed credentials for
// voice rooms. Credentials are issued before any room admission: an issuer
// failure must not leave an actor half-joined.
type MediaSessionBroker struct {
	catalog *Catalog
	roster  ports.RoomRoster
	issuer  ports.MediaTokenIssuer
	logger  *zap.SugaredLogger

	defaultTTL      time.Duration
	maxTTL          time.Duration
	maxParticipants int
}

// NewMediaSessionBroker wires the broker with namespace-level caps.
func NewMediaSessionBroker(
	catalog *Catalog,
	roster ports.RoomRoster,
	issuer ports.MediaTokenIssuer,
	defaultTTL, maxTTL time.Duration,
	maxParticipants int,
	logger *zap.SugaredLogger,
) *MediaSessionBroker {
	return &MediaSessionBroker{
		catalog:         catalog,
		roster:          roster,
		issuer:          issuer,
		logger:          logger,
		defaultTTL:      defaultTTL,
		maxTTL:          maxTTL,
		maxParticipants: maxParticipants,
	}
}

// Issue validates access and occupancy, then obtains one credential per leg
// (transport + messaging). The caller joins the room only after a successful
// return.
func (b *MediaSessionBroker) Issue(ctx context.Context, roomSlug string, actor *domain.Actor, role string, ttl time.Duration) ([]*domain.MediaCredential, error) {
	room, err := b.catalog.Room(roomSlug)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("unknown room")
	}
	if !room.CanAccess(actor) {
		return nil, apperrors.NewForbiddenError("room access denied")
	}

	cap := room.MaxParticipants
	if b.maxParticipants < cap {
		cap = b.maxParticipants
	}
	if b.roster.Occupancy(domain.NamespaceVoice, room.Slug) >= cap {
		return nil, apperrors.NewRoomFullError(room.Slug)
	}

	if ttl <= 0 {
		ttl = b.defaultTTL
	}
	if ttl > b.maxTTL {
		ttl = b.maxTTL
	}

	kinds := []string{CredentialKindTransport, CredentialKindMessaging}
	creds := make([]*domain.MediaCredential, 0, len(kinds))
	for _, kind := range kinds {
		cred, err := b.issuer.Issue(ctx, kind, room.Slug, actor.ID, role, ttl)
		if err != nil {
			b.logger.Warnw("media credential issuance failed",
				"room", room.Slug,
				"actor_id", actor.ID,
				"kind", kind,
				"error", err,
			)
			return nil, apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "media credential issuance failed", 503)
		}
		creds = append(creds, cred)
	}

	return creds, nil
}
