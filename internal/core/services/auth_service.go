package services

import (
	"errors"
	"time"

	"relaygate/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingToken = errors.New("missing token")
)

// Handshake is the inbound credential material extracted from an upgrade
// request.
type Handshake struct {
	BearerToken string
	RemoteAddr  string
}

// ActorAuthenticator resolves a handshake to an authenticated actor or
// rejects the connection.
type ActorAuthenticator interface {
	Resolve(hs Handshake) (*domain.Actor, error)
}

// ActorClaims is the JWT claim set carried by gateway access tokens.
type ActorClaims struct {
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

type jwtAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator builds an authenticator validating HS256 tokens signed
// with the shared gateway secret.
func NewJWTAuthenticator(secret string) ActorAuthenticator {
	return &jwtAuthenticator{secret: []byte(secret)}
}

func (a *jwtAuthenticator) Resolve(hs Handshake) (*domain.Actor, error) {
	if hs.BearerToken == "" {
		return nil, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(hs.BearerToken, &ActorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*ActorClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	// Normalization happens exactly once, here. Downstream code treats the
	// actor's sets as canonical.
	return domain.NewActor(domain.ActorID(claims.Subject), claims.Roles, claims.Permissions), nil
}

// MintToken signs an access token for the given identity. Used by tests and
// the local development tooling.
func MintToken(secret string, actorID domain.ActorID, roles, permissions []string, ttl time.Duration) (string, error) {
	claims := &ActorClaims{
		Roles:       roles,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(actorID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
