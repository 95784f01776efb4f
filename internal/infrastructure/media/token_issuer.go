package media

import (
	"context"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialClaims is the claim set signed into media-session tokens.
type CredentialClaims struct {
	Room string `json:"room"`
	Role string `json:"role"`
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

// JWTTokenIssuer signs HS256 media credentials with a dedicated secret,
// separate from the gateway access-token secret.
type JWTTokenIssuer struct {
	secret []byte
}

func NewJWTTokenIssuer(secret string) ports.MediaTokenIssuer {
	return &JWTTokenIssuer{secret: []byte(secret)}
}

func (i *JWTTokenIssuer) Issue(ctx context.Context, kind, room string, identity domain.ActorID, role string, ttl time.Duration) (*domain.MediaCredential, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := &CredentialClaims{
		Room: room,
		Role: role,
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(identity),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, err
	}

	return &domain.MediaCredential{
		Kind:      kind,
		Token:     token,
		Room:      room,
		Identity:  identity,
		Role:      role,
		ExpiresAt: expiresAt,
	}, nil
}
