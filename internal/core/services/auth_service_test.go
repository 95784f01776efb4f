package services

import (
	"errors"
	"testing"
	"time"

	"relaygate/internal/core/domain"
)

const testSecret = "unit-test-secret"

func TestResolve_ValidToken(t *testing.T) {
	token, err := MintToken(testSecret, "user_42", []string{"Freelancer", "Company"}, []string{"Community:Moderate"}, time.Hour)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}

	auth := NewJWTAuthenticator(testSecret)
	actor, err := auth.Resolve(Handshake{BearerToken: token, RemoteAddr: "10.0.0.1:1234"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if actor.ID != "user_42" {
		t.Errorf("expected actor id user_42, got %s", actor.ID)
	}
	if !actor.Roles.Contains("freelancer") || !actor.Roles.Contains("company") {
		t.Errorf("expected normalized roles, got %v", actor.Roles.Values())
	}
	if !actor.Permissions.Contains("community:moderate") {
		t.Errorf("expected normalized permissions, got %v", actor.Permissions.Values())
	}
}

func TestResolve_MissingToken(t *testing.T) {
	auth := NewJWTAuthenticator(testSecret)

	_, err := auth.Resolve(Handshake{})
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestResolve_WrongSecret(t *testing.T) {
	token, err := MintToken("other-secret", "user_42", nil, nil, time.Hour)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}

	auth := NewJWTAuthenticator(testSecret)
	_, err = auth.Resolve(Handshake{BearerToken: token})
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestResolve_ExpiredToken(t *testing.T) {
	token, err := MintToken(testSecret, "user_42", nil, nil, -time.Minute)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}

	auth := NewJWTAuthenticator(testSecret)
	_, err = auth.Resolve(Handshake{BearerToken: token})
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestResolve_GarbageToken(t *testing.T) {
	auth := NewJWTAuthenticator(testSecret)

	_, err := auth.Resolve(Handshake{BearerToken: "not.a.jwt"})
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestResolve_MissingSubject(t *testing.T) {
	token, err := MintToken(testSecret, "", []string{"freelancer"}, nil, time.Hour)
	if err != nil {
		t.Fatalf("MintToken failed: %v", err)
	}

	auth := NewJWTAuthenticator(testSecret)
	_, err = auth.Resolve(Handshake{BearerToken: token})
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for empty subject, got %v", err)
	}
}

func TestResolve_ActorIDsStable(t *testing.T) {
	token, _ := MintToken(testSecret, "user_42", nil, nil, time.Hour)
	auth := NewJWTAuthenticator(testSecret)

	a1, err := auth.Resolve(Handshake{BearerToken: token})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	a2, err := auth.Resolve(Handshake{BearerToken: token})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if a1.ID != a2.ID || a1.ID != domain.ActorID("user_42") {
		t.Errorf("expected stable actor identity, got %s and %s", a1.ID, a2.ID)
	}
}
