package httpapi

import (
	"context"
	"testing"
	"time"

	"kopipos/backend/internal/domain"
	"kopipos/backend/internal/store/memory"
)

func TestLoginIssuesParsableToken(t *testing.T) {
	auth := NewAuthManager("test-secret-test-secret-test-secret", time.Hour, memory.NewSeeded())

	resp, err := auth.Login(context.Background(), domain.LoginRequest{
		Username: "Admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor: %+v", actor)
	}
	if actor.SessionID == "" {
		t.Fatalf("expected a session id in the token")
	}
}

func TestEachLoginMintsNewSession(t *testing.T) {
	auth := NewAuthManager("test-secret-test-secret-test-secret", time.Hour, memory.NewSeeded())
	ctx := context.Background()

	first, err := auth.Login(ctx, domain.LoginRequest{Username: "sari", Password: "staff123"})
	if err != nil {
		t.Fatalf("first login failed: %v", err)
	}
	second, err := auth.Login(ctx, domain.LoginRequest{Username: "sari", Password: "staff123"})
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}

	a1, _ := auth.ParseToken(first.AccessToken)
	a2, _ := auth.ParseToken(second.AccessToken)
	if a1.SessionID == a2.SessionID {
		t.Fatalf("expected distinct session ids per login")
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	users := memory.NewSeeded()
	signer := NewAuthManager("test-secret-test-secret-test-secret", time.Hour, users)
	verifier := NewAuthManager("another-secret-another-secret-12345", time.Hour, users)

	resp, err := signer.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth := NewAuthManager("test-secret-test-secret-test-secret", time.Hour, memory.NewSeeded())

	token, err := auth.sign("admin", domain.RoleAdmin, "sess-x", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	auth := NewAuthManager("test-secret-test-secret-test-secret", time.Hour, memory.NewSeeded())

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "whatever"}); err == nil {
		t.Fatalf("expected unknown user to be rejected")
	}
}
