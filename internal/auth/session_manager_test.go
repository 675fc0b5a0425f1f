package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestManager(refreshTTL time.Duration) (*Manager, *InMemorySessionStore) {
	store := NewInMemorySessionStore()
	return NewManager(NewTokenIssuer("test-secret-of-sufficient-length", time.Minute), refreshTTL, store), store
}

func TestManagerIssueAndRefresh(t *testing.T) {
	manager, store := newTestManager(time.Hour)

	tokens, err := manager.Issue(context.Background(), "user-1", "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected non-empty tokens: %+v", tokens)
	}

	session, refreshed, err := manager.Refresh(context.Background(), tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if session.UserID != "user-1" || session.Email != "user@example.com" {
		t.Fatalf("unexpected session: %+v", session)
	}
	if refreshed.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected new refresh token")
	}
	if store.Has(tokens.RefreshToken) {
		t.Fatal("old token should have been removed")
	}
	if !store.Has(refreshed.RefreshToken) {
		t.Fatal("new token should have been stored")
	}

	claims, err := manager.Verify(refreshed.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID() != "user-1" {
		t.Fatalf("expected subject user-1, got %q", claims.UserID())
	}
}

func TestManagerIssueValidation(t *testing.T) {
	manager, _ := newTestManager(time.Hour)
	if _, err := manager.Issue(context.Background(), "", ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestManagerRefreshFailures(t *testing.T) {
	manager, _ := newTestManager(time.Hour)
	now := time.Now()
	manager.now = func() time.Time { return now }

	if _, _, err := manager.Refresh(context.Background(), ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session not found got %v", err)
	}

	tokens, err := manager.Issue(context.Background(), "user-1", "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	manager.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected refresh expired got %v", err)
	}

	manager.now = func() time.Time { return now }
	tokens, err = manager.Issue(context.Background(), "user-1", "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := manager.Revoke(context.Background(), tokens.RefreshToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := manager.Revoke(context.Background(), tokens.RefreshToken); err != nil {
		t.Fatalf("revoking twice should be a no-op, got %v", err)
	}
	if _, _, err := manager.Refresh(context.Background(), tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session not found after revoke got %v", err)
	}
}

func TestManagerRevokeAll(t *testing.T) {
	manager, store := newTestManager(time.Hour)
	ctx := context.Background()

	first, err := manager.Issue(ctx, "user-1", "a@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	second, err := manager.Issue(ctx, "user-1", "a@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	other, err := manager.Issue(ctx, "user-2", "b@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if err := manager.RevokeAll(ctx, "user-1"); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if store.Has(first.RefreshToken) || store.Has(second.RefreshToken) {
		t.Fatal("expected every session of user-1 to be removed")
	}
	if !store.Has(other.RefreshToken) {
		t.Fatal("expected sessions of other users to survive")
	}
}
