package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret-of-sufficient-length", time.Minute)

	token, expiresAt, err := issuer.Issue("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expiresAt) > time.Minute {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID() != "user-1" || claims.Email != "user@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenIssuerRejectsInvalidTokens(t *testing.T) {
	issuer := NewTokenIssuer("test-secret-of-sufficient-length", time.Minute)
	token, _, err := issuer.Issue("user-1", "user@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewTokenIssuer("another-secret-of-sufficient-len", time.Minute)
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected forged token to be rejected, got %v", err)
	}

	expired := NewTokenIssuer("test-secret-of-sufficient-length", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := expired.Verify(token); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}
	if _, err := issuer.Verify(unsigned); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected unsigned token to be rejected, got %v", err)
	}

	if _, err := issuer.Verify("not-a-token"); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected garbage to be rejected, got %v", err)
	}
}
