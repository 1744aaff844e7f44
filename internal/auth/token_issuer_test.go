package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerIssuesSessionTokens(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("super-secret"),
		Issuer:        "codereef-auth",
		Audience:      "codereef-api",
		TokenTTL:      30 * time.Minute,
	})

	tokenString, expiresIn, err := issuer.IssueToken(context.Background(), "user-123")
	if err != nil {
		t.Fatalf("expected successful issuance: %v", err)
	}
	if expiresIn <= 0 {
		t.Fatalf("expected positive expiry seconds, got %d", expiresIn)
	}

	parser := jwt.Parser{}
	claims := &jwt.RegisteredClaims{}
	_, err = parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte("super-secret"), nil
	})
	if err != nil {
		t.Fatalf("failed to parse generated token: %v", err)
	}

	if claims.Subject != "user-123" {
		t.Fatalf("unexpected subject %s", claims.Subject)
	}
	if claims.Issuer != "codereef-auth" {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if len(claims.Audience) == 0 || claims.Audience[0] != "codereef-api" {
		t.Fatalf("unexpected audience %#v", claims.Audience)
	}
}

func TestTokenIssuerRejectsMissingSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		Issuer:   "codereef-auth",
		Audience: "codereef-api",
	})

	if _, _, err := issuer.IssueToken(context.Background(), "user-1"); err == nil {
		t.Fatalf("expected issuance to fail without a signing secret")
	}
}

func TestTokenIssuerRejectsEmptySubject(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("secret"),
		Issuer:        "codereef-auth",
		Audience:      "codereef-api",
	})

	if _, _, err := issuer.IssueToken(context.Background(), ""); err == nil {
		t.Fatalf("expected issuance to fail for empty subject")
	}
}

func TestTokenIssuerValidatesIssuedTokens(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("another-secret"),
		Issuer:        "codereef-auth",
		Audience:      "codereef-api",
		TokenTTL:      15 * time.Minute,
	})

	tokenString, _, err := issuer.IssueToken(context.Background(), "user-321")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	subject, err := issuer.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("expected validation success: %v", err)
	}
	if subject != "user-321" {
		t.Fatalf("unexpected subject %s", subject)
	}

	if _, err := issuer.ValidateToken("invalid.token"); err == nil {
		t.Fatalf("expected validation to fail for malformed token")
	}
}

func TestTokenIssuerRoundTripsWithSecretOnlyConfig(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("bare-secret"),
	})

	tokenString, _, err := issuer.IssueToken(context.Background(), "user-77")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	subject, err := issuer.ValidateToken(tokenString)
	if err != nil {
		t.Fatalf("expected secret-only validation to succeed: %v", err)
	}
	if subject != "user-77" {
		t.Fatalf("unexpected subject %s", subject)
	}
}

func TestTokenIssuerRejectsWrongAudience(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("shared-secret"),
		Issuer:        "codereef-auth",
		Audience:      "codereef-api",
	})
	other := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("shared-secret"),
		Issuer:        "codereef-auth",
		Audience:      "some-other-api",
	})

	tokenString, _, err := issuer.IssueToken(context.Background(), "user-5")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}
	if _, err := other.ValidateToken(tokenString); err == nil {
		t.Fatalf("expected validation to fail for mismatched audience")
	}
}

func TestTokenIssuerRejectsExpiredTokens(t *testing.T) {
	issued := time.Unix(1_700_000_000, 0)
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("expiring-secret"),
		Issuer:        "codereef-auth",
		Audience:      "codereef-api",
		TokenTTL:      time.Minute,
		Clock:         func() time.Time { return issued },
	})

	tokenString, _, err := issuer.IssueToken(context.Background(), "user-9")
	if err != nil {
		t.Fatalf("unexpected error issuing token: %v", err)
	}

	late := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("expiring-secret"),
		Issuer:        "codereef-auth",
		Audience:      "codereef-api",
		TokenTTL:      time.Minute,
		Clock:         func() time.Time { return issued.Add(2 * time.Minute) },
	})
	if _, err := late.ValidateToken(tokenString); err == nil {
		t.Fatalf("expected validation to fail after expiry")
	}
}
