package service

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"feedgears/internal/domain"
)

func fixedClock(t *time.Time) func() time.Time {
	return func() time.Time { return *t }
}

func TestTokenService_IssueAndParse(t *testing.T) {
	svc := NewTokenService("secret")

	token, err := svc.Issue(domain.PurposeAppAuth, "alice", "c1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token.Value == "" || token.MaxAge != time.Hour {
		t.Fatalf("unexpected token: %+v", token)
	}

	parsed, err := svc.Parse(domain.PurposeAppAuth, token.Value)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := parsed.RequireNonExpired(); err != nil {
		t.Fatalf("expected fresh token, got %v", err)
	}
	if parsed.Username() != "alice" {
		t.Fatalf("unexpected username %q", parsed.Username())
	}
	if parsed.ClaimHash() != ClaimHash("c1") {
		t.Fatalf("unexpected claim hash %q", parsed.ClaimHash())
	}
}

func TestTokenService_ClaimHashIsNotRawClaim(t *testing.T) {
	svc := NewTokenService("secret")
	secrets := []string{"c1", "AbCdEfGh12345678", strings.Repeat("x", 64), ClaimHash("c1")}

	for _, p := range domain.Purposes() {
		for _, claim := range secrets {
			token, err := svc.Issue(p, "alice", claim)
			if err != nil {
				t.Fatalf("issue %s: %v", p, err)
			}
			parts := strings.Split(token.Value, ".")
			if len(parts) != 3 {
				t.Fatalf("expected a three-part token")
			}
			payload, err := base64.RawURLEncoding.DecodeString(parts[1])
			if err != nil {
				t.Fatalf("decode payload: %v", err)
			}
			if strings.Contains(string(payload), `"`+claim+`"`) {
				t.Fatalf("payload for %s contains the raw claim %q", p, claim)
			}
			parsed, err := svc.Parse(p, token.Value)
			if err != nil {
				t.Fatalf("parse %s: %v", p, err)
			}
			if parsed.ClaimHash() == claim {
				t.Fatalf("claim hash must differ from the raw claim")
			}
		}
	}
}

func TestTokenService_ExpiryMonotonicity(t *testing.T) {
	issuedAt := time.Unix(1_700_000_000, 0)
	now := issuedAt
	maxAge := 10 * time.Minute
	svc := NewTokenService("secret", WithClock(fixedClock(&now)), WithMaxAge(domain.PurposePwReset, maxAge))

	token, err := svc.Issue(domain.PurposePwReset, "alice", "c1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token.MaxAgeSeconds() != 600 {
		t.Fatalf("unexpected max age %d", token.MaxAgeSeconds())
	}

	now = issuedAt.Add(maxAge - time.Second)
	parsed, err := svc.Parse(domain.PurposePwReset, token.Value)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := parsed.RequireNonExpired(); err != nil {
		t.Fatalf("expected token valid at N-1s, got %v", err)
	}

	now = issuedAt.Add(maxAge)
	if err := parsed.RequireNonExpired(); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at N, got %v", err)
	}

	now = issuedAt.Add(maxAge + time.Second)
	parsed, err = svc.Parse(domain.PurposePwReset, token.Value)
	if err != nil {
		t.Fatalf("expired tokens must still parse, got %v", err)
	}
	if err := parsed.RequireNonExpired(); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at N+1s, got %v", err)
	}
}

func TestTokenService_RejectsWrongSecret(t *testing.T) {
	token, err := NewTokenService("secret").Issue(domain.PurposeAppAuth, "alice", "c1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewTokenService("other").Parse(domain.PurposeAppAuth, token.Value); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenService_RejectsMalformedAndEmpty(t *testing.T) {
	svc := NewTokenService("secret")
	for _, raw := range []string{"", "   ", "clearly-not-a-jwt", "a.b.c"} {
		if _, err := svc.Parse(domain.PurposeAppAuth, raw); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid for %q, got %v", raw, err)
		}
	}
	if _, err := NewTokenService("").Issue(domain.PurposeAppAuth, "alice", "c1"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid on empty secret, got %v", err)
	}
	if _, err := svc.Issue(domain.TokenPurpose("BOGUS"), "alice", "c1"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for unknown purpose, got %v", err)
	}
}

func TestTokenService_RejectsWrongIssuerAndAlgorithm(t *testing.T) {
	svc := NewTokenService("secret")
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":            "other-issuer",
		"sub":            "alice",
		"exp":            now.Add(time.Hour).Unix(),
		"app_auth_token": ClaimHash("c1"),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Parse(domain.PurposeAppAuth, signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong issuer, got %v", err)
	}

	claims["iss"] = "feedgears"
	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Parse(domain.PurposeAppAuth, signed); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for HS512, got %v", err)
	}
}

func TestTokenService_UsernameIsExact(t *testing.T) {
	svc := NewTokenService("secret")
	for _, name := range []string{" alice", "alice ", "\talice"} {
		if _, err := svc.Issue(domain.PurposeAppAuth, name, "c1"); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid for %q, got %v", name, err)
		}
	}

	claims := jwt.MapClaims{
		"iss":            "feedgears",
		"sub":            " alice",
		"exp":            time.Now().Add(time.Hour).Unix(),
		"app_auth_token": ClaimHash("c1"),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	parsed, err := svc.Parse(domain.PurposeAppAuth, signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Username() != " alice" {
		t.Fatalf("subject must not be normalized, got %q", parsed.Username())
	}
}

func TestTokenService_ClaimHashIsPurposeScoped(t *testing.T) {
	svc := NewTokenService("secret")
	token, err := svc.Issue(domain.PurposePwReset, "alice", "c1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parsed, err := svc.Parse(domain.PurposeAppAuth, token.Value)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.ClaimHash() != "" {
		t.Fatalf("a PW_RESET token must not expose an APP_AUTH claim hash")
	}
}
