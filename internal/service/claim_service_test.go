package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"feedgears/internal/domain"
	"feedgears/internal/repository"
)

func newClaimFixture(t *testing.T, user domain.User) (*ClaimService, *repository.MemoryStore, *TokenService) {
	t.Helper()
	store := repository.NewMemoryStore()
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	tokens := NewTokenService("secret")
	return NewClaimService(nil, store, tokens), store, tokens
}

func TestClaimService_AliceScenario(t *testing.T) {
	claims, store, tokens := newClaimFixture(t, domain.User{Username: "alice", Email: "alice@example.com", AuthClaim: "c1"})
	ctx := context.Background()

	t1, err := tokens.Issue(domain.PurposeAppAuth, "alice", "c1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	user, err := claims.Validate(ctx, domain.PurposeAppAuth, t1.Value)
	if err != nil {
		t.Fatalf("validate T1: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected user %q", user.Username)
	}

	claims.random = func(int) (string, error) { return "c2", nil }
	if _, err := claims.Finalize(ctx, domain.PurposeAppAuth, "alice"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	u, _ := store.FindUserByName(ctx, "alice")
	if u.AuthClaim != "c2" {
		t.Fatalf("expected claim c2, got %q", u.AuthClaim)
	}

	_, err = claims.Validate(ctx, domain.PurposeAppAuth, t1.Value)
	if !errors.Is(err, domain.ErrTokenValidation) || !strings.Contains(err.Error(), "claim is outdated") {
		t.Fatalf("expected outdated claim, got %v", err)
	}
}

func TestClaimService_RotationInvalidatesEveryPurpose(t *testing.T) {
	seed := domain.User{
		Username:          "alice",
		Email:             "alice@example.com",
		AuthClaim:         "auth",
		PwResetClaim:      "reset",
		PwResetAuthClaim:  "resetauth",
		VerificationClaim: "verify",
	}
	for _, p := range domain.Purposes() {
		t.Run(string(p), func(t *testing.T) {
			claims, _, _ := newClaimFixture(t, seed)
			ctx := context.Background()

			token, err := claims.Issue(ctx, p, "alice")
			if err != nil {
				t.Fatalf("issue: %v", err)
			}
			if _, err := claims.Validate(ctx, p, token.Value); err != nil {
				t.Fatalf("validate before rotation: %v", err)
			}
			if _, err := claims.Finalize(ctx, p, "alice"); err != nil {
				t.Fatalf("finalize: %v", err)
			}
			_, err = claims.Validate(ctx, p, token.Value)
			if !errors.Is(err, domain.ErrTokenValidation) || !strings.Contains(err.Error(), "outdated") {
				t.Fatalf("expected outdated claim after rotation, got %v", err)
			}
		})
	}
}

func TestClaimService_RotationIsScopedToBoundField(t *testing.T) {
	claims, _, _ := newClaimFixture(t, domain.User{Username: "alice", Email: "a@example.com", AuthClaim: "auth", PwResetClaim: "reset"})
	ctx := context.Background()

	appToken, err := claims.Issue(ctx, domain.PurposeAppAuth, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := claims.Finalize(ctx, domain.PurposePwReset, "alice"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := claims.Validate(ctx, domain.PurposeAppAuth, appToken.Value); err != nil {
		t.Fatalf("rotating PW_RESET must not affect APP_AUTH: %v", err)
	}
}

func TestClaimService_RefreshAndAppAuthShareClaim(t *testing.T) {
	claims, _, _ := newClaimFixture(t, domain.User{Username: "alice", Email: "a@example.com", AuthClaim: "auth"})
	ctx := context.Background()

	refresh, err := claims.Issue(ctx, domain.PurposeAppAuthRefresh, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := claims.Finalize(ctx, domain.PurposeAppAuth, "alice"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := claims.Validate(ctx, domain.PurposeAppAuthRefresh, refresh.Value); !errors.Is(err, domain.ErrTokenValidation) {
		t.Fatalf("expected refresh token invalidated by auth claim rotation, got %v", err)
	}
}

func TestClaimService_ValidateFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("missing claim", func(t *testing.T) {
		claims, _, tokens := newClaimFixture(t, domain.User{Username: "alice", Email: "a@example.com"})
		token, err := tokens.Issue(domain.PurposeVerification, "alice", "whatever")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, err := claims.Validate(ctx, domain.PurposeVerification, token.Value); !errors.Is(err, domain.ErrAuthClaim) {
			t.Fatalf("expected ErrAuthClaim, got %v", err)
		}
		if _, err := claims.Issue(ctx, domain.PurposeVerification, "alice"); !errors.Is(err, domain.ErrAuthClaim) {
			t.Fatalf("expected ErrAuthClaim on issue, got %v", err)
		}
	})

	t.Run("username missing", func(t *testing.T) {
		claims, _, _ := newClaimFixture(t, domain.User{Username: "alice", Email: "a@example.com", AuthClaim: "c1"})
		raw := jwt.MapClaims{
			"iss":            "feedgears",
			"exp":            time.Now().Add(time.Hour).Unix(),
			"app_auth_token": ClaimHash("c1"),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, raw).SignedString([]byte("secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		_, err = claims.Validate(ctx, domain.PurposeAppAuth, signed)
		if !errors.Is(err, domain.ErrTokenValidation) || !strings.Contains(err.Error(), "username missing") {
			t.Fatalf("expected username missing, got %v", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		claims, _, tokens := newClaimFixture(t, domain.User{Username: "alice", Email: "a@example.com", AuthClaim: "c1"})
		token, _ := tokens.Issue(domain.PurposeAppAuth, "bob", "c1")
		if _, err := claims.Validate(ctx, domain.PurposeAppAuth, token.Value); !errors.Is(err, domain.ErrUserNotFound) {
			t.Fatalf("expected ErrUserNotFound, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		store := repository.NewMemoryStore()
		_ = store.CreateUser(ctx, domain.User{Username: "alice", Email: "a@example.com", AuthClaim: "c1"})
		now := time.Unix(1_700_000_000, 0)
		tokens := NewTokenService("secret", WithClock(fixedClock(&now)))
		claims := NewClaimService(nil, store, tokens)

		token, err := claims.Issue(ctx, domain.PurposeAppAuth, "alice")
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		now = now.Add(time.Hour + time.Second)
		_, err = claims.Validate(ctx, domain.PurposeAppAuth, token.Value)
		if !errors.Is(err, domain.ErrTokenValidation) || !errors.Is(err, ErrTokenExpired) {
			t.Fatalf("expected expired token validation error, got %v", err)
		}
	})

	t.Run("hash compared case-insensitively", func(t *testing.T) {
		claims, _, _ := newClaimFixture(t, domain.User{Username: "alice", Email: "a@example.com", AuthClaim: "c1"})
		raw := jwt.MapClaims{
			"iss":            "feedgears",
			"sub":            "alice",
			"exp":            time.Now().Add(time.Hour).Unix(),
			"app_auth_token": strings.ToUpper(ClaimHash("c1")),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, raw).SignedString([]byte("secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := claims.Validate(ctx, domain.PurposeAppAuth, signed); err != nil {
			t.Fatalf("expected upper-case hash to validate, got %v", err)
		}
	})
}

func TestClaimService_FinalizeGeneratesAlphanumericClaims(t *testing.T) {
	claims, _, _ := newClaimFixture(t, domain.User{Username: "alice", Email: "a@example.com"})
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		v, err := claims.Finalize(context.Background(), domain.PurposePwAuth, "alice")
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		if len(v) != claimLength {
			t.Fatalf("expected %d chars, got %q", claimLength, v)
		}
		for _, r := range v {
			if !strings.ContainsRune(claimAlphabet, r) {
				t.Fatalf("unexpected char %q in %q", r, v)
			}
		}
		if seen[v] {
			t.Fatalf("duplicate claim %q", v)
		}
		seen[v] = true
	}
	if _, err := claims.Finalize(context.Background(), domain.PurposeAppAuth, "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for unknown user, got %v", err)
	}
}

// Dos finalize concurrentes: gana la última escritura y el token emitido con el
// valor intermedio queda invalidado. Es el comportamiento esperado.
func TestClaimService_ConcurrentFinalizeLastWriteWins(t *testing.T) {
	claims, _, _ := newClaimFixture(t, domain.User{Username: "alice", Email: "a@example.com"})
	ctx := context.Background()

	first, err := claims.FinalizeAndIssue(ctx, domain.PurposeAppAuthRefresh, "alice")
	if err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	second, err := claims.FinalizeAndIssue(ctx, domain.PurposeAppAuthRefresh, "alice")
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}

	if _, err := claims.Validate(ctx, domain.PurposeAppAuthRefresh, first.Value); !errors.Is(err, domain.ErrTokenValidation) {
		t.Fatalf("token from superseded claim must fail, got %v", err)
	}
	if _, err := claims.Validate(ctx, domain.PurposeAppAuthRefresh, second.Value); err != nil {
		t.Fatalf("token from latest claim must pass, got %v", err)
	}
}

func TestClaimService_PaddedSubjectDoesNotMatchUser(t *testing.T) {
	claims, _, _ := newClaimFixture(t, domain.User{Username: "alice", Email: "alice@example.com", AuthClaim: "c1"})
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":            "feedgears",
		"sub":            " alice",
		"exp":            time.Now().Add(time.Hour).Unix(),
		"app_auth_token": ClaimHash("c1"),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := claims.Validate(context.Background(), domain.PurposeAppAuth, signed); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for padded subject, got %v", err)
	}
}
