package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"feedgears/internal/domain"
	"feedgears/internal/repository"
)

const (
	claimLength   = 16
	claimAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// ClaimService implementa la invalidación por rotación de claims: rotar el claim
// de un propósito invalida todos los tokens emitidos contra su valor anterior.
type ClaimService struct {
	logger *zap.Logger
	users  repository.UserRepository
	tokens *TokenService
	random func(n int) (string, error)
}

func NewClaimService(logger *zap.Logger, users repository.UserRepository, tokens *TokenService) *ClaimService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimService{
		logger: logger,
		users:  users,
		tokens: tokens,
		random: randomAlphanumeric,
	}
}

// Finalize genera un claim nuevo para el propósito y lo persiste. No se reintenta:
// un reintento rotaría dos veces e invalidaría un token emitido entre medio.
func (s *ClaimService) Finalize(ctx context.Context, purpose domain.TokenPurpose, username string) (string, error) {
	if !purpose.Valid() {
		return "", fmt.Errorf("unknown token purpose %q", purpose)
	}
	value, err := s.random(claimLength)
	if err != nil {
		return "", err
	}
	if err := s.users.UpdateClaim(ctx, username, purpose.ClaimField(), value); err != nil {
		return "", fmt.Errorf("finalize %s claim: %w", purpose.ClaimField(), err)
	}
	s.logger.Debug("claim finalized", zap.String("username", username), zap.String("purpose", string(purpose)))
	return value, nil
}

// Validate comprueba firma, expiración, usuario y que el claim hash siga vigente.
func (s *ClaimService) Validate(ctx context.Context, purpose domain.TokenPurpose, tokenString string) (domain.User, error) {
	parsed, err := s.tokens.Parse(purpose, tokenString)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", domain.ErrTokenValidation, err)
	}
	if err := parsed.RequireNonExpired(); err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", domain.ErrTokenValidation, err)
	}
	username := parsed.Username()
	if username == "" {
		return domain.User{}, fmt.Errorf("%w: username missing", domain.ErrTokenValidation)
	}
	user, err := s.users.FindUserByName(ctx, username)
	if err != nil {
		return domain.User{}, err
	}
	current := user.Claim(purpose.ClaimField())
	if current == "" {
		return domain.User{}, fmt.Errorf("%w: %s", domain.ErrAuthClaim, purpose.ClaimField())
	}
	expected := strings.ToLower(ClaimHash(current))
	actual := strings.ToLower(parsed.ClaimHash())
	if subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) != 1 {
		return domain.User{}, fmt.Errorf("%w: claim is outdated", domain.ErrTokenValidation)
	}
	return user, nil
}

// Issue emite un token contra el claim actual, sin rotarlo.
func (s *ClaimService) Issue(ctx context.Context, purpose domain.TokenPurpose, username string) (domain.AppToken, error) {
	user, err := s.users.FindUserByName(ctx, username)
	if err != nil {
		return domain.AppToken{}, err
	}
	current := user.Claim(purpose.ClaimField())
	if current == "" {
		return domain.AppToken{}, fmt.Errorf("%w: %s", domain.ErrAuthClaim, purpose.ClaimField())
	}
	return s.tokens.Issue(purpose, username, current)
}

// FinalizeAndIssue rota el claim y emite un token contra el valor nuevo.
func (s *ClaimService) FinalizeAndIssue(ctx context.Context, purpose domain.TokenPurpose, username string) (domain.AppToken, error) {
	value, err := s.Finalize(ctx, purpose, username)
	if err != nil {
		return domain.AppToken{}, err
	}
	return s.tokens.Issue(purpose, username, value)
}

func randomAlphanumeric(n int) (string, error) {
	max := big.NewInt(int64(len(claimAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = claimAlphabet[idx.Int64()]
	}
	return string(b), nil
}
