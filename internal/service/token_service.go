package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"feedgears/internal/domain"
)

// TokenService emite y parsea tokens firmados que ligan usuario, propósito y claim hash.
type TokenService struct {
	secret  []byte
	issuer  string
	maxAges map[domain.TokenPurpose]time.Duration
	now     func() time.Time
}

// TokenOption configura un TokenService.
type TokenOption func(*TokenService)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// WithClock reemplaza el reloj usado para emitir y verificar expiración.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMaxAge sobreescribe la vida útil de un propósito.
func WithMaxAge(purpose domain.TokenPurpose, maxAge time.Duration) TokenOption {
	return func(s *TokenService) {
		if maxAge > 0 {
			s.maxAges[purpose] = maxAge
		}
	}
}

func NewTokenService(secret string, opts ...TokenOption) *TokenService {
	s := &TokenService{
		secret:  []byte(secret),
		issuer:  "feedgears",
		maxAges: make(map[domain.TokenPurpose]time.Duration),
		now:     time.Now,
	}
	for _, p := range domain.Purposes() {
		s.maxAges[p] = p.DefaultMaxAge()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxAge devuelve la vida útil configurada del propósito.
func (s *TokenService) MaxAge(purpose domain.TokenPurpose) time.Duration {
	return s.maxAges[purpose]
}

// ClaimHash es el SHA-256 en hex del claim. Los tokens nunca llevan el claim en crudo.
func ClaimHash(claimSecret string) string {
	sum := sha256.Sum256([]byte(claimSecret))
	return hex.EncodeToString(sum[:])
}

// Issue firma un token para el propósito con el hash del claim actual del usuario.
func (s *TokenService) Issue(purpose domain.TokenPurpose, username, claimSecret string) (domain.AppToken, error) {
	if len(s.secret) == 0 || !purpose.Valid() {
		return domain.AppToken{}, ErrTokenInvalid
	}
	if username == "" || strings.TrimSpace(username) != username || claimSecret == "" {
		return domain.AppToken{}, ErrTokenInvalid
	}
	maxAge := s.MaxAge(purpose)
	now := s.now().UTC()
	claims := jwt.MapClaims{
		"iss":          s.issuer,
		"sub":          username,
		"iat":          now.Unix(),
		"exp":          now.Add(maxAge).Unix(),
		purpose.Name(): ClaimHash(claimSecret),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return domain.AppToken{}, err
	}
	return domain.AppToken{Value: signed, MaxAge: maxAge}, nil
}

// Parse verifica firma y estructura. La expiración se comprueba aparte con RequireNonExpired.
func (s *TokenService) Parse(purpose domain.TokenPurpose, tokenString string) (*ParsedToken, error) {
	if len(s.secret) == 0 || !purpose.Valid() {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrTokenInvalid
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	_, err := parser.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if iss, _ := claims.GetIssuer(); iss != s.issuer {
		return nil, ErrTokenInvalid
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrTokenInvalid
	}
	return &ParsedToken{purpose: purpose, claims: claims, expiresAt: exp.Time, now: s.now}, nil
}

// ParsedToken expone el contenido de un token con firma válida.
type ParsedToken struct {
	purpose   domain.TokenPurpose
	claims    jwt.MapClaims
	expiresAt time.Time
	now       func() time.Time
}

// RequireNonExpired falla con ErrTokenExpired cuando now >= exp.
func (t *ParsedToken) RequireNonExpired() error {
	if !t.now().Before(t.expiresAt) {
		return ErrTokenExpired
	}
	return nil
}

func (t *ParsedToken) Username() string {
	sub, _ := t.claims.GetSubject()
	return sub
}

func (t *ParsedToken) ClaimHash() string {
	hash, _ := t.claims[t.purpose.Name()].(string)
	return hash
}

func (t *ParsedToken) ExpiresAt() time.Time {
	return t.expiresAt
}
