package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"feedgears/internal/domain"
	"feedgears/internal/repository"
	"feedgears/internal/service"
)

// AuthFilterConfig agrupa los parámetros que deciden la estrategia de autenticación.
type AuthFilterConfig struct {
	SingleUserMode       bool
	AdminUsername        string
	APIKeyHeader         string
	APISecretHeader      string
	OpenPaths            []string
	OpenPathPrefixes     []string
	CurrentUserPath      string
	PasswordUpdatePrefix string
	SecureCookies        bool
}

type strategy int

const (
	strategyOpen strategy = iota
	strategyPreflight
	strategySingleUserLocal
	strategySingleUserAPI
	strategyRefreshCookie
	strategyPasswordUpdate
	strategyAPIKey
	strategyBearer
)

func (s strategy) String() string {
	switch s {
	case strategyOpen:
		return "open"
	case strategyPreflight:
		return "preflight"
	case strategySingleUserLocal:
		return "single_user_local"
	case strategySingleUserAPI:
		return "single_user_api"
	case strategyRefreshCookie:
		return "refresh_cookie"
	case strategyPasswordUpdate:
		return "password_update"
	case strategyAPIKey:
		return "api_key"
	case strategyBearer:
		return "bearer"
	}
	return "unknown"
}

// AuthFilter elige exactamente una estrategia por request e instala el principal si tiene éxito.
type AuthFilter struct {
	logger      *zap.Logger
	cfg         AuthFilterConfig
	users       repository.UserRepository
	apiKeys     repository.APIKeyRepository
	claims      *service.ClaimService
	authorities *service.AuthorityService
}

func NewAuthFilter(
	logger *zap.Logger,
	cfg AuthFilterConfig,
	users repository.UserRepository,
	apiKeys repository.APIKeyRepository,
	claims *service.ClaimService,
	authorities *service.AuthorityService,
) *AuthFilter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthFilter{
		logger:      logger,
		cfg:         cfg,
		users:       users,
		apiKeys:     apiKeys,
		claims:      claims,
		authorities: authorities,
	}
}

func (f *AuthFilter) isOpenPath(path string) bool {
	for _, p := range f.cfg.OpenPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range f.cfg.OpenPathPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (f *AuthFilter) selectStrategy(r *http.Request) strategy {
	path := r.URL.Path
	if f.isOpenPath(path) {
		return strategyOpen
	}
	if r.Method == http.MethodOptions {
		return strategyPreflight
	}
	if path == f.cfg.CurrentUserPath {
		if f.cfg.SingleUserMode {
			return strategySingleUserLocal
		}
		return strategyRefreshCookie
	}
	if f.cfg.PasswordUpdatePrefix != "" && strings.HasPrefix(path, f.cfg.PasswordUpdatePrefix) {
		return strategyPasswordUpdate
	}
	hasAPIKey := strings.TrimSpace(r.Header.Get(f.cfg.APIKeyHeader)) != ""
	switch {
	case hasAPIKey && f.cfg.SingleUserMode:
		return strategySingleUserAPI
	case hasAPIKey:
		return strategyAPIKey
	case f.cfg.SingleUserMode:
		return strategySingleUserLocal
	default:
		return strategyBearer
	}
}

// Middleware ejecuta la estrategia elegida. Los fallos se registran y la request
// sigue como anónima; solo un conflicto de proveedor corta la cadena.
func (f *AuthFilter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := f.selectStrategy(c.Request)
		if s == strategyOpen {
			c.Next()
			return
		}

		principal, err := f.authenticate(c, s)
		switch {
		case errors.Is(err, domain.ErrAuthProvider):
			f.logFailure(c, s, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		case err != nil:
			f.logFailure(c, s, err)
		case principal != nil:
			establishSession(c, principal)
		}
		c.Next()
	}
}

func (f *AuthFilter) authenticate(c *gin.Context, s strategy) (*domain.Principal, error) {
	switch s {
	case strategyPreflight:
		return nil, f.checkPreflight(c)
	case strategySingleUserLocal:
		return f.singleUser(c, false)
	case strategySingleUserAPI:
		return f.singleUser(c, true)
	case strategyRefreshCookie:
		return f.refreshCookie(c)
	case strategyPasswordUpdate:
		return f.passwordUpdate(c)
	case strategyAPIKey:
		return f.apiKey(c)
	case strategyBearer:
		return f.bearer(c)
	}
	return nil, nil
}

func (f *AuthFilter) logFailure(c *gin.Context, s strategy, err error) {
	fields := []zap.Field{
		zap.String("strategy", s.String()),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	}
	if errors.Is(err, domain.ErrMissingOptionsHeader) {
		names := make([]string, 0, len(c.Request.Header))
		for name := range c.Request.Header {
			names = append(names, name)
		}
		fields = append(fields, zap.Strings("headers", names))
		f.logger.Warn("malformed preflight request", fields...)
		return
	}
	f.logger.Warn("authentication rejected", fields...)
}
