package http

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"feedgears/internal/domain"
)

const bearerPrefix = "bearer "

var preflightHeaders = []string{"Access-Control-Request-Method", "Access-Control-Request-Headers"}

// checkPreflight no autentica: solo registra preflights incompletos.
func (f *AuthFilter) checkPreflight(c *gin.Context) error {
	var missing []string
	for _, h := range preflightHeaders {
		if c.GetHeader(h) == "" {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrMissingOptionsHeader, strings.Join(missing, ", "))
	}
	return nil
}

func (f *AuthFilter) apiKey(c *gin.Context) (*domain.Principal, error) {
	key := strings.TrimSpace(c.GetHeader(f.cfg.APIKeyHeader))
	secret := c.GetHeader(f.cfg.APISecretHeader)
	if key == "" || secret == "" {
		return nil, fmt.Errorf("%w: api key or secret header is blank", domain.ErrAPIKey)
	}
	ctx := c.Request.Context()
	user, err := f.users.FindUserByAPIKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAPIKey, err)
	}
	stored, err := f.apiKeys.FindAPIKeyByUsername(ctx, user.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAPIKey, err)
	}
	if subtle.ConstantTimeCompare([]byte(stored.Secret), []byte(secret)) != 1 {
		return nil, fmt.Errorf("%w: secret mismatch for %s", domain.ErrAPIKey, user.Username)
	}
	return domain.NewPrincipal(user.Username, f.authorities.ForAPI(user), true, func() string {
		return stored.Secret
	}), nil
}

func (f *AuthFilter) bearer(c *gin.Context) (*domain.Principal, error) {
	header := c.GetHeader("Authorization")
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return nil, nil
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	user, err := f.claims.Validate(c.Request.Context(), domain.PurposeAppAuth, token)
	if err != nil {
		return nil, err
	}
	return f.webPrincipal(c, user)
}

// refreshCookie valida la cookie de refresh y la vuelve a emitir con la misma vigencia completa.
func (f *AuthFilter) refreshCookie(c *gin.Context) (*domain.Principal, error) {
	purpose := domain.PurposeAppAuthRefresh
	value, err := c.Cookie(purpose.Name())
	if err != nil || value == "" {
		return nil, nil
	}
	ctx := c.Request.Context()
	user, err := f.claims.Validate(ctx, purpose, value)
	if err != nil {
		return nil, err
	}
	token, err := f.claims.Issue(ctx, purpose, user.Username)
	if err != nil {
		return nil, err
	}
	setTokenCookie(c, purpose, token, f.cfg.SecureCookies)
	return f.webPrincipal(c, user)
}

func (f *AuthFilter) passwordUpdate(c *gin.Context) (*domain.Principal, error) {
	purpose := domain.PurposePwAuth
	value, err := c.Cookie(purpose.Name())
	if err != nil || value == "" {
		return nil, nil
	}
	user, err := f.claims.Validate(c.Request.Context(), purpose, value)
	if err != nil {
		return nil, err
	}
	// Las cuentas de proveedores externos no tienen contraseña local.
	if user.AuthProvider != domain.AuthProviderLocal {
		return nil, &domain.AuthProviderError{
			Username:  user.Username,
			Expected:  user.AuthProvider,
			Attempted: domain.AuthProviderLocal,
		}
	}
	return f.webPrincipal(c, user)
}

// singleUser instala siempre al administrador configurado con una credencial desechable.
func (f *AuthFilter) singleUser(c *gin.Context, api bool) (*domain.Principal, error) {
	user, err := f.users.FindUserByName(c.Request.Context(), f.cfg.AdminUsername)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			f.logger.Error("single user mode admin missing", zap.String("username", f.cfg.AdminUsername))
		}
		return nil, err
	}
	placeholder := uuid.NewString()
	credential := func() string { return placeholder }
	if api {
		return domain.NewPrincipal(user.Username, f.authorities.ForAPI(user), true, credential), nil
	}
	auths, err := f.authorities.ForWeb(c.Request.Context(), user)
	if err != nil {
		return nil, err
	}
	return domain.NewPrincipal(user.Username, auths, false, credential), nil
}

func (f *AuthFilter) webPrincipal(c *gin.Context, user domain.User) (*domain.Principal, error) {
	auths, err := f.authorities.ForWeb(c.Request.Context(), user)
	if err != nil {
		return nil, err
	}
	hash := user.PasswordHash
	return domain.NewPrincipal(user.Username, auths, false, func() string { return hash }), nil
}

// setTokenCookie escribe la cookie del propósito con Max-Age igual a la vida del token.
func setTokenCookie(c *gin.Context, purpose domain.TokenPurpose, token domain.AppToken, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(purpose.Name(), token.Value, token.MaxAgeSeconds(), "/", "", secure, true)
}

// clearTokenCookie expira la cookie del propósito en el cliente.
func clearTokenCookie(c *gin.Context, purpose domain.TokenPurpose, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(purpose.Name(), "", -1, "/", "", secure, true)
}
