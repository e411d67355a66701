package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"feedgears/internal/domain"
	"feedgears/internal/repository"
	"feedgears/internal/service"
)

// AuthHandler expone los flujos de cuenta y sesión.
type AuthHandler struct {
	logger        *zap.Logger
	accounts      *service.AccountService
	secureCookies bool
}

// NewAuthHandler crea una instancia de AuthHandler con dependencias necesarias.
func NewAuthHandler(logger *zap.Logger, accounts *service.AccountService, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		logger:        logger,
		accounts:      accounts,
		secureCookies: secureCookies,
	}
}

// Authenticate maneja POST /authenticate.
func (h *AuthHandler) Authenticate(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid authenticate request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, err := h.accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		case errors.Is(err, domain.ErrAuthProvider):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			h.logger.Error("authenticate failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not authenticate"})
		}
		return
	}

	setTokenCookie(c, domain.PurposeAppAuthRefresh, token, h.secureCookies)
	c.JSON(http.StatusOK, gin.H{"username": req.Username})
}

// Register maneja POST /register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, _, err := h.accounts.Register(c.Request.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrDuplicateUser):
			c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
		default:
			h.logger.Error("register failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"username": user.Username, "email": user.Email})
}

// Verify maneja GET /verify/:token.
func (h *AuthHandler) Verify(c *gin.Context) {
	user, err := h.accounts.Verify(c.Request.Context(), c.Param("token"))
	if err != nil {
		if isTokenRejection(err) {
			h.logger.Warn("verification rejected", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid verification token"})
			return
		}
		h.logger.Error("verify failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not verify"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": user.Username, "verified": user.Verified})
}

// InitPasswordReset maneja POST /pw_reset. La respuesta no revela si el usuario existe.
func (h *AuthHandler) InitPasswordReset(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid password reset request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.accounts.InitPasswordReset(c.Request.Context(), req.Username, req.Email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		h.logger.Error("init password reset failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start password reset"})
		return
	}
	if err != nil {
		h.logger.Info("password reset ignored", zap.String("username", req.Username), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset_requested"})
}

// ContinuePasswordReset maneja GET /pw_reset/:token.
func (h *AuthHandler) ContinuePasswordReset(c *gin.Context) {
	token, err := h.accounts.ContinuePasswordReset(c.Request.Context(), c.Param("token"))
	if err != nil {
		if isTokenRejection(err) {
			h.logger.Warn("password reset token rejected", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid password reset token"})
			return
		}
		h.logger.Error("continue password reset failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not continue password reset"})
		return
	}
	setTokenCookie(c, domain.PurposePwAuth, token, h.secureCookies)
	c.JSON(http.StatusOK, gin.H{"status": "password_update_allowed"})
}

// UpdatePassword maneja PUT /update/password con la sesión corta de reset.
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	p, _ := GetPrincipal(c)
	var req struct {
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update password request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.accounts.UpdatePassword(c.Request.Context(), p.Username, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("update password failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update password"})
		return
	}
	clearTokenCookie(c, domain.PurposePwAuth, h.secureCookies)
	clearTokenCookie(c, domain.PurposeAppAuthRefresh, h.secureCookies)
	c.Status(http.StatusNoContent)
}

// OAuthCallback maneja POST /oauth2/callback con la identidad ya verificada por el proveedor.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	var req struct {
		Provider   string `json:"provider" binding:"required"`
		ProviderID string `json:"provider_id" binding:"required"`
		Email      string `json:"email" binding:"required,email"`
		Username   string `json:"username"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid oauth request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, token, err := h.accounts.OAuthLogin(c.Request.Context(), service.OAuthIdentity{
		Provider:   req.Provider,
		ProviderID: req.ProviderID,
		Email:      req.Email,
		Username:   req.Username,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOAuthInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth data"})
		case errors.Is(err, domain.ErrAuthProvider):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrOAuthIdentity):
			h.logger.Warn("oauth identity mismatch", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "oauth identity does not match account"})
		case errors.Is(err, repository.ErrDuplicateUser):
			c.JSON(http.StatusConflict, gin.H{"error": "user already exists"})
		default:
			h.logger.Error("oauth login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not complete oauth"})
		}
		return
	}

	setTokenCookie(c, domain.PurposeAppAuthRefresh, token, h.secureCookies)
	c.JSON(http.StatusOK, gin.H{"username": user.Username})
}

// RecoverAPIKey maneja POST /apikey/recover. La respuesta no revela si el usuario existe.
func (h *AuthHandler) RecoverAPIKey(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid api key recovery request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.accounts.RecoverAPIKey(c.Request.Context(), req.Username, req.Email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) && !errors.Is(err, domain.ErrAPIKey) {
		h.logger.Error("recover api key failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not recover api key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recovery_requested"})
}

// CurrentUserToken maneja GET /currentuser/tokens: cambia la cookie de refresh por un token de aplicación.
func (h *AuthHandler) CurrentUserToken(c *gin.Context) {
	p, _ := GetPrincipal(c)
	token, err := h.accounts.CurrentUserToken(c.Request.Context(), p.Username)
	if err != nil {
		h.logger.Error("issue app token failed", zap.Error(err), zap.String("username", p.Username))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"username":       p.Username,
		"app_auth_token": token.Value,
		"max_age":        token.MaxAgeSeconds(),
		"authorities":    p.Authorities,
	})
}

// CurrentUserDetails maneja GET /currentuser/details.
func (h *AuthHandler) CurrentUserDetails(c *gin.Context) {
	p, _ := GetPrincipal(c)
	user, err := h.accounts.CurrentUser(c.Request.Context(), p.Username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("load current user failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load user"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"username":      user.Username,
		"email":         user.Email,
		"verified":      user.Verified,
		"auth_provider": user.AuthProvider,
		"authorities":   p.Authorities,
		"created_at":    user.CreatedAt,
	})
}

// Logout maneja POST /currentuser/logout. Cierra la sesión en todos los dispositivos.
func (h *AuthHandler) Logout(c *gin.Context) {
	p, _ := GetPrincipal(c)
	if err := h.accounts.Logout(c.Request.Context(), p.Username); err != nil {
		h.logger.Error("logout failed", zap.Error(err), zap.String("username", p.Username))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not logout"})
		return
	}
	clearTokenCookie(c, domain.PurposeAppAuthRefresh, h.secureCookies)
	c.Status(http.StatusNoContent)
}

// WhoAmI maneja GET /api/whoami para clientes con API key.
func (h *AuthHandler) WhoAmI(c *gin.Context) {
	p, _ := GetPrincipal(c)
	c.JSON(http.StatusOK, gin.H{"username": p.Username, "authorities": p.Authorities, "api": p.API})
}

// Health maneja GET /health.
func (h *AuthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func isTokenRejection(err error) bool {
	return errors.Is(err, domain.ErrTokenValidation) ||
		errors.Is(err, domain.ErrAuthClaim) ||
		errors.Is(err, domain.ErrUserNotFound)
}
