package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"feedgears/internal/domain"
	"feedgears/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	filter *AuthFilter,
	limiter service.PrincipalRateLimiter,
	authH *AuthHandler,
) *gin.Engine {
	r := gin.New()

	// Middlewares: logging, recovery, JSON content-type, autenticación y rate limit por principal.
	r.Use(
		zapLoggerMiddleware(logger),
		gin.Recovery(),
		jsonContentTypeMiddleware(),
		filter.Middleware(),
		principalRateLimitMiddleware(logger, limiter),
	)

	// Rutas abiertas.
	r.GET("/health", authH.Health)
	r.POST("/authenticate", authH.Authenticate)
	r.POST("/register", authH.Register)
	r.GET("/verify/:token", authH.Verify)
	r.POST("/pw_reset", authH.InitPasswordReset)
	r.GET("/pw_reset/:token", authH.ContinuePasswordReset)
	r.POST("/oauth2/callback", authH.OAuthCallback)
	r.POST("/apikey/recover", authH.RecoverAPIKey)

	web := RequireAuthority(domain.AuthorityUnverified)

	current := r.Group("/currentuser", web)
	current.GET("/tokens", authH.CurrentUserToken)
	current.GET("/details", authH.CurrentUserDetails)
	current.POST("/logout", authH.Logout)

	r.PUT("/update/password", web, authH.UpdatePassword)

	api := r.Group("/api", RequireAuthority(domain.APIAuthorityPrefix+domain.AuthorityUnverified))
	api.GET("/whoami", authH.WhoAmI)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if p, ok := GetPrincipal(c); ok {
			fields = append(fields, zap.String("principal", p.Username), zap.Bool("api", p.API))
		}
		logger.Info("request", fields...)
	}
}

// jsonContentTypeMiddleware fija Content-Type: application/json por defecto.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
