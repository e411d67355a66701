package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"feedgears/internal/service"
)

const rateLimitMessage = "Rate limit exceeded"

// principalRateLimitMiddleware aplica el token bucket por usuario autenticado.
// Las requests anónimas no consumen tokens.
func principalRateLimitMiddleware(logger *zap.Logger, limiter service.PrincipalRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok || limiter == nil {
			c.Next()
			return
		}
		if !limiter.TryConsume(c.Request.Context(), p.Username) {
			logger.Info("rate limit exceeded", zap.String("username", p.Username), zap.String("path", c.Request.URL.Path))
			c.Header("Content-Type", "text/plain; charset=utf-8")
			c.String(http.StatusConflict, rateLimitMessage)
			c.Abort()
			return
		}
		c.Next()
	}
}
