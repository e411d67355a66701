package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"feedgears/internal/domain"
)

const principalKey = "auth_principal"

// establishSession instala el principal en el contexto de la request.
// Una segunda llamada reemplaza al anterior.
func establishSession(c *gin.Context, principal *domain.Principal) {
	c.Set(principalKey, principal)
}

// GetPrincipal obtiene el principal autenticado desde el contexto.
func GetPrincipal(c *gin.Context) (*domain.Principal, bool) {
	val, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := val.(*domain.Principal)
	return p, ok && p != nil
}

// RequireAuthority rechaza requests anónimas (401) o sin ninguna de las autoridades (403).
func RequireAuthority(authorities ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if len(authorities) == 0 {
			c.Next()
			return
		}
		for _, a := range authorities {
			if p.HasAuthority(a) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}
