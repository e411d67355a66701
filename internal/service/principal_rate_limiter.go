package service

import (
	"context"
	"strings"
	"time"

	"github.com/didip/tollbooth/v6"
	"github.com/didip/tollbooth/v6/limiter"
)

const (
	defaultBucketCapacity  = 20
	defaultBucketPerMinute = 20
)

// PrincipalRateLimiter limita las requests de un principal autenticado.
type PrincipalRateLimiter interface {
	TryConsume(ctx context.Context, key string) bool
}

type memoryPrincipalRateLimiter struct {
	lmt *limiter.Limiter
}

// NewMemoryPrincipalRateLimiter crea un token bucket en memoria por username.
func NewMemoryPrincipalRateLimiter(capacity, perMinute int) PrincipalRateLimiter {
	if capacity <= 0 {
		capacity = defaultBucketCapacity
	}
	if perMinute <= 0 {
		perMinute = defaultBucketPerMinute
	}
	lmt := tollbooth.NewLimiter(float64(perMinute)/60.0, &limiter.ExpirableOptions{
		DefaultExpirationTTL: time.Hour,
	})
	lmt.SetBurst(capacity)
	return &memoryPrincipalRateLimiter{lmt: lmt}
}

func (l *memoryPrincipalRateLimiter) TryConsume(_ context.Context, key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	return tollbooth.LimitByKeys(l.lmt, []string{key}) == nil
}
