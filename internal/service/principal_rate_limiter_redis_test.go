package service

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type mockRedisEvaler struct {
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	result     int64
	err        error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})
	return client
}

func TestRedisPrincipalRateLimiter_TryConsume(t *testing.T) {
	t.Run("nil receiver fail-open", func(t *testing.T) {
		var l *redisPrincipalRateLimiter
		if !l.TryConsume(context.Background(), "alice") {
			t.Fatalf("expected fail-open for nil limiter")
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		l := newRedisPrincipalRateLimiter(&mockRedisEvaler{result: 1}, 20, 20, time.Now)
		if l.TryConsume(context.Background(), "  ") {
			t.Fatalf("expected empty key to be rejected")
		}
	})

	t.Run("key prefix and script", func(t *testing.T) {
		mock := &mockRedisEvaler{result: 1}
		l := newRedisPrincipalRateLimiter(mock, 20, 20, time.Now)
		if !l.TryConsume(context.Background(), " alice ") {
			t.Fatalf("expected allow when script returns 1")
		}
		if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "rl:principal:alice" {
			t.Fatalf("unexpected key, got %+v", mock.lastKeys)
		}
		if mock.lastScript != redisTokenBucketScript {
			t.Fatalf("expected script to match")
		}
		if len(mock.lastArgs) != 5 || mock.lastArgs[0] != 20 {
			t.Fatalf("unexpected args: %+v", mock.lastArgs)
		}
	})

	t.Run("deny when script returns 0", func(t *testing.T) {
		l := newRedisPrincipalRateLimiter(&mockRedisEvaler{result: 0}, 20, 20, time.Now)
		if l.TryConsume(context.Background(), "alice") {
			t.Fatalf("expected deny")
		}
	})

	t.Run("redis error fail-open", func(t *testing.T) {
		l := newRedisPrincipalRateLimiter(&mockRedisEvaler{err: errors.New("redis down")}, 20, 20, time.Now)
		if !l.TryConsume(context.Background(), "alice") {
			t.Fatalf("expected fail-open on redis errors")
		}
	})
}

func TestRedisPrincipalRateLimiter_TokenBucket(t *testing.T) {
	client := newTestRedis(t)
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	l := newRedisPrincipalRateLimiter(client, 20, 20, clock)
	ctx := context.Background()

	for i := 1; i <= 20; i++ {
		if !l.TryConsume(ctx, "alice") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if l.TryConsume(ctx, "alice") {
		t.Fatalf("request 21 should be denied")
	}
	if !l.TryConsume(ctx, "bob") {
		t.Fatalf("buckets must be per principal")
	}

	// 20 tokens por minuto: uno cada 3 segundos.
	now = now.Add(4 * time.Second)
	if !l.TryConsume(ctx, "alice") {
		t.Fatalf("expected one token after refill")
	}
	if l.TryConsume(ctx, "alice") {
		t.Fatalf("expected bucket to be empty again")
	}
}

func TestMemoryPrincipalRateLimiter_TryConsume(t *testing.T) {
	l := NewMemoryPrincipalRateLimiter(20, 20)
	ctx := context.Background()

	for i := 1; i <= 20; i++ {
		if !l.TryConsume(ctx, "alice") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if l.TryConsume(ctx, "alice") {
		t.Fatalf("request 21 should be denied")
	}
	if !l.TryConsume(ctx, "bob") {
		t.Fatalf("buckets must be per principal")
	}
	if l.TryConsume(ctx, "") {
		t.Fatalf("empty key must be rejected")
	}
}
