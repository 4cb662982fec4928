package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// WindowCounter counts hits per key in fixed windows. Hit returns the count
// for the current window including this hit.
type WindowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter keeps window counters in Redis so limits hold across
// server instances.
type RedisCounter struct {
	client *redis.Client
	prefix string
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "cloudprime:ratelimit:"}
}

func (r *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	k := r.prefix + key
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", k, err)
	}
	if n == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return n, fmt.Errorf("redis expire %s: %w", k, err)
		}
	}
	return n, nil
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryCounter is the single-instance WindowCounter.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*memoryWindow), now: time.Now}
}

func (m *MemoryCounter) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		// Opportunistic sweep keeps the map bounded by active clients.
		for k, old := range m.windows {
			if !now.Before(old.resetAt) {
				delete(m.windows, k)
			}
		}
		w = &memoryWindow{resetAt: now.Add(window)}
		m.windows[key] = w
	}
	w.count++
	return w.count, nil
}

// WindowLimit allows at most limit requests per client IP in each window.
// Counter failures let the request through.
func WindowLimit(name string, counter WindowCounter, limit int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			n, err := counter.Hit(c.Request().Context(), name+":"+ip, window)
			if err != nil {
				slog.Warn("rate limit counter unavailable", "limiter", name, "error", err)
				return next(c)
			}
			if n > int64(limit) {
				slog.Warn("rate limit exceeded", "limiter", name, "ip", ip)
				rateLimitedTotal.WithLabelValues(name).Inc()
				return respondFail(c, http.StatusTooManyRequests, "too many requests, please try again later")
			}
			return next(c)
		}
	}
}
