package httpmiddleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"otpattend/internal/auth"
)

// Limiter decides whether another request under key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// KeyFunc picks the rate limit key of a request. An empty key skips limiting.
type KeyFunc func(c *gin.Context) string

// ByClientIP keys requests by client address.
func ByClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

// ByPrincipal keys requests by the signed in user. Anonymous requests are not limited.
func ByPrincipal(c *gin.Context) string {
	p, ok := auth.CurrentPrincipal(c)
	if !ok {
		return ""
	}
	return "user:" + p.Email
}

// Limit rejects requests with 429 once l refuses their key. Limiter errors
// are logged and the request is let through.
func Limit(l Limiter, key KeyFunc, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		k := key(c)
		if k == "" {
			c.Next()
			return
		}
		ok, err := l.Allow(c.Request.Context(), k)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.String("key", k), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

// SimpleTokenBucket is an in-memory rate limiter. Use RedisWindow when
// several instances share the limit.
type SimpleTokenBucket struct {
	capacity int
	rate     int
	per      time.Duration
	now      func() time.Time
	mu       sync.Mutex
	state    map[string]*bucket
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewSimpleTokenBucket creates limiter with capacity tokens and rate per minute.
func NewSimpleTokenBucket(capacity, perMinute int) *SimpleTokenBucket {
	return NewTokenBucket(capacity, perMinute, time.Minute)
}

// NewTokenBucket creates a limiter refilling rate tokens every per.
func NewTokenBucket(capacity, rate int, per time.Duration) *SimpleTokenBucket {
	if capacity <= 0 {
		capacity = rate
	}
	if per <= 0 {
		per = time.Minute
	}
	return &SimpleTokenBucket{
		capacity: capacity,
		rate:     rate,
		per:      per,
		now:      time.Now,
		state:    make(map[string]*bucket),
	}
}

// GinMiddleware returns gin handler enforcing per-IP limits.
func (l *SimpleTokenBucket) GinMiddleware() gin.HandlerFunc {
	return Limit(l, ByClientIP, nil)
}

// Allow takes one token from key's bucket.
func (l *SimpleTokenBucket) Allow(_ context.Context, key string) (bool, error) {
	return l.allow(key), nil
}

func (l *SimpleTokenBucket) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.state[key]
	now := l.now()
	if !ok {
		b = &bucket{tokens: l.capacity - 1, last: now}
		l.state[key] = b
		return true
	}
	refill := int(int64(now.Sub(b.last)) * int64(l.rate) / int64(l.per))
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// RedisWindow allows limit requests per key in each fixed window, counted
// in redis so every instance sees the same totals.
type RedisWindow struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisWindow creates a redis-backed limiter. prefix namespaces the counters.
func NewRedisWindow(client *redis.Client, prefix string, limit int, window time.Duration) *RedisWindow {
	return &RedisWindow{client: client, prefix: prefix, limit: int64(limit), window: window}
}

// Allow increments key's counter and reports whether it is within limit.
func (l *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.ExpireNX(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= l.limit, nil
}
