package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"courtbook/internal/metrics"
)

// RateLimiter is a fixed-window counter per key, shared across replicas through redis.
type RateLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
	logger zerolog.Logger
}

func NewRateLimiter(client redis.UniversalClient, limit int, window time.Duration, prefix string, logger zerolog.Logger) *RateLimiter {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: prefix,
		logger: logger.With().Str("component", "ratelimit").Logger(),
	}
}

// Allow counts one hit for key and reports whether it is within the limit,
// along with the time until the window resets.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := l.prefix + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		ttl = p.TTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", key, err)
	}

	// A fresh key, or one left without expiry, opens a new window.
	remaining := ttl.Val()
	if incr.Val() == 1 || remaining < 0 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return false, 0, fmt.Errorf("rate limit %s: %w", key, err)
		}
		remaining = l.window
	}
	return incr.Val() <= int64(l.limit), remaining, nil
}

// Middleware limits requests per client IP. Redis failures let the request through.
func (l *RateLimiter) Middleware(message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retry, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			l.logger.Warn().Err(err).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !ok {
			metrics.IncRateLimited()
			if retry > 0 {
				c.Header("Retry-After", strconv.Itoa(int(retry.Round(time.Second)/time.Second)))
			}
			abortError(c, http.StatusTooManyRequests, "rate_limited", message)
			return
		}
		c.Next()
	}
}
