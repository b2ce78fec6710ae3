package rdb

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	seenPfx      = "hookstats:seen:"
	cachePfx     = "hookstats:cache:"
	rateLimitPfx = "hookstats:rl:"

	// seenTTL outlives GitHub's redelivery window; after that the database
	// unique constraint is the backstop.
	seenTTL  = 24 * time.Hour
	CacheTTL = 5 * time.Minute
)

type Client struct {
	rdb *redis.Client
}

func New(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	c := &Client{rdb: redis.NewClient(opts)}
	if err := c.rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return c, nil
}

func (c *Client) Close() error { return c.rdb.Close() }

// ── Delivery dedup ────────────────────────────────────────────────────────────

// MarkDelivery records a delivery ID and reports whether it was first seen
// now. False means a redelivery that can be dropped before touching the
// database. On a Redis error the delivery is treated as new; the insert's
// unique constraint catches the duplicate.
func (c *Client) MarkDelivery(ctx context.Context, deliveryID string) bool {
	ok, err := c.rdb.SetNX(ctx, seenPfx+deliveryID, 1, seenTTL).Result()
	if err != nil {
		return true
	}
	return ok
}

// ── Cache ─────────────────────────────────────────────────────────────────────

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.rdb.Get(ctx, cachePfx+key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set caches a response body. Entries expire by TTL; ingest never
// invalidates them, so a cached page can lag new deliveries by CacheTTL.
func (c *Client) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	c.rdb.Set(ctx, cachePfx+key, val, ttl)
}

// ── Rate limiting ─────────────────────────────────────────────────────────────

// RateLimit returns a chi-compatible middleware that limits requests per IP.
// max is the request count allowed per window duration.
func (c *Client) RateLimit(max int, window time.Duration) func(http.Handler) http.Handler {
	windowSecs := int64(window.Seconds())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := realIP(r)
			win := time.Now().Unix() / windowSecs
			key := fmt.Sprintf("%s%s:%d", rateLimitPfx, ip, win)

			pipe := c.rdb.Pipeline()
			incr := pipe.Incr(r.Context(), key)
			pipe.Expire(r.Context(), key, window*2)
			if _, err := pipe.Exec(r.Context()); err != nil {
				// On a Redis error, let the request through rather than blocking everyone.
				next.ServeHTTP(w, r)
				return
			}

			if incr.Val() > int64(max) {
				http.Error(w, "rate limited", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func realIP(r *http.Request) string {
	if xfwd := r.Header.Get("X-Forwarded-For"); xfwd != "" {
		return strings.TrimSpace(strings.SplitN(xfwd, ",", 2)[0])
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		return ip[:idx]
	}
	return ip
}
