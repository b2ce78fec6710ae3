package analytics

import (
	"time"

	"github.com/posthog/posthog-go"
	"go.uber.org/zap"
)

// Client wraps the PostHog client with nil-safe methods.
// A zero-value Client is a no-op (safe to use without initialization).
type Client struct {
	ph posthog.Client
}

// New creates a PostHog analytics client. Returns a no-op client if apiKey is empty.
func New(apiKey string, log *zap.Logger) *Client {
	if apiKey == "" {
		return &Client{}
	}
	ph, err := posthog.NewWithConfig(apiKey, posthog.Config{
		Endpoint: "https://us.i.posthog.com",
	})
	if err != nil {
		log.Warn("posthog init failed, analytics disabled", zap.Error(err))
		return &Client{}
	}
	return &Client{ph: ph}
}

// Close flushes pending events and closes the client.
func (c *Client) Close() {
	if c.ph != nil {
		c.ph.Close()
	}
}

// Capture enqueues an event asynchronously. Safe to call on a no-op client.
func (c *Client) Capture(distinctID, event string, props map[string]interface{}) {
	if c.ph == nil {
		return
	}
	p := posthog.NewProperties()
	for k, v := range props {
		p.Set(k, v)
	}
	_ = c.ph.Enqueue(posthog.Capture{
		DistinctId: distinctID,
		Event:      event,
		Properties: p,
	})
}

// CaptureQuery records one metrics endpoint hit, keyed by client IP.
func (c *Client) CaptureQuery(clientIP, endpoint string, took time.Duration) {
	c.Capture(clientIP, "metrics_query", map[string]interface{}{
		"endpoint":    endpoint,
		"duration_ms": took.Milliseconds(),
	})
}
