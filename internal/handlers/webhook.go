package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/google/go-github/v68/github"
	"go.uber.org/zap"

	"hookstats/internal/gh"
)

// Webhook serves POST /webhook: validate, dedupe, parse, store. The response
// is 202 once the delivery is durably stored; GitHub retries anything else.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	received := time.Now()

	payload, err := h.readPayload(r)
	if err != nil {
		h.clientError(w, "invalid payload: "+err.Error())
		return
	}
	deliveryID := github.DeliveryID(r)
	eventType := github.WebHookType(r)
	if deliveryID == "" || eventType == "" {
		h.clientError(w, "missing X-GitHub-Delivery or X-GitHub-Event header")
		return
	}

	// Fast-path dedup; the delivery_id unique constraint is the backstop
	// when Redis is down or evicted the key.
	if h.cache != nil && !h.cache.MarkDelivery(r.Context(), deliveryID) {
		if h.collector != nil {
			h.collector.DroppedReplays.Inc()
		}
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	event, err := gh.ParseEvent(deliveryID, eventType, payload, h.teams)
	if err != nil {
		if event.Repository == "" {
			h.clientError(w, err.Error())
			return
		}
		// Partially parsed deliveries are kept with the failure recorded.
		event.Status = "error"
		msg := err.Error()
		event.ErrorMessage = &msg
	}
	event.DurationMS = int(time.Since(received).Milliseconds())

	inserted, err := h.events.InsertEvent(r.Context(), event)
	if err != nil {
		h.serverError(w, r, "webhook", err)
		return
	}
	if h.collector != nil {
		if inserted {
			h.collector.IngestedEvents.WithLabelValues(event.EventType, event.Status).Inc()
		} else {
			h.collector.DroppedReplays.Inc()
		}
	}
	if !inserted {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	h.log.Info("stored webhook",
		zap.String("delivery_id", deliveryID),
		zap.String("event_type", event.EventType),
		zap.String("repository", event.Repository),
	)
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "stored"})
}

// readPayload reads the body, verifying the HMAC signature when a secret is
// configured.
func (h *Handler) readPayload(r *http.Request) ([]byte, error) {
	if h.cfg.WebhookSecret != "" {
		return github.ValidatePayload(r, []byte(h.cfg.WebhookSecret))
	}
	return io.ReadAll(r.Body)
}
