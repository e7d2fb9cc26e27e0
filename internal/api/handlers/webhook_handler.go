package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"pipesync/internal/engine/security"
	"pipesync/internal/engine/webhook"
	"pipesync/internal/pkg/errors"
)

// Webhook deliveries top out well under this; anything larger is not a CRM
// event.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	policy    security.Policy
	processor *webhook.Processor
}

func NewWebhookHandler(policy security.Policy, processor *webhook.Processor) *WebhookHandler {
	return &WebhookHandler{policy: policy, processor: processor}
}

// Receive is the inbound webhook endpoint. Verification and normalization
// failures are terminal: 401 and 400 respectively, neither re-delivered by
// the platform. Processing failures return 500 on purpose so the platform
// retries the delivery.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidFormat, "Failed to read request body", nil)
		return
	}

	if err := h.policy.Verify(r, body); err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("webhook verification failed")
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Webhook verification failed", nil)
		return
	}

	evt, err := webhook.Normalize(r, body)
	if err != nil {
		log.Warn().Err(err).Msg("webhook normalization failed")
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidFormat, err.Error(), nil)
		return
	}

	result, err := h.processor.Process(r.Context(), evt)
	if err != nil {
		// 500 deliberately triggers a platform-side retry.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "error",
			"message": "webhook processing failed",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Status    string `json:"status"`
		Processed bool   `json:"processed"`
		Action    string `json:"action"`
	}{
		Status:    "ok",
		Processed: result.Processed,
		Action:    result.Action,
	})
}

// Health reports liveness. Access is governed by the dual-path gate.
func (h *WebhookHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Status    string `json:"status"`
		Service   string `json:"service"`
		Timestamp int64  `json:"timestamp"`
	}{
		Status:    "ok",
		Service:   "pipesync",
		Timestamp: time.Now().Unix(),
	})
}
