package api

import (
	"io"
	"log/slog"
	"net/http"

	shared "github.com/felixgeelhaar/taskbrain/internal/shared/domain"
	taskssync "github.com/felixgeelhaar/taskbrain/internal/sync"
)

// Provider signature headers.
const (
	todoistSignatureHeader = "X-Todoist-Hmac-SHA256"
	linearSignatureHeader  = "X-Linear-Signature"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookHandler feeds inbound provider deliveries into the sync pipeline.
type WebhookHandler struct {
	pipeline *taskssync.Pipeline
	logger   *slog.Logger
}

// NewWebhookHandler creates the handler.
func NewWebhookHandler(pipeline *taskssync.Pipeline, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{pipeline: pipeline, logger: logger}
}

// Todoist handles POST /webhooks/todoist.
func (h *WebhookHandler) Todoist(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(r.Context(), w, h.logger, shared.NewValidationError("could not read request body"))
		return
	}

	if err := h.pipeline.HandleTodoist(r.Context(), body, r.Header.Get(todoistSignatureHeader)); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// Linear handles POST /webhooks/linear.
func (h *WebhookHandler) Linear(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(r.Context(), w, h.logger, shared.NewValidationError("could not read request body"))
		return
	}

	if err := h.pipeline.HandleLinear(r.Context(), body, r.Header.Get(linearSignatureHeader)); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
