package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"payflow/internal/billing"
	"payflow/internal/core"
	"payflow/internal/external"
	"payflow/internal/types"
)

// maxWebhookBodySize caps gateway webhook payloads (64 KB). Real payloads are
// a few hundred bytes; the limit protects against abuse.
const maxWebhookBodySize = 64 * 1024

// signatureHeader carries the gateway's HMAC signature of the raw body.
const signatureHeader = "X-Payment-Signature"

// EventReconciler applies one gateway webhook event to local billing state.
// Implemented by billing.Reconciler.
type EventReconciler interface {
	HandleEvent(ctx context.Context, event types.WebhookEvent, now time.Time) (*billing.ReconcileOutcome, error)
}

// WebhookAck is the response returned to the gateway. The gateway only needs
// a 2xx to stop redelivering; the body is for humans reading delivery logs.
type WebhookAck struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Status  billing.ReconcileStatus `json:"status,omitempty"`
}

// GatewayWebhookHandler handles asynchronous payment events from the gateway.
// It is NOT behind auth middleware: the gateway calls it directly, and
// authenticity comes from the signature over the raw body.
type GatewayWebhookHandler struct {
	verifier   external.WebhookVerifier
	reconciler EventReconciler
	logger     *slog.Logger
	now        func() time.Time
}

// NewGatewayWebhookHandler creates a gateway webhook handler.
func NewGatewayWebhookHandler(
	verifier external.WebhookVerifier,
	reconciler EventReconciler,
	logger *slog.Logger,
) *GatewayWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GatewayWebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes mounts the webhook route onto the provided router.
func (h *GatewayWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/gateway", h.Handle)
}

// Handle processes POST /v1/webhooks/gateway.
//
// Signature verification is a precondition: an unverifiable delivery is
// rejected with 401 and never reaches the reconciler. Past that gate,
// outcomes split by whether redelivery can help: storage and transport
// failures surface as 5xx so the gateway's at-least-once redelivery retries
// the grant, while business no-ops (terminal-state conflicts) are acked with
// 200 because redelivering the same event can never change the result.
func (h *GatewayWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodySize))
	if err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"failed to read webhook body",
			err,
		))
		return
	}

	if err := h.verifier.Verify(body, r.Header.Get(signatureHeader)); err != nil {
		core.Error(w, r, err)
		return
	}

	var event types.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"webhook body is not valid JSON",
			err,
		))
		return
	}

	outcome, err := h.reconciler.HandleEvent(r.Context(), event, h.now())
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus() < http.StatusInternalServerError {
			// Redelivery cannot change the outcome; ack to stop it.
			h.logger.WarnContext(r.Context(), "webhook reconciliation refused",
				slog.String("event", event.Event),
				slog.String("external_payment_id", event.Object.ID),
				slog.Any("error", err),
			)
			core.JSON(w, r, http.StatusOK, WebhookAck{
				Success: true,
				Message: "Webhook acknowledged",
			})
			return
		}

		// Storage and transport failures are retryable: surface them so the
		// gateway redelivers and the grant runs again.
		h.logger.ErrorContext(r.Context(), "webhook reconciliation failed",
			slog.String("event", event.Event),
			slog.String("external_payment_id", event.Object.ID),
			slog.Any("error", err),
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, WebhookAck{
		Success: true,
		Message: "Webhook processed",
		Status:  outcome.Status,
	})
}
