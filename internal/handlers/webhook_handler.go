package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aurumly/payment-reconciler/internal/models"
	"github.com/aurumly/payment-reconciler/internal/service"
	"github.com/aurumly/payment-reconciler/internal/signature"
	"github.com/aurumly/payment-reconciler/internal/telemetry"
)

const signatureHeader = "X-Webhook-Signature"

type WebhookHandler struct {
	verifier   *signature.Verifier
	reconciler *service.Reconciler
}

func NewWebhookHandler(verifier *signature.Verifier, reconciler *service.Reconciler) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, reconciler: reconciler}
}

// HandleNotification receives the gateway's asynchronous payment
// notifications. The signature is checked against the untouched body bytes
// before anything is parsed; a forged payload never reaches the reconciler.
// The response is 200 for any verified payload, including unrecognized event
// types, so the gateway does not redeliver forever.
func (h *WebhookHandler) HandleNotification(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read request body"})
		return
	}

	presented := c.GetHeader(signatureHeader)
	if !h.verifier.Verify(rawBody, presented) {
		telemetry.WebhooksReceived.WithLabelValues("rejected").Inc()
		telemetry.Logger.Warn("Webhook signature verification failed",
			zap.Bool("signature_present", presented != ""),
			zap.String("client_ip", c.ClientIP()),
		)
		// Generic rejection; never reveal the expected digest.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var payload models.WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		telemetry.Logger.Error("Failed to parse verified webhook payload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "malformed payload"})
		return
	}

	event := &models.NotificationEvent{
		EventType:     payload.EventType,
		OrderID:       payload.Data.OrderID,
		PaymentID:     payload.Data.PaymentID,
		PaymentMethod: payload.Data.PaymentMethod,
		FailureReason: payload.Data.PaymentError,
	}

	if err := h.reconciler.HandleNotification(c.Request.Context(), event); err != nil {
		telemetry.Logger.Error("Failed to process notification",
			zap.String("order_id", event.OrderID),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process notification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
