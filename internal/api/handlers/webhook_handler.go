package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/gateway"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

// WebhookHandler receives payment outcome callbacks from the gateway.
// Responses matter here: a non-2xx tells the gateway to redeliver, a
// 2xx acknowledges the event for good.
type WebhookHandler struct {
	reconciler *services.ReconcilerService
	secret     string
	log        logger.Logger
}

func NewWebhookHandler(reconciler *services.ReconcilerService, secret string, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		secret:     secret,
		log:        log,
	}
}

func (h *WebhookHandler) HandleGatewayEvent(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid_request", "Unable to read body"))
	}

	signature := c.Request().Header.Get(gateway.SignatureHeader)
	if !gateway.VerifySignature(h.secret, body, signature) {
		h.log.Warn("Webhook signature verification failed", "remote", c.RealIP())
		return c.JSON(http.StatusUnauthorized, errorBody("invalid_signature", "Signature verification failed"))
	}

	var event domain.GatewayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid_payload", "Malformed event payload"))
	}
	if event.SessionID == "" || event.Outcome == "" {
		return c.JSON(http.StatusBadRequest, errorBody("invalid_payload", "session_id and outcome are required"))
	}

	if err := h.reconciler.OnGatewayEvent(c.Request().Context(), &event); err != nil {
		h.log.Error("Failed to apply gateway event",
			"event_id", event.ID, "session_id", event.SessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("reconcile_failed", "Event not applied, retry later"))
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "received"})
}
