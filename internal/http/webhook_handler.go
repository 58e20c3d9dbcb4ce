package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitechat/internal/connector"
	"sitechat/internal/platform"
)

const maxWebhookBody = 1 << 20

// WebhookHandler recibe los lotes del proveedor externo.
type WebhookHandler struct {
	logger    *zap.Logger
	connector *connector.PlatformConnector
}

func NewWebhookHandler(logger *zap.Logger, pc *connector.PlatformConnector) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{logger: logger, connector: pc}
}

// Receive maneja POST /webhook/platform. Siempre responde 200 OK para evitar reentregas del lote;
// los eventos se procesan despues de responder.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("read webhook body failed", zap.Error(err))
		c.String(http.StatusOK, "OK")
		return
	}

	accepted, err := h.connector.Accept(c.Request.Context(), c.Request.Header, body)
	switch {
	case errors.Is(err, platform.ErrInvalidSignature):
		h.logger.Warn("webhook signature rejected", zap.String("client_ip", c.ClientIP()))
	case errors.Is(err, platform.ErrDisabled):
		h.logger.Warn("webhook received without platform provider")
	case err != nil:
		h.logger.Error("webhook decode failed", zap.Error(err))
	default:
		h.logger.Info("webhook accepted", zap.Int("events", accepted))
	}
	c.String(http.StatusOK, "OK")
}
