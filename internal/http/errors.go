package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitechat/internal/service"
)

// respondError traduce errores del servicio a status HTTP.
// fallback es el status para errores sin mapeo explicito.
func respondError(c *gin.Context, logger *zap.Logger, op string, err error, fallback int) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, service.ErrSessionClosed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "session is closed"})
	default:
		logger.Error(op+" failed", zap.Error(err))
		c.JSON(fallback, gin.H{"error": "could not " + op})
	}
}
