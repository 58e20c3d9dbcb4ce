package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitechat/internal/connector"
	"sitechat/internal/domain"
	"sitechat/internal/service"
)

// StaffHandler expone la bandeja del equipo: login, listado, respuesta manual y borrado.
type StaffHandler struct {
	logger    *zap.Logger
	auth      *service.StaffAuthService
	sessions  *service.SessionService
	connector *connector.PlatformConnector
}

func NewStaffHandler(logger *zap.Logger, auth *service.StaffAuthService, sessions *service.SessionService, pc *connector.PlatformConnector) *StaffHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaffHandler{logger: logger, auth: auth, sessions: sessions, connector: pc}
}

// Login maneja POST /staff/login.
func (h *StaffHandler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		case errors.Is(err, service.ErrServiceNotConfigured):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "staff login disabled"})
		default:
			h.logger.Error("staff login failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not login"})
		}
		return
	}
	h.logger.Info("staff login", zap.String("username", req.Username))
	c.JSON(http.StatusOK, token)
}

// ListSessions maneja GET /staff/sessions.
func (h *StaffHandler) ListSessions(c *gin.Context) {
	filter := domain.SessionFilter{
		Platform:    domain.Platform(c.Query("platform")),
		Status:      domain.SessionStatus(c.Query("status")),
		NewestFirst: true,
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit", "field": "limit"})
			return
		}
		filter.Limit = limit
	}

	sessions, err := h.sessions.ListSessions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, "list sessions", err, http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// PostMessage maneja POST /staff/sessions/:sessionId/messages.
func (h *StaffHandler) PostMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "field": "content"})
		return
	}

	author := "staff"
	if claims, ok := StaffClaims(c); ok {
		author = claims.Username
	}

	ctx := c.Request.Context()
	session, err := h.sessions.FindSession(ctx, c.Param("sessionId"))
	if err != nil {
		respondError(c, h.logger, "find session", err, http.StatusInternalServerError)
		return
	}

	inst, err := h.connector.DeliverStaff(ctx, session, req.Content)
	if err != nil {
		if errors.Is(err, service.ErrDelivery) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "message recorded but delivery failed", "message": inst.Reply})
			return
		}
		respondError(c, h.logger, "post staff message", err, http.StatusInternalServerError)
		return
	}
	h.logger.Info("staff message sent",
		zap.String("session_id", session.SessionID),
		zap.String("staff", author),
		zap.String("platform", string(session.Platform)),
	)
	c.JSON(http.StatusCreated, gin.H{"message": inst.Reply, "delivered": inst.Delivered})
}

// DeleteSession maneja DELETE /staff/sessions/:sessionId.
func (h *StaffHandler) DeleteSession(c *gin.Context) {
	if err := h.sessions.DeleteSession(c.Request.Context(), c.Param("sessionId")); err != nil {
		respondError(c, h.logger, "delete session", err, http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}
