package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sitechat/internal/connector"
	"sitechat/internal/domain"
	"sitechat/internal/service"
)

// ChatHandler mantiene dependencias para endpoints de sesiones y mensajes del widget.
type ChatHandler struct {
	logger   *zap.Logger
	sessions *service.SessionService
	messages *service.MessageService
	web      *connector.WebConnector
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, sessions *service.SessionService, messages *service.MessageService, web *connector.WebConnector) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		logger:   logger,
		sessions: sessions,
		messages: messages,
		web:      web,
	}
}

// CreateSession maneja POST /api/chat/sessions.
func (h *ChatHandler) CreateSession(c *gin.Context) {
	var req struct {
		Platform domain.Platform `json:"platform"`
		Metadata map[string]any  `json:"metadata"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("invalid create session request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	if req.Platform == "" {
		req.Platform = domain.PlatformWeb
	}

	session, err := h.sessions.CreateSession(c.Request.Context(), req.Platform, req.Metadata)
	if err != nil {
		respondError(c, h.logger, "create session", err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": session.SessionID})
}

// GetSession maneja GET /api/chat/sessions/:sessionId.
func (h *ChatHandler) GetSession(c *gin.Context) {
	ctx := c.Request.Context()
	session, err := h.sessions.FindSession(ctx, c.Param("sessionId"))
	if err != nil {
		respondError(c, h.logger, "get session", err, http.StatusBadRequest)
		return
	}
	messages, err := h.messages.ListBySession(ctx, session.SessionID)
	if err != nil {
		respondError(c, h.logger, "list messages", err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": session.SessionID,
		"messages":  messages,
		"status":    session.Status,
		"platform":  session.Platform,
	})
}

// UpdateSession maneja PUT /api/chat/sessions/:sessionId.
func (h *ChatHandler) UpdateSession(c *gin.Context) {
	var req struct {
		Status domain.SessionStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid update session request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "field": "status"})
		return
	}

	if _, err := h.sessions.UpdateStatus(c.Request.Context(), c.Param("sessionId"), req.Status); err != nil {
		respondError(c, h.logger, "update session", err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// PostMessage maneja POST /api/chat/messages; la respuesta del bot vuelve inline.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	var req connector.WebInbound
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid post message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	inst, err := h.web.HandleInbound(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "process message", err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"content":   inst.Reply.Content,
		"messageId": inst.Reply.ID,
		"timestamp": inst.Reply.Timestamp.Format(time.RFC3339Nano),
	})
}

// ListMessages maneja GET /api/chat/sessions/:sessionId/messages.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	messages, err := h.messages.ListBySession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		respondError(c, h.logger, "list messages", err, http.StatusBadRequest)
		return
	}
	c.JSON(http.StatusOK, messages)
}
