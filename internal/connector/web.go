package connector

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"sitechat/internal/domain"
	"sitechat/internal/service"
)

// WebInbound es el cuerpo de POST /api/chat/messages.
type WebInbound struct {
	SessionID string          `json:"sessionId"`
	Content   string          `json:"content"`
	Platform  domain.Platform `json:"platform"`
}

// WebConnector atiende el widget web de forma sincronica: la respuesta se devuelve inline.
type WebConnector struct {
	logger   *zap.Logger
	sessions *service.SessionService
	conv     *service.ConversationService
}

var _ Connector[WebInbound] = (*WebConnector)(nil)

func NewWebConnector(logger *zap.Logger, sessions *service.SessionService, conv *service.ConversationService) *WebConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebConnector{logger: logger, sessions: sessions, conv: conv}
}

func validateWeb(in WebInbound) error {
	switch {
	case strings.TrimSpace(in.SessionID) == "":
		return &service.ValidationError{Field: "sessionId", Reason: "is required"}
	case strings.TrimSpace(in.Content) == "":
		return &service.ValidationError{Field: "content", Reason: "is required"}
	case in.Platform == "":
		return &service.ValidationError{Field: "platform", Reason: "is required"}
	case in.Platform != domain.PlatformWeb:
		return &service.ValidationError{Field: "platform", Reason: "must be web"}
	}
	return nil
}

func (w *WebConnector) HandleInbound(ctx context.Context, in WebInbound) (DeliveryInstruction, error) {
	if w == nil || w.sessions == nil || w.conv == nil {
		return DeliveryInstruction{}, service.ErrServiceNotConfigured
	}
	if err := validateWeb(in); err != nil {
		return DeliveryInstruction{}, err
	}

	session, err := w.sessions.FindSession(ctx, in.SessionID)
	if err != nil {
		return DeliveryInstruction{}, err
	}

	_, reply, err := w.conv.Inbound(ctx, session, in.Content)
	if err != nil {
		return DeliveryInstruction{}, err
	}
	if reply.Err != nil {
		w.logger.Warn("reply degraded to apology",
			zap.String("session_id", session.SessionID),
			zap.String("platform", string(session.Platform)),
			zap.Error(reply.Err),
		)
	}

	botMsg, err := w.conv.RecordReply(ctx, session, reply.Text)
	if err != nil {
		w.logger.Error("record bot reply failed",
			zap.String("session_id", session.SessionID),
			zap.String("platform", string(session.Platform)),
			zap.Error(err),
		)
		return DeliveryInstruction{}, err
	}

	return DeliveryInstruction{
		Kind:      DeliveryInline,
		SessionID: session.SessionID,
		Reply:     botMsg,
		Delivered: true,
	}, nil
}
