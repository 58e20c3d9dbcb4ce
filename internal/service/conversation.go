package service

import (
	"context"

	"go.uber.org/zap"

	"sitechat/internal/domain"
)

// ConversationService es el camino unico de calculo de respuesta que comparten todos los canales.
type ConversationService struct {
	logger   *zap.Logger
	messages *MessageService
	replies  *ReplyEngine
}

func NewConversationService(logger *zap.Logger, messages *MessageService, replies *ReplyEngine) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{logger: logger, messages: messages, replies: replies}
}

// Inbound registra el mensaje del usuario y calcula la respuesta, sin registrarla todavia.
func (c *ConversationService) Inbound(ctx context.Context, session domain.Session, content string) (domain.Message, Reply, error) {
	if c == nil || c.messages == nil || c.replies == nil {
		return domain.Message{}, Reply{}, ErrServiceNotConfigured
	}
	if !session.IsActive() {
		return domain.Message{}, Reply{}, ErrSessionClosed
	}

	userMsg, err := c.messages.Append(ctx, domain.Message{
		SessionID: session.SessionID,
		Sender:    domain.SenderUser,
		Content:   content,
		Platform:  session.Platform,
	})
	if err != nil {
		return domain.Message{}, Reply{}, err
	}

	reply := c.replies.Resolve(ctx, userMsg.Content)
	c.logger.Info("reply computed",
		zap.String("session_id", session.SessionID),
		zap.String("platform", string(session.Platform)),
		zap.String("source", string(reply.Source)),
		zap.Int64("entry_id", reply.EntryID),
	)
	return userMsg, reply, nil
}

// RecordReply registra la respuesta automatica del bot en el libro.
func (c *ConversationService) RecordReply(ctx context.Context, session domain.Session, text string) (domain.Message, error) {
	if c == nil || c.messages == nil {
		return domain.Message{}, ErrServiceNotConfigured
	}
	return c.messages.Append(ctx, domain.Message{
		SessionID:   session.SessionID,
		Sender:      domain.SenderBot,
		Content:     text,
		Platform:    session.Platform,
		MessageType: domain.MessageTypeAutoReply,
	})
}

// RecordStaff registra un mensaje escrito por una persona del equipo.
func (c *ConversationService) RecordStaff(ctx context.Context, session domain.Session, text string) (domain.Message, error) {
	if c == nil || c.messages == nil {
		return domain.Message{}, ErrServiceNotConfigured
	}
	if !session.IsActive() {
		return domain.Message{}, ErrSessionClosed
	}
	return c.messages.Append(ctx, domain.Message{
		SessionID: session.SessionID,
		Sender:    domain.SenderStaff,
		Content:   text,
		Platform:  session.Platform,
	})
}
