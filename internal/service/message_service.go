package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitechat/internal/domain"
	"sitechat/internal/repository"
)

// SessionToucher actualiza la marca de ultima actividad de una sesion.
type SessionToucher interface {
	Touch(ctx context.Context, sessionID string, at time.Time) error
}

// MessageService es el libro de mensajes: agrega en orden de llegada y etiqueta rol y canal.
type MessageService struct {
	logger  *zap.Logger
	repo    repository.MessageRepository
	toucher SessionToucher
	retry   RetryPolicy
	now     func() time.Time
}

func NewMessageService(logger *zap.Logger, repo repository.MessageRepository, toucher SessionToucher, retry RetryPolicy) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{
		logger:  logger,
		repo:    repo,
		toucher: toucher,
		retry:   retry,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append valida y persiste el mensaje y luego actualiza lastMessageAt de la sesion.
// Si falla la segunda escritura el historial queda intacto y solo lastMessageAt queda atrasado.
func (s *MessageService) Append(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if s == nil || s.repo == nil {
		return domain.Message{}, ErrServiceNotConfigured
	}

	msg.SessionID = strings.TrimSpace(msg.SessionID)
	msg.Content = strings.TrimSpace(msg.Content)
	msg.MessageType = strings.TrimSpace(msg.MessageType)

	if msg.SessionID == "" {
		return domain.Message{}, invalidField("sessionId", "is required")
	}
	if msg.Content == "" {
		return domain.Message{}, invalidField("content", "is required")
	}
	if !msg.Sender.Valid() {
		return domain.Message{}, invalidField("sender", "must be user, bot or staff")
	}
	if !msg.Platform.Valid() {
		return domain.Message{}, invalidField("platform", "must be web or external")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now().Truncate(time.Microsecond)
	}

	err := withRetryErr(ctx, s.retry, func(ctx context.Context) error {
		return s.repo.Create(ctx, msg)
	})
	if err != nil {
		return domain.Message{}, repoError("create message", err)
	}

	if s.toucher != nil {
		if err := s.toucher.Touch(ctx, msg.SessionID, msg.Timestamp); err != nil {
			s.logger.Warn("last_message_at update failed",
				zap.Error(err),
				zap.String("session_id", msg.SessionID),
				zap.String("message_id", msg.ID),
			)
		}
	}
	return msg, nil
}

// ListBySession devuelve los mensajes de la sesion ordenados por timestamp ascendente.
func (s *MessageService) ListBySession(ctx context.Context, sessionID string) ([]domain.Message, error) {
	if s == nil || s.repo == nil {
		return nil, ErrServiceNotConfigured
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return []domain.Message{}, nil
	}
	messages, err := withRetry(ctx, s.retry, func(ctx context.Context) ([]domain.Message, error) {
		return s.repo.ListBySessionID(ctx, sessionID)
	})
	if err != nil {
		return nil, repoError("list messages", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}
