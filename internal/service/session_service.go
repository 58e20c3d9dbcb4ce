package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitechat/internal/domain"
	"sitechat/internal/repository"
)

// SessionService resuelve la identidad de un visitante a exactamente una sesion activa.
type SessionService struct {
	logger   *zap.Logger
	sessions repository.SessionRepository
	retry    RetryPolicy
	now      func() time.Time
}

func NewSessionService(logger *zap.Logger, sessions repository.SessionRepository, retry RetryPolicy) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		logger:   logger,
		sessions: sessions,
		retry:    retry,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewSessionToken genera el sessionId visible: marca de tiempo en milisegundos mas 64 bits aleatorios.
func NewSessionToken(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), random)
}

func (s *SessionService) ready() error {
	if s == nil || s.sessions == nil {
		return ErrServiceNotConfigured
	}
	return nil
}

func (s *SessionService) newSession(platform domain.Platform, externalUserID string, metadata map[string]any) domain.Session {
	now := s.now().Truncate(time.Microsecond)
	return domain.Session{
		SessionID:      NewSessionToken(now),
		Platform:       platform,
		Status:         domain.SessionActive,
		ExternalUserID: externalUserID,
		Metadata:       metadata,
		StartedAt:      now,
	}
}

// CreateSession crea una sesion activa nueva para el canal indicado.
func (s *SessionService) CreateSession(ctx context.Context, platform domain.Platform, metadata map[string]any) (domain.Session, error) {
	if err := s.ready(); err != nil {
		return domain.Session{}, err
	}
	if !platform.Valid() {
		return domain.Session{}, invalidField("platform", "must be web or external")
	}

	session := s.newSession(platform, "", metadata)
	attempts := 0
	created, err := withRetry(ctx, s.retry, func(ctx context.Context) (domain.Session, error) {
		attempts++
		out, err := s.sessions.Create(ctx, session)
		if attempts > 1 && errors.Is(err, repository.ErrDuplicate) {
			// El intento anterior llego a insertar la fila antes de vencer su timeout.
			return s.sessions.GetBySessionID(ctx, session.SessionID)
		}
		return out, err
	})
	if err != nil {
		return domain.Session{}, repoError("create session", err)
	}
	s.logger.Info("session created", zap.String("session_id", created.SessionID), zap.String("platform", string(platform)))
	return created, nil
}

// FindSession busca una sesion por su sessionId visible.
func (s *SessionService) FindSession(ctx context.Context, sessionID string) (domain.Session, error) {
	if err := s.ready(); err != nil {
		return domain.Session{}, err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, invalidField("sessionId", "is required")
	}
	session, err := withRetry(ctx, s.retry, func(ctx context.Context) (domain.Session, error) {
		return s.sessions.GetBySessionID(ctx, sessionID)
	})
	if err != nil {
		return domain.Session{}, repoError("find session", err)
	}
	return session, nil
}

// ResolveOrCreate devuelve la sesion activa del usuario externo o crea una.
// La creacion es un insert-if-absent en el repositorio; dos llamadas concurrentes obtienen la misma sesion.
func (s *SessionService) ResolveOrCreate(ctx context.Context, platform domain.Platform, externalUserID string) (domain.Session, error) {
	if err := s.ready(); err != nil {
		return domain.Session{}, err
	}
	if !platform.Valid() {
		return domain.Session{}, invalidField("platform", "must be web or external")
	}
	externalUserID = strings.TrimSpace(externalUserID)
	if externalUserID == "" {
		return domain.Session{}, invalidField("externalUserId", "is required")
	}

	existing, err := withRetry(ctx, s.retry, func(ctx context.Context) (domain.Session, error) {
		return s.sessions.FindActiveByExternalUser(ctx, platform, externalUserID)
	})
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.Session{}, repoError("find active session", err)
	}

	candidate := s.newSession(platform, externalUserID, nil)
	type outcome struct {
		session domain.Session
		created bool
	}
	res, err := withRetry(ctx, s.retry, func(ctx context.Context) (outcome, error) {
		session, created, err := s.sessions.CreateIfAbsent(ctx, candidate)
		return outcome{session: session, created: created}, err
	})
	if err != nil {
		return domain.Session{}, repoError("create session if absent", err)
	}
	if res.created {
		s.logger.Info("session created",
			zap.String("session_id", res.session.SessionID),
			zap.String("platform", string(platform)),
			zap.String("external_user_id", externalUserID),
		)
	}
	return res.session, nil
}

// CloseSession marca la sesion como cerrada. Cerrar una sesion ya cerrada no cambia endedAt.
func (s *SessionService) CloseSession(ctx context.Context, sessionID string) (domain.Session, error) {
	session, err := s.FindSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !session.IsActive() {
		return session, nil
	}

	status := domain.SessionClosed
	endedAt := s.now().Truncate(time.Microsecond)
	closed, err := withRetry(ctx, s.retry, func(ctx context.Context) (domain.Session, error) {
		return s.sessions.Update(ctx, session.SessionID, domain.SessionUpdate{Status: &status, EndedAt: &endedAt})
	})
	if err != nil {
		return domain.Session{}, repoError("close session", err)
	}
	s.logger.Info("session closed", zap.String("session_id", closed.SessionID))
	return closed, nil
}

// UpdateStatus aplica una transicion de estado pedida por el cliente.
func (s *SessionService) UpdateStatus(ctx context.Context, sessionID string, status domain.SessionStatus) (domain.Session, error) {
	if !status.Valid() {
		return domain.Session{}, invalidField("status", "must be active or closed")
	}
	if status == domain.SessionClosed {
		return s.CloseSession(ctx, sessionID)
	}

	session, err := s.FindSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !session.IsActive() {
		return domain.Session{}, invalidField("status", "closed sessions cannot be reopened")
	}
	return session, nil
}

// Touch actualiza lastMessageAt; no es transaccional con la escritura del mensaje.
func (s *SessionService) Touch(ctx context.Context, sessionID string, at time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	err := withRetryErr(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.sessions.Update(ctx, sessionID, domain.SessionUpdate{LastMessageAt: &at})
		return err
	})
	if err != nil {
		return repoError("touch session", err)
	}
	return nil
}

// ListSessions consulta sesiones por filtro para el panel de staff.
func (s *SessionService) ListSessions(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if filter.Platform != "" && !filter.Platform.Valid() {
		return nil, invalidField("platform", "must be web or external")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalidField("status", "must be active or closed")
	}
	sessions, err := withRetry(ctx, s.retry, func(ctx context.Context) ([]domain.Session, error) {
		return s.sessions.FindMany(ctx, filter)
	})
	if err != nil {
		return nil, repoError("list sessions", err)
	}
	return sessions, nil
}

func (s *SessionService) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return invalidField("sessionId", "is required")
	}
	err := withRetryErr(ctx, s.retry, func(ctx context.Context) error {
		return s.sessions.Delete(ctx, sessionID)
	})
	if err != nil {
		return repoError("delete session", err)
	}
	s.logger.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}
