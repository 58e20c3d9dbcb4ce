package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"sitechat/internal/domain"
)

var (
	// ErrNotFound se devuelve cuando el registro pedido no existe.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate se devuelve cuando ya existe un registro con la misma clave unica.
	ErrDuplicate = errors.New("record already exists")
)

const pgUniqueViolation = "23505"

const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) (domain.Session, error)
	// CreateIfAbsent inserta la sesion solo si no existe otra activa para el mismo
	// (platform, external_user_id). Devuelve la sesion ganadora y si fue creada.
	CreateIfAbsent(ctx context.Context, session domain.Session) (domain.Session, bool, error)
	GetBySessionID(ctx context.Context, sessionID string) (domain.Session, error)
	FindActiveByExternalUser(ctx context.Context, platform domain.Platform, externalUserID string) (domain.Session, error)
	Update(ctx context.Context, sessionID string, update domain.SessionUpdate) (domain.Session, error)
	FindMany(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

type PgSessionRepository struct {
	pool *pgxpool.Pool
}

func NewPgSessionRepository(pool *pgxpool.Pool) *PgSessionRepository {
	return &PgSessionRepository{pool: pool}
}

const sessionColumns = `id::text, session_id, platform, status, external_user_id, metadata, started_at, last_message_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		session        domain.Session
		platform       string
		status         string
		externalUserID *string
		metadata       map[string]any
	)
	err := row.Scan(
		&session.ID,
		&session.SessionID,
		&platform,
		&status,
		&externalUserID,
		&metadata,
		&session.StartedAt,
		&session.LastMessageAt,
		&session.EndedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	session.Platform = domain.Platform(platform)
	session.Status = domain.SessionStatus(status)
	if externalUserID != nil {
		session.ExternalUserID = *externalUserID
	}
	if len(metadata) > 0 {
		session.Metadata = metadata
	}
	return session, nil
}

func nullableText(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func metadataValue(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func (r *PgSessionRepository) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	query := `
		INSERT INTO chat_sessions (session_id, platform, status, external_user_id, metadata, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + sessionColumns
	created, err := scanSession(r.pool.QueryRow(ctx, query,
		session.SessionID,
		string(session.Platform),
		string(session.Status),
		nullableText(session.ExternalUserID),
		metadataValue(session.Metadata),
		session.StartedAt,
	))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return domain.Session{}, fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return created, err
}

func (r *PgSessionRepository) CreateIfAbsent(ctx context.Context, session domain.Session) (domain.Session, bool, error) {
	if session.ExternalUserID == "" {
		created, err := r.Create(ctx, session)
		return created, err == nil, err
	}

	// El indice parcial chat_sessions_active_external_uq resuelve la carrera en la base.
	query := `
		INSERT INTO chat_sessions (session_id, platform, status, external_user_id, metadata, started_at)
		VALUES ($1, $2, 'active', $3, $4, $5)
		ON CONFLICT (platform, external_user_id) WHERE status = 'active' AND external_user_id IS NOT NULL
		DO NOTHING
		RETURNING ` + sessionColumns
	created, err := scanSession(r.pool.QueryRow(ctx, query,
		session.SessionID,
		string(session.Platform),
		session.ExternalUserID,
		metadataValue(session.Metadata),
		session.StartedAt,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.Session{}, false, err
	}

	existing, err := r.FindActiveByExternalUser(ctx, session.Platform, session.ExternalUserID)
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("load conflicting session: %w", err)
	}
	return existing, false, nil
}

func (r *PgSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE session_id = $1`
	return scanSession(r.pool.QueryRow(ctx, query, sessionID))
}

func (r *PgSessionRepository) FindActiveByExternalUser(ctx context.Context, platform domain.Platform, externalUserID string) (domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE platform = $1 AND external_user_id = $2 AND status = 'active'
		ORDER BY started_at DESC
		LIMIT 1`
	return scanSession(r.pool.QueryRow(ctx, query, string(platform), externalUserID))
}

func (r *PgSessionRepository) Update(ctx context.Context, sessionID string, update domain.SessionUpdate) (domain.Session, error) {
	var (
		sets []string
		args []any
	)
	if update.Status != nil {
		args = append(args, string(*update.Status))
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if update.LastMessageAt != nil {
		args = append(args, *update.LastMessageAt)
		sets = append(sets, fmt.Sprintf("last_message_at = GREATEST(COALESCE(last_message_at, $%d), $%d)", len(args), len(args)))
	}
	if update.EndedAt != nil {
		// ended_at se fija una sola vez.
		args = append(args, *update.EndedAt)
		sets = append(sets, fmt.Sprintf("ended_at = COALESCE(ended_at, $%d)", len(args)))
	}
	if len(sets) == 0 {
		return r.GetBySessionID(ctx, sessionID)
	}

	args = append(args, sessionID)
	query := fmt.Sprintf(`UPDATE chat_sessions SET %s WHERE session_id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), sessionColumns)
	return scanSession(r.pool.QueryRow(ctx, query, args...))
}

func (r *PgSessionRepository) FindMany(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	var (
		where []string
		args  []any
	)
	if filter.Platform != "" {
		args = append(args, string(filter.Platform))
		where = append(where, fmt.Sprintf("platform = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + sessionColumns + ` FROM chat_sessions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if filter.NewestFirst {
		query += ` ORDER BY started_at DESC, id`
	} else {
		query += ` ORDER BY started_at ASC, id`
	}
	args = append(args, clampLimit(filter.Limit))
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *PgSessionRepository) Delete(ctx context.Context, sessionID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultSessionLimit
	}
	if limit > maxSessionLimit {
		return maxSessionLimit
	}
	return limit
}

// timePtr copia el valor para no compartir punteros entre llamadas.
func timePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
