package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"sitechat/internal/domain"
)

type MessageRepository interface {
	// Create es idempotente sobre message.ID para que un reintento no duplique.
	Create(ctx context.Context, message domain.Message) error
	ListBySessionID(ctx context.Context, sessionID string) ([]domain.Message, error)
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

func (r *PgMessageRepository) Create(ctx context.Context, message domain.Message) error {
	const query = `
		INSERT INTO chat_messages (id, session_id, sender, content, platform, message_type, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		message.ID,
		message.SessionID,
		string(message.Sender),
		message.Content,
		string(message.Platform),
		nullableText(message.MessageType),
		message.Timestamp,
	)
	return err
}

func (r *PgMessageRepository) ListBySessionID(ctx context.Context, sessionID string) ([]domain.Message, error) {
	const query = `
		SELECT id, session_id, sender, content, platform, message_type, timestamp
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY timestamp ASC, seq ASC
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var (
			msg         domain.Message
			sender      string
			platform    string
			messageType *string
		)
		err = rows.Scan(
			&msg.ID,
			&msg.SessionID,
			&sender,
			&msg.Content,
			&platform,
			&messageType,
			&msg.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		msg.Sender = domain.Sender(sender)
		msg.Platform = domain.Platform(platform)
		if messageType != nil {
			msg.MessageType = *messageType
		}
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
