package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"sitechat/internal/domain"
)

// KnowledgeRepository expone en solo lectura las FAQ que mantiene el CMS.
type KnowledgeRepository interface {
	// FindActiveMatches devuelve las entradas activas que coinciden con el texto,
	// ordenadas por prioridad descendente.
	FindActiveMatches(ctx context.Context, text string) ([]domain.KnowledgeEntry, error)
}

type PgKnowledgeRepository struct {
	pool *pgxpool.Pool
}

func NewPgKnowledgeRepository(pool *pgxpool.Pool) *PgKnowledgeRepository {
	return &PgKnowledgeRepository{pool: pool}
}

// La misma regla que domain.KnowledgeEntry.Matches; strpos evita escapar comodines de LIKE.
const knowledgeMatchQuery = `
	SELECT id, question, keywords, answer, is_active, priority
	FROM faqs
	WHERE is_active
	  AND (
		strpos(lower(btrim(question)), $1) > 0
		OR (btrim(question) <> '' AND strpos($1, lower(btrim(question))) > 0)
		OR strpos(lower(keywords), $1) > 0
		OR EXISTS (
			SELECT 1
			FROM unnest(string_to_array(keywords, ',')) AS kw
			WHERE btrim(kw) <> '' AND strpos($1, lower(btrim(kw))) > 0
		)
	  )
	ORDER BY priority DESC, id ASC
`

func (r *PgKnowledgeRepository) FindActiveMatches(ctx context.Context, text string) ([]domain.KnowledgeEntry, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return []domain.KnowledgeEntry{}, nil
	}

	rows, err := r.pool.Query(ctx, knowledgeMatchQuery, needle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.KnowledgeEntry{}
	for rows.Next() {
		var e domain.KnowledgeEntry
		if err := rows.Scan(&e.ID, &e.Question, &e.Keywords, &e.Answer, &e.IsActive, &e.Priority); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
