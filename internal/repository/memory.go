package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"sitechat/internal/domain"
)

// MemoryStore agrupa repositorios en memoria que comparten estado, para desarrollo local y tests.
type MemoryStore struct {
	Sessions  *MemorySessionRepository
	Messages  *MemoryMessageRepository
	Knowledge *MemoryKnowledgeRepository
}

type memoryState struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	order    []string
	messages map[string][]domain.Message
	seenMsgs map[string]struct{}
	faqs     []domain.KnowledgeEntry
	nextFAQ  int64
}

func NewMemoryStore() *MemoryStore {
	state := &memoryState{
		sessions: make(map[string]domain.Session),
		messages: make(map[string][]domain.Message),
		seenMsgs: make(map[string]struct{}),
	}
	return &MemoryStore{
		Sessions:  &MemorySessionRepository{state: state},
		Messages:  &MemoryMessageRepository{state: state},
		Knowledge: &MemoryKnowledgeRepository{state: state},
	}
}

func cloneSession(s domain.Session) domain.Session {
	out := s
	if s.Metadata != nil {
		out.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	out.LastMessageAt = timePtr(s.LastMessageAt)
	out.EndedAt = timePtr(s.EndedAt)
	return out
}

type MemorySessionRepository struct {
	state *memoryState
}

func (r *MemorySessionRepository) Create(_ context.Context, session domain.Session) (domain.Session, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if _, exists := r.state.sessions[session.SessionID]; exists {
		return domain.Session{}, ErrDuplicate
	}
	return r.insertLocked(session), nil
}

func (r *MemorySessionRepository) insertLocked(session domain.Session) domain.Session {
	session = cloneSession(session)
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	r.state.sessions[session.SessionID] = session
	r.state.order = append(r.state.order, session.SessionID)
	return cloneSession(session)
}

func (r *MemorySessionRepository) CreateIfAbsent(_ context.Context, session domain.Session) (domain.Session, bool, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if session.ExternalUserID != "" {
		if existing, ok := r.findActiveLocked(session.Platform, session.ExternalUserID); ok {
			return cloneSession(existing), false, nil
		}
	}
	return r.insertLocked(session), true, nil
}

func (r *MemorySessionRepository) GetBySessionID(_ context.Context, sessionID string) (domain.Session, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	session, ok := r.state.sessions[sessionID]
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	return cloneSession(session), nil
}

func (r *MemorySessionRepository) FindActiveByExternalUser(_ context.Context, platform domain.Platform, externalUserID string) (domain.Session, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	session, ok := r.findActiveLocked(platform, externalUserID)
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	return cloneSession(session), nil
}

func (r *MemorySessionRepository) findActiveLocked(platform domain.Platform, externalUserID string) (domain.Session, bool) {
	for i := len(r.state.order) - 1; i >= 0; i-- {
		s, ok := r.state.sessions[r.state.order[i]]
		if !ok {
			continue
		}
		if s.Platform == platform && s.ExternalUserID == externalUserID && s.IsActive() {
			return s, true
		}
	}
	return domain.Session{}, false
}

func (r *MemorySessionRepository) Update(_ context.Context, sessionID string, update domain.SessionUpdate) (domain.Session, error) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	session, ok := r.state.sessions[sessionID]
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	if update.Status != nil {
		session.Status = *update.Status
	}
	if update.LastMessageAt != nil {
		if session.LastMessageAt == nil || update.LastMessageAt.After(*session.LastMessageAt) {
			session.LastMessageAt = timePtr(update.LastMessageAt)
		}
	}
	if update.EndedAt != nil && session.EndedAt == nil {
		session.EndedAt = timePtr(update.EndedAt)
	}
	r.state.sessions[sessionID] = session
	return cloneSession(session), nil
}

func (r *MemorySessionRepository) FindMany(_ context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()

	out := []domain.Session{}
	for _, id := range r.state.order {
		s, ok := r.state.sessions[id]
		if !ok {
			continue
		}
		if filter.Platform != "" && s.Platform != filter.Platform {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if filter.NewestFirst {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	if limit := clampLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, sessionID string) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if _, ok := r.state.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(r.state.sessions, sessionID)
	for i, id := range r.state.order {
		if id == sessionID {
			r.state.order = append(r.state.order[:i], r.state.order[i+1:]...)
			break
		}
	}
	for _, m := range r.state.messages[sessionID] {
		delete(r.state.seenMsgs, m.ID)
	}
	delete(r.state.messages, sessionID)
	return nil
}

type MemoryMessageRepository struct {
	state *memoryState
}

func (r *MemoryMessageRepository) Create(_ context.Context, message domain.Message) error {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	if _, dup := r.state.seenMsgs[message.ID]; dup {
		return nil
	}
	r.state.seenMsgs[message.ID] = struct{}{}
	r.state.messages[message.SessionID] = append(r.state.messages[message.SessionID], message)
	return nil
}

func (r *MemoryMessageRepository) ListBySessionID(_ context.Context, sessionID string) ([]domain.Message, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	out := make([]domain.Message, len(r.state.messages[sessionID]))
	copy(out, r.state.messages[sessionID])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

type MemoryKnowledgeRepository struct {
	state *memoryState
}

// Seed carga entradas FAQ; hace las veces del CMS cuando no hay Postgres.
func (r *MemoryKnowledgeRepository) Seed(entries ...domain.KnowledgeEntry) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	for _, e := range entries {
		if e.ID == 0 {
			r.state.nextFAQ++
			e.ID = r.state.nextFAQ
		} else if e.ID > r.state.nextFAQ {
			r.state.nextFAQ = e.ID
		}
		r.state.faqs = append(r.state.faqs, e)
	}
}

func (r *MemoryKnowledgeRepository) FindActiveMatches(_ context.Context, text string) ([]domain.KnowledgeEntry, error) {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()
	out := []domain.KnowledgeEntry{}
	for _, e := range r.state.faqs {
		if e.IsActive && e.Matches(text) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
