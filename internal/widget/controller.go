package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"sitechat/internal/domain"
)

var (
	ErrNotReady     = errors.New("chat not ready")
	ErrBusy         = errors.New("a message is already being sent")
	ErrEmptyMessage = errors.New("message is empty")
	ErrUnknownEntry = errors.New("unknown transcript entry")
)

// State es el estado principal del controlador.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateResolving     State = "resolving"
	StateReady         State = "ready"
	StateError         State = "error"
)

// EntryStatus indica si un mensaje local ya fue confirmado por el servidor.
type EntryStatus string

const (
	EntryPending EntryStatus = "pending"
	EntrySent    EntryStatus = "sent"
	EntryFailed  EntryStatus = "failed"
)

// Entry es una linea del transcript que muestra el widget.
type Entry struct {
	ID        string
	Sender    domain.Sender
	Content   string
	Timestamp time.Time
	Status    EntryStatus
}

// Snapshot es una copia inmutable del estado para renderizar.
type Snapshot struct {
	State      State
	SessionID  string
	Open       bool
	Sending    bool
	Error      string
	Transcript []Entry
}

// Controller es la maquina de estados del widget del visitante.
type Controller struct {
	mu         sync.Mutex
	api        API
	store      Store
	logger     *zap.Logger
	now        func() time.Time
	state      State
	sessionID  string
	open       bool
	sending    bool
	lastErr    error
	transcript []Entry
	localSeq   int
}

func NewController(api API, store Store, logger *zap.Logger) *Controller {
	if store == nil {
		store = &MemoryStore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		api:    api,
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		state:  StateUninitialized,
	}
}

// Start resuelve la sesion: reanuda la guardada o crea una nueva si no existe o ya no sirve.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateResolving {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateResolving
	c.lastErr = nil
	c.mu.Unlock()

	sessionID, transcript, err := c.resolve(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateError
		c.lastErr = err
		return err
	}
	c.sessionID = sessionID
	c.transcript = transcript
	c.state = StateReady
	return nil
}

func (c *Controller) resolve(ctx context.Context) (string, []Entry, error) {
	stored, err := c.store.Load()
	if err != nil {
		c.logger.Warn("load stored session failed", zap.Error(err))
		stored = ""
	}

	if stored != "" {
		view, err := c.api.GetSession(ctx, stored)
		switch {
		case err == nil && view.Status == domain.SessionActive:
			return view.SessionID, entriesFrom(view.Messages), nil
		case err == nil:
			c.logger.Info("stored session is closed, starting a new one", zap.String("session_id", stored))
		case errors.Is(err, ErrSessionNotFound):
			c.logger.Info("stored session not found, starting a new one", zap.String("session_id", stored))
		default:
			return "", nil, fmt.Errorf("resume session: %w", err)
		}
	}

	sessionID, err := c.api.CreateSession(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}
	if err := c.store.Save(sessionID); err != nil {
		c.logger.Warn("persist session id failed", zap.Error(err))
	}
	return sessionID, []Entry{}, nil
}

func entriesFrom(messages []domain.Message) []Entry {
	out := make([]Entry, 0, len(messages))
	for _, m := range messages {
		out = append(out, Entry{
			ID:        m.ID,
			Sender:    m.Sender,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Status:    EntrySent,
		})
	}
	return out
}

// SendMessage agrega el mensaje de forma optimista y luego lo envia.
// Si el envio falla el mensaje queda en el transcript marcado como failed.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if err := c.beginSendLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.localSeq++
	entry := Entry{
		ID:        fmt.Sprintf("local-%d", c.localSeq),
		Sender:    domain.SenderUser,
		Content:   text,
		Timestamp: c.now(),
		Status:    EntryPending,
	}
	c.transcript = append(c.transcript, entry)
	c.mu.Unlock()

	return c.deliver(ctx, entry.ID, text)
}

// Retry reenvia un mensaje marcado como failed.
func (c *Controller) Retry(ctx context.Context, entryID string) error {
	c.mu.Lock()
	idx := c.indexLocked(entryID)
	if idx < 0 || c.transcript[idx].Status != EntryFailed {
		c.mu.Unlock()
		return ErrUnknownEntry
	}
	if err := c.beginSendLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.transcript[idx].Status = EntryPending
	text := c.transcript[idx].Content
	c.mu.Unlock()

	return c.deliver(ctx, entryID, text)
}

func (c *Controller) beginSendLocked() error {
	if c.sessionID == "" || (c.state != StateReady && c.state != StateError) {
		return ErrNotReady
	}
	if c.sending {
		return ErrBusy
	}
	c.sending = true
	return nil
}

func (c *Controller) deliver(ctx context.Context, entryID, text string) error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	reply, err := c.api.SendMessage(ctx, sessionID, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false
	idx := c.indexLocked(entryID)

	if err != nil {
		if idx >= 0 {
			c.transcript[idx].Status = EntryFailed
		}
		c.state = StateError
		c.lastErr = err
		c.logger.Warn("send message failed", zap.String("session_id", sessionID), zap.Error(err))
		return err
	}

	if idx >= 0 {
		c.transcript[idx].Status = EntrySent
	}
	ts := reply.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	c.transcript = append(c.transcript, Entry{
		ID:        reply.MessageID,
		Sender:    domain.SenderBot,
		Content:   reply.Content,
		Timestamp: ts,
		Status:    EntrySent,
	})
	if c.state == StateError && !c.hasFailedLocked() {
		c.state = StateReady
		c.lastErr = nil
	}
	return nil
}

func (c *Controller) indexLocked(entryID string) int {
	for i := range c.transcript {
		if c.transcript[i].ID == entryID {
			return i
		}
	}
	return -1
}

func (c *Controller) hasFailedLocked() bool {
	for _, e := range c.transcript {
		if e.Status == EntryFailed {
			return true
		}
	}
	return false
}

// OpenChat y CloseChat solo cambian la visibilidad; no tocan el estado de la sesion en el servidor.
func (c *Controller) OpenChat() {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
}

func (c *Controller) CloseChat() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

// DismissError oculta el banner de error y conserva el transcript.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
	if c.state != StateError {
		return
	}
	if c.sessionID != "" {
		c.state = StateReady
	} else {
		c.state = StateUninitialized
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{
		State:      c.state,
		SessionID:  c.sessionID,
		Open:       c.open,
		Sending:    c.sending,
		Transcript: make([]Entry, len(c.transcript)),
	}
	copy(s.Transcript, c.transcript)
	if c.lastErr != nil {
		s.Error = c.lastErr.Error()
	}
	return s
}
