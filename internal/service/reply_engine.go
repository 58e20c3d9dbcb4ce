package service

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"sitechat/internal/domain"
	"sitechat/internal/repository"
)

// ApologyReply se envia cuando no se pudo consultar la base de conocimiento o procesar el mensaje.
const ApologyReply = "Sorry, we could not process your message right now. Please try again in a moment."

// DefaultFallbackReplies es el conjunto fijo de saludos cuando ninguna FAQ coincide.
var DefaultFallbackReplies = []string{
	"สวัสดีครับ! Thanks for reaching out. Our team will get back to you shortly.",
	"Hello! Thanks for your message. Could you tell us a little more about what you need?",
	"Thanks for contacting us! A member of our team will reply as soon as possible.",
	"Hi there! We received your message and will follow up soon.",
}

// FallbackPicker elige el indice de la respuesta de respaldo.
type FallbackPicker interface {
	Pick(n int) int
}

// RandomPicker elige de forma uniforme; es el comportamiento de produccion.
type RandomPicker struct{}

func (RandomPicker) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	return rand.IntN(n)
}

// RoundRobinPicker recorre las respuestas en orden; determinista para tests.
type RoundRobinPicker struct {
	next atomic.Uint64
}

func (p *RoundRobinPicker) Pick(n int) int {
	if n <= 1 {
		return 0
	}
	return int((p.next.Add(1) - 1) % uint64(n))
}

// NewFallbackPicker construye el picker segun FALLBACK_STRATEGY.
func NewFallbackPicker(strategy string) FallbackPicker {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case "round_robin", "round-robin", "roundrobin":
		return &RoundRobinPicker{}
	default:
		return RandomPicker{}
	}
}

// ReplySource indica de donde salio el texto de una respuesta.
type ReplySource string

const (
	ReplyFromKnowledge ReplySource = "knowledge"
	ReplyFromFallback  ReplySource = "fallback"
	ReplyFromApology   ReplySource = "apology"
)

// Reply es el resultado del motor. Err solo informa; el texto siempre es utilizable.
type Reply struct {
	Text    string
	Source  ReplySource
	EntryID int64
	Err     error
}

// ReplyEngine sintetiza una respuesta a partir de la base de conocimiento con respaldo.
type ReplyEngine struct {
	logger    *zap.Logger
	knowledge repository.KnowledgeRepository
	picker    FallbackPicker
	fallbacks []string
	retry     RetryPolicy
}

func NewReplyEngine(logger *zap.Logger, knowledge repository.KnowledgeRepository, picker FallbackPicker, retry RetryPolicy) *ReplyEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if picker == nil {
		picker = RandomPicker{}
	}
	return &ReplyEngine{
		logger:    logger,
		knowledge: knowledge,
		picker:    picker,
		fallbacks: DefaultFallbackReplies,
		retry:     retry,
	}
}

// WithFallbacks reemplaza el conjunto de respuestas de respaldo. Un conjunto vacio se ignora.
func (e *ReplyEngine) WithFallbacks(replies []string) *ReplyEngine {
	cleaned := make([]string, 0, len(replies))
	for _, r := range replies {
		if r = strings.TrimSpace(r); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	if len(cleaned) > 0 {
		e.fallbacks = cleaned
	}
	return e
}

// GenerateReply nunca falla: devuelve la respuesta FAQ, un saludo de respaldo o la disculpa.
func (e *ReplyEngine) GenerateReply(ctx context.Context, inboundText string) string {
	return e.Resolve(ctx, inboundText).Text
}

// Resolve es GenerateReply con el detalle de origen.
func (e *ReplyEngine) Resolve(ctx context.Context, inboundText string) Reply {
	if e == nil || e.knowledge == nil {
		return Reply{Text: ApologyReply, Source: ReplyFromApology, Err: ErrServiceNotConfigured}
	}
	text := strings.TrimSpace(inboundText)
	if text == "" {
		return e.fallback()
	}

	entries, err := withRetry(ctx, e.retry, func(ctx context.Context) ([]domain.KnowledgeEntry, error) {
		return e.knowledge.FindActiveMatches(ctx, text)
	})
	if err != nil {
		err = repoError("find knowledge entries", err)
		e.logger.Error("knowledge lookup failed", zap.Error(err), zap.Int("text_len", len(text)))
		return Reply{Text: ApologyReply, Source: ReplyFromApology, Err: err}
	}

	if best, ok := bestEntry(entries); ok {
		return Reply{Text: best.Answer, Source: ReplyFromKnowledge, EntryID: best.ID}
	}
	return e.fallback()
}

func (e *ReplyEngine) fallback() Reply {
	if len(e.fallbacks) == 0 {
		return Reply{Text: ApologyReply, Source: ReplyFromApology}
	}
	idx := e.picker.Pick(len(e.fallbacks))
	if idx < 0 || idx >= len(e.fallbacks) {
		idx = 0
	}
	return Reply{Text: e.fallbacks[idx], Source: ReplyFromFallback}
}

// bestEntry toma la de mayor prioridad; en empate gana el id menor.
func bestEntry(entries []domain.KnowledgeEntry) (domain.KnowledgeEntry, bool) {
	var (
		best  domain.KnowledgeEntry
		found bool
	)
	for _, entry := range entries {
		if !entry.IsActive || strings.TrimSpace(entry.Answer) == "" {
			continue
		}
		if !found || entry.Priority > best.Priority || (entry.Priority == best.Priority && entry.ID < best.ID) {
			best = entry
			found = true
		}
	}
	return best, found
}
