package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"sitechat/internal/domain"
	"sitechat/internal/repository"
)

type stubKnowledgeRepo struct {
	entries []domain.KnowledgeEntry
	err     error
	calls   atomic.Int32
}

func (s *stubKnowledgeRepo) FindActiveMatches(_ context.Context, _ string) ([]domain.KnowledgeEntry, error) {
	s.calls.Add(1)
	return s.entries, s.err
}

type fixedPicker int

func (p fixedPicker) Pick(int) int { return int(p) }

func seededKnowledge(entries ...domain.KnowledgeEntry) repository.KnowledgeRepository {
	store := repository.NewMemoryStore()
	store.Knowledge.Seed(entries...)
	return store.Knowledge
}

func isFallback(text string) bool {
	for _, r := range DefaultFallbackReplies {
		if r == text {
			return true
		}
	}
	return false
}

func TestReplyEngine_PriorityWins(t *testing.T) {
	knowledge := seededKnowledge(
		domain.KnowledgeEntry{Question: "Where is the office?", Keywords: "hours,location", Answer: "low", IsActive: true, Priority: 1},
		domain.KnowledgeEntry{Question: "What are your hours?", Keywords: "open,close", Answer: "We are open 9-18.", IsActive: true, Priority: 5},
	)
	engine := NewReplyEngine(nil, knowledge, &RoundRobinPicker{}, testRetry)

	reply := engine.Resolve(context.Background(), "hours")
	if reply.Text != "We are open 9-18." || reply.Source != ReplyFromKnowledge {
		t.Fatalf("expected priority 5 answer, got %+v", reply)
	}
	if reply.EntryID != 2 {
		t.Fatalf("expected entry 2, got %d", reply.EntryID)
	}
}

func TestReplyEngine_TieBreaksOnLowestID(t *testing.T) {
	repo := &stubKnowledgeRepo{entries: []domain.KnowledgeEntry{
		{ID: 9, Answer: "nine", IsActive: true, Priority: 3},
		{ID: 4, Answer: "four", IsActive: true, Priority: 3},
		{ID: 7, Answer: "seven", IsActive: true, Priority: 2},
	}}
	engine := NewReplyEngine(nil, repo, nil, testRetry)

	if got := engine.GenerateReply(context.Background(), "anything"); got != "four" {
		t.Fatalf("expected tie-break on id, got %q", got)
	}
}

func TestReplyEngine_SkipsInactiveAndEmptyAnswers(t *testing.T) {
	repo := &stubKnowledgeRepo{entries: []domain.KnowledgeEntry{
		{ID: 1, Answer: "inactive", IsActive: false, Priority: 10},
		{ID: 2, Answer: "  ", IsActive: true, Priority: 9},
		{ID: 3, Answer: "ok", IsActive: true, Priority: 1},
	}}
	engine := NewReplyEngine(nil, repo, nil, testRetry)

	if got := engine.GenerateReply(context.Background(), "x"); got != "ok" {
		t.Fatalf("expected active non-empty answer, got %q", got)
	}
}

func TestReplyEngine_FallbackWhenNoMatch(t *testing.T) {
	knowledge := seededKnowledge(domain.KnowledgeEntry{Question: "What are your hours?", Answer: "9-18", IsActive: true})
	engine := NewReplyEngine(nil, knowledge, nil, testRetry)

	for i := 0; i < 20; i++ {
		reply := engine.Resolve(context.Background(), "สวัสดี")
		if reply.Source != ReplyFromFallback || !isFallback(reply.Text) {
			t.Fatalf("expected fallback reply, got %+v", reply)
		}
	}
}

func TestReplyEngine_EmptyTextUsesFallbackWithoutLookup(t *testing.T) {
	repo := &stubKnowledgeRepo{}
	engine := NewReplyEngine(nil, repo, fixedPicker(1), testRetry)

	if got := engine.GenerateReply(context.Background(), "   "); got != DefaultFallbackReplies[1] {
		t.Fatalf("unexpected reply %q", got)
	}
	if repo.calls.Load() != 0 {
		t.Fatalf("expected no lookup for empty text")
	}
}

func TestReplyEngine_RoundRobinCyclesFallbacks(t *testing.T) {
	engine := NewReplyEngine(nil, &stubKnowledgeRepo{}, &RoundRobinPicker{}, testRetry).
		WithFallbacks([]string{"a", " ", "b"})

	got := []string{
		engine.GenerateReply(context.Background(), "x"),
		engine.GenerateReply(context.Background(), "x"),
		engine.GenerateReply(context.Background(), "x"),
	}
	want := []string{"a", "b", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reply %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestReplyEngine_OutOfRangePickerClamps(t *testing.T) {
	engine := NewReplyEngine(nil, &stubKnowledgeRepo{}, fixedPicker(99), testRetry)
	if got := engine.GenerateReply(context.Background(), "x"); got != DefaultFallbackReplies[0] {
		t.Fatalf("expected first fallback, got %q", got)
	}
}

func TestReplyEngine_ApologyOnRepositoryError(t *testing.T) {
	repo := &stubKnowledgeRepo{err: errors.New("connection refused")}
	engine := NewReplyEngine(nil, repo, nil, testRetry)

	reply := engine.Resolve(context.Background(), "hours")
	if reply.Text != ApologyReply || reply.Source != ReplyFromApology {
		t.Fatalf("expected apology, got %+v", reply)
	}
	if !errors.Is(reply.Err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream detail, got %v", reply.Err)
	}
	if repo.calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", repo.calls.Load())
	}
}

func TestReplyEngine_NotConfiguredReturnsApology(t *testing.T) {
	var engine *ReplyEngine
	if got := engine.GenerateReply(context.Background(), "hi"); got != ApologyReply {
		t.Fatalf("expected apology, got %q", got)
	}
}

func TestNewFallbackPicker(t *testing.T) {
	if _, ok := NewFallbackPicker("round_robin").(*RoundRobinPicker); !ok {
		t.Fatalf("expected round robin picker")
	}
	if _, ok := NewFallbackPicker("").(RandomPicker); !ok {
		t.Fatalf("expected random picker by default")
	}
	for i := 0; i < 50; i++ {
		if idx := (RandomPicker{}).Pick(4); idx < 0 || idx >= 4 {
			t.Fatalf("index out of range: %d", idx)
		}
	}
}

func TestConversationService_InboundAndRecord(t *testing.T) {
	store := repository.NewMemoryStore()
	store.Knowledge.Seed(domain.KnowledgeEntry{Question: "What are your hours?", Keywords: "hours", Answer: "9-18", IsActive: true, Priority: 5})
	sessions := NewSessionService(nil, store.Sessions, testRetry)
	messages := NewMessageService(nil, store.Messages, sessions, testRetry)
	conv := NewConversationService(nil, messages, NewReplyEngine(nil, store.Knowledge, nil, testRetry))
	ctx := context.Background()

	session, err := sessions.CreateSession(ctx, domain.PlatformWeb, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	userMsg, reply, err := conv.Inbound(ctx, session, "  opening hours?  ")
	if err != nil {
		t.Fatalf("inbound: %v", err)
	}
	if userMsg.Sender != domain.SenderUser || userMsg.Content != "opening hours?" {
		t.Fatalf("unexpected user message: %+v", userMsg)
	}
	if reply.Text != "9-18" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	botMsg, err := conv.RecordReply(ctx, session, reply.Text)
	if err != nil {
		t.Fatalf("record reply: %v", err)
	}
	if botMsg.Sender != domain.SenderBot || botMsg.MessageType != domain.MessageTypeAutoReply {
		t.Fatalf("unexpected bot message: %+v", botMsg)
	}

	list, err := messages.ListBySession(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(list))
	}

	closed, err := sessions.CloseSession(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, err := conv.Inbound(ctx, closed, "hello"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if _, err := conv.RecordStaff(ctx, closed, "hello"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed for staff, got %v", err)
	}
}
