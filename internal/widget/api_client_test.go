package widget

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"sitechat/internal/connector"
	chathttp "sitechat/internal/http"
	"sitechat/internal/repository"
	"sitechat/internal/service"
)

func newChatServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	retry := service.RetryPolicy{Timeout: time.Second, BaseDelay: time.Millisecond}

	store := repository.NewMemoryStore()
	sessions := service.NewSessionService(nil, store.Sessions, retry)
	messages := service.NewMessageService(nil, store.Messages, sessions, retry)
	replies := service.NewReplyEngine(nil, store.Knowledge, &service.RoundRobinPicker{}, retry)
	conv := service.NewConversationService(nil, messages, replies)

	r := chathttp.NewRouter(nil, chathttp.RouterDeps{
		Chat: chathttp.NewChatHandler(nil, sessions, messages, connector.NewWebConnector(nil, sessions, conv)),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClient_AgainstServer(t *testing.T) {
	srv := newChatServer(t)
	client := NewHTTPClient(srv.URL, 5*time.Second)
	ctx := context.Background()

	id, err := client.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	reply, err := client.SendMessage(ctx, id, "สวัสดี")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply.Content != service.DefaultFallbackReplies[0] || reply.MessageID == "" || reply.Timestamp.IsZero() {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	view, err := client.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Status != "active" || len(view.Messages) != 2 {
		t.Fatalf("unexpected view: %+v", view)
	}

	if _, err := client.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	_, err = client.SendMessage(ctx, "", "hi")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 400 || apiErr.Field != "sessionId" {
		t.Fatalf("expected 400 on sessionId, got %v", err)
	}
}

func TestController_EndToEnd(t *testing.T) {
	srv := newChatServer(t)
	store := &MemoryStore{}
	c := NewController(NewHTTPClient(srv.URL, 5*time.Second), store, nil)
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.SendMessage(ctx, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	first := c.Snapshot()

	resumed := NewController(NewHTTPClient(srv.URL, 5*time.Second), store, nil)
	if err := resumed.Start(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	snap := resumed.Snapshot()
	if snap.SessionID != first.SessionID || len(snap.Transcript) != 2 {
		t.Fatalf("expected resumed transcript, got %+v", snap)
	}
}
