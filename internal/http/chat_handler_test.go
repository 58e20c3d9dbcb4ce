package http

import (
	"net/http"
	"testing"
	"time"
)

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Platform  string `json:"platform"`
	Messages  []struct {
		ID          string `json:"id"`
		Sender      string `json:"sender"`
		Content     string `json:"content"`
		MessageType string `json:"messageType"`
	} `json:"messages"`
}

func createSession(t *testing.T, srv testServer) string {
	t.Helper()
	rec := performRequest(srv.router, http.MethodPost, "/api/chat/sessions", map[string]any{"platform": "web"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	decodeBody(t, rec, &out)
	if out.SessionID == "" {
		t.Fatalf("expected sessionId")
	}
	return out.SessionID
}

func TestChatHandler_WebConversationScenario(t *testing.T) {
	srv := newTestServer(t, nil)
	sid := createSession(t, srv)

	rec := performRequest(srv.router, http.MethodPost, "/api/chat/messages", map[string]any{
		"sessionId": sid,
		"content":   "สวัสดี",
		"platform":  "web",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var reply struct {
		Content   string `json:"content"`
		MessageID string `json:"messageId"`
		Timestamp string `json:"timestamp"`
	}
	decodeBody(t, rec, &reply)
	if reply.Content == "" || reply.MessageID == "" {
		t.Fatalf("expected reply content and id, got %+v", reply)
	}
	if _, err := time.Parse(time.RFC3339Nano, reply.Timestamp); err != nil {
		t.Fatalf("expected RFC3339 timestamp, got %q", reply.Timestamp)
	}

	rec = performRequest(srv.router, http.MethodGet, "/api/chat/sessions/"+sid, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var session sessionResponse
	decodeBody(t, rec, &session)
	if session.Status != "active" || session.Platform != "web" || session.SessionID != sid {
		t.Fatalf("unexpected session: %+v", session)
	}
	if len(session.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(session.Messages))
	}
	if session.Messages[0].Sender != "user" || session.Messages[0].Content != "สวัสดี" {
		t.Fatalf("unexpected user message: %+v", session.Messages[0])
	}
	if session.Messages[1].Sender != "bot" || session.Messages[1].ID != reply.MessageID || session.Messages[1].MessageType != "auto-reply" {
		t.Fatalf("unexpected bot message: %+v", session.Messages[1])
	}
}

func TestChatHandler_KnowledgeAnswer(t *testing.T) {
	srv := newTestServer(t, nil)
	sid := createSession(t, srv)

	rec := performRequest(srv.router, http.MethodPost, "/api/chat/messages", map[string]any{
		"sessionId": sid,
		"content":   "What are your hours?",
		"platform":  "web",
	})
	var reply struct {
		Content string `json:"content"`
	}
	decodeBody(t, rec, &reply)
	if reply.Content != "We are open 9:00-18:00." {
		t.Fatalf("expected FAQ answer, got %q", reply.Content)
	}
}

func TestChatHandler_CreateSessionDefaultsAndValidation(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := performRequest(srv.router, http.MethodPost, "/api/chat/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected empty body to create web session, got %d", rec.Code)
	}

	rec = performRequest(srv.router, http.MethodPost, "/api/chat/sessions", map[string]any{"platform": "fax"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on unknown platform, got %d", rec.Code)
	}
	var out struct {
		Field string `json:"field"`
	}
	decodeBody(t, rec, &out)
	if out.Field != "platform" {
		t.Fatalf("expected field platform, got %q", out.Field)
	}
}

func TestChatHandler_PostMessageErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	sid := createSession(t, srv)

	cases := []struct {
		name   string
		body   map[string]any
		status int
		field  string
	}{
		{"missing session", map[string]any{"content": "hi", "platform": "web"}, http.StatusBadRequest, "sessionId"},
		{"missing content", map[string]any{"sessionId": sid, "platform": "web"}, http.StatusBadRequest, "content"},
		{"missing platform", map[string]any{"sessionId": sid, "content": "hi"}, http.StatusBadRequest, "platform"},
		{"unknown session", map[string]any{"sessionId": "nope", "content": "hi", "platform": "web"}, http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := performRequest(srv.router, http.MethodPost, "/api/chat/messages", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.field != "" {
				var out struct {
					Field string `json:"field"`
				}
				decodeBody(t, rec, &out)
				if out.Field != tc.field {
					t.Fatalf("expected field %q, got %q", tc.field, out.Field)
				}
			}
		})
	}
}

func TestChatHandler_UpdateSession(t *testing.T) {
	srv := newTestServer(t, nil)
	sid := createSession(t, srv)

	rec := performRequest(srv.router, http.MethodPut, "/api/chat/sessions/"+sid, map[string]any{"status": "closed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		Success bool `json:"success"`
	}
	decodeBody(t, rec, &out)
	if !out.Success {
		t.Fatalf("expected success true")
	}

	rec = performRequest(srv.router, http.MethodPut, "/api/chat/sessions/"+sid, map[string]any{"status": "closed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected idempotent close, got %d", rec.Code)
	}
	rec = performRequest(srv.router, http.MethodPut, "/api/chat/sessions/"+sid, map[string]any{"status": "active"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected reopen to be rejected, got %d", rec.Code)
	}
	rec = performRequest(srv.router, http.MethodPut, "/api/chat/sessions/missing", map[string]any{"status": "closed"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = performRequest(srv.router, http.MethodPut, "/api/chat/sessions/"+sid, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on missing status, got %d", rec.Code)
	}

	rec = performRequest(srv.router, http.MethodPost, "/api/chat/messages", map[string]any{
		"sessionId": sid, "content": "still there?", "platform": "web",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for closed session, got %d", rec.Code)
	}
}

func TestChatHandler_GetAndListMessages(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := performRequest(srv.router, http.MethodGet, "/api/chat/sessions/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	sid := createSession(t, srv)
	rec = performRequest(srv.router, http.MethodGet, "/api/chat/sessions/"+sid+"/messages", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "[]" {
		t.Fatalf("expected empty array, got %d %s", rec.Code, rec.Body.String())
	}

	performRequest(srv.router, http.MethodPost, "/api/chat/messages", map[string]any{"sessionId": sid, "content": "hello", "platform": "web"})
	rec = performRequest(srv.router, http.MethodGet, "/api/chat/sessions/"+sid+"/messages", nil)
	var msgs []map[string]any
	decodeBody(t, rec, &msgs)
	if len(msgs) != 2 || msgs[0]["sender"] != "user" || msgs[1]["sender"] != "bot" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}
