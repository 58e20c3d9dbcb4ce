package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sitechat/internal/domain"
	"sitechat/internal/platform"
)

const lineWebhookBody = `{"destination":"Ubot","events":[
  {"type":"message","webhookEventId":"ev-1","timestamp":1700000000000,
   "source":{"type":"user","userId":"U100"},"deliveryContext":{"isRedelivery":false},
   "message":{"id":"1","type":"text","text":"hours please"}},
  {"type":"message","webhookEventId":"ev-2","timestamp":1700000000001,
   "source":{"type":"user","userId":"U100"},"deliveryContext":{"isRedelivery":false},
   "message":{"id":"2","type":"image"}}
]}`

func postWebhook(r http.Handler, body []byte, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/platform", bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func drain(t *testing.T, srv testServer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.pc.Drain(ctx); err != nil {
		t.Fatalf("drain webhook events: %v", err)
	}
}

func TestWebhook_LineBatchProcessed(t *testing.T) {
	dec := platform.NewLineDecoder("channel-secret")
	srv := newTestServer(t, dec)

	header := http.Header{}
	header.Set("X-Line-Signature", dec.Sign([]byte(lineWebhookBody)))
	rec := postWebhook(srv.router, []byte(lineWebhookBody), header)

	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("expected 200 OK, got %d %q", rec.Code, rec.Body.String())
	}
	drain(t, srv)
	calls := srv.pusher.Pushed()
	if len(calls) != 1 || calls[0].UserID != "U100" || calls[0].Text != "We are open 9:00-18:00." {
		t.Fatalf("expected one reply push for the text event, got %+v", calls)
	}

	session, err := srv.sessions.ResolveOrCreate(context.Background(), domain.PlatformExternal, "U100")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	msgs, _ := srv.store.Messages.ListBySessionID(context.Background(), session.SessionID)
	if len(msgs) != 2 {
		t.Fatalf("expected user and bot messages, got %d", len(msgs))
	}
}

func TestWebhook_AlwaysAcks(t *testing.T) {
	dec := platform.NewLineDecoder("channel-secret")
	srv := newTestServer(t, dec)

	cases := map[string]struct {
		body   []byte
		header http.Header
	}{
		"bad signature": {[]byte(lineWebhookBody), http.Header{"X-Line-Signature": {"Zm9v"}}},
		"no signature":  {[]byte(lineWebhookBody), http.Header{}},
		"malformed":     {[]byte(`{`), http.Header{"X-Line-Signature": {dec.Sign([]byte(`{`))}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postWebhook(srv.router, tc.body, tc.header)
			if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
				t.Fatalf("expected 200 OK, got %d %q", rec.Code, rec.Body.String())
			}
		})
	}
	drain(t, srv)
	if len(srv.pusher.Pushed()) != 0 {
		t.Fatalf("rejected batches must not push replies")
	}
}
