package platform

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const lineBody = `{
  "destination": "Uxxxxxxxx",
  "events": [
    {
      "type": "message",
      "webhookEventId": "01H000000000000000000001",
      "timestamp": 1700000000000,
      "replyToken": "rt-1",
      "source": {"type": "user", "userId": "U123"},
      "deliveryContext": {"isRedelivery": false},
      "message": {"id": "m1", "type": "text", "text": "สวัสดี"}
    },
    {
      "type": "message",
      "webhookEventId": "01H000000000000000000002",
      "timestamp": 1700000001000,
      "source": {"type": "user", "userId": "U123"},
      "deliveryContext": {"isRedelivery": true},
      "message": {"id": "m2", "type": "sticker"}
    },
    {
      "type": "follow",
      "timestamp": 1700000002000,
      "source": {"type": "user", "userId": "U456"}
    }
  ]
}`

func TestLineDecoder_Decode(t *testing.T) {
	dec := NewLineDecoder("secret")
	header := http.Header{}
	header.Set(lineSignatureHeader, dec.Sign([]byte(lineBody)))

	events, err := dec.Decode(header, []byte(lineBody))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	first := events[0]
	if !first.IsText() || first.UserID != "U123" || first.Text != "สวัสดี" || first.ID != "01H000000000000000000001" {
		t.Fatalf("unexpected first event: %+v", first)
	}
	if !first.Timestamp.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("unexpected timestamp: %v", first.Timestamp)
	}
	if events[1].IsText() || !events[1].Redelivery {
		t.Fatalf("sticker must not be text and should be a redelivery: %+v", events[1])
	}
	if events[2].IsText() || events[2].ID == "" {
		t.Fatalf("follow event should get a synthesized id and not be text: %+v", events[2])
	}
}

func TestLineDecoder_RejectsBadSignature(t *testing.T) {
	dec := NewLineDecoder("secret")

	cases := map[string]string{
		"missing":     "",
		"not base64":  "%%%",
		"wrong value": NewLineDecoder("other").Sign([]byte(lineBody)),
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			header := http.Header{}
			if sig != "" {
				header.Set(lineSignatureHeader, sig)
			}
			if _, err := dec.Decode(header, []byte(lineBody)); !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("expected ErrInvalidSignature, got %v", err)
			}
		})
	}
}

func TestLineDecoder_MalformedBody(t *testing.T) {
	dec := NewLineDecoder("secret")
	body := []byte(`{"events": [`)
	header := http.Header{}
	header.Set(lineSignatureHeader, dec.Sign(body))

	if _, err := dec.Decode(header, body); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestLineClient_Push(t *testing.T) {
	var got pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/push" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token-1" {
			t.Errorf("missing bearer token")
		}
		if r.Header.Get("X-Line-Retry-Key") == "" {
			t.Errorf("missing retry key")
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewLineClient(srv.URL+"/", "token-1", srv.Client(), nil)
	if err := client.Push(context.Background(), "U123", "hello"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got.To != "U123" || len(got.Messages) != 1 || got.Messages[0].Text != "hello" || got.Messages[0].Type != "text" {
		t.Fatalf("unexpected push body: %+v", got)
	}
}

func TestLineClient_PushErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"The request body has 1 error(s)"}`))
	}))
	defer srv.Close()

	client := NewLineClient(srv.URL, "token-1", srv.Client(), nil)
	if err := client.Push(context.Background(), "U123", "hello"); err == nil {
		t.Fatalf("expected error on 400")
	}
	if err := client.Push(context.Background(), " ", "hello"); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
}
