package platform

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
)

const telegramBody = `{
  "update_id": 1001,
  "message": {
    "message_id": 5,
    "date": 1700000000,
    "chat": {"id": 42, "type": "private"},
    "from": {"id": 42, "is_bot": false, "first_name": "Ann"},
    "text": "What are your hours?"
  }
}`

type fakeTelegramSender struct {
	err    error
	delay  time.Duration
	chatID int64
	text   string
}

func (f *fakeTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.chatID = msg.ChatID
		f.text = msg.Text
	}
	return tgbotapi.Message{}, f.err
}

func TestTelegramDecoder_Decode(t *testing.T) {
	dec := NewTelegramDecoder("s3cret")
	header := http.Header{}
	header.Set(telegramSecretHeader, "s3cret")

	events, err := dec.Decode(header, []byte(telegramBody))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected a batch of one, got %d", len(events))
	}
	ev := events[0]
	if !ev.IsText() || ev.UserID != "42" || ev.ID != "tg:1001" || ev.Text != "What are your hours?" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if !ev.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected timestamp: %v", ev.Timestamp)
	}
}

func TestTelegramDecoder_SecretAndNonText(t *testing.T) {
	dec := NewTelegramDecoder("s3cret")
	if _, err := dec.Decode(http.Header{}, []byte(telegramBody)); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}

	open := NewTelegramDecoder("")
	events, err := open.Decode(http.Header{}, []byte(`{"update_id": 7, "message": {"message_id": 1, "date": 1, "chat": {"id": 9, "type": "private"}}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].IsText() {
		t.Fatalf("message without text must not be processable: %+v", events)
	}

	events, err = open.Decode(http.Header{}, []byte(`{"update_id": 8}`))
	if err != nil || len(events) != 1 || events[0].Type == EventTypeMessage {
		t.Fatalf("unexpected non-message update decode: %+v %v", events, err)
	}

	if _, err := open.Decode(http.Header{}, []byte(`nope`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestTelegramPusher_Push(t *testing.T) {
	sender := &fakeTelegramSender{}
	pusher := NewTelegramPusher(sender, nil)

	if err := pusher.Push(context.Background(), "42", "hi"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if sender.chatID != 42 || sender.text != "hi" {
		t.Fatalf("unexpected send: chat=%d text=%q", sender.chatID, sender.text)
	}

	if err := pusher.Push(context.Background(), "not-a-chat", "hi"); !errors.Is(err, ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}

	failing := NewTelegramPusher(&fakeTelegramSender{err: errors.New("bot was blocked")}, nil)
	if err := failing.Push(context.Background(), "42", "hi"); err == nil {
		t.Fatalf("expected send error")
	}
}

func TestTelegramPusher_RespectsDeadline(t *testing.T) {
	pusher := NewTelegramPusher(&fakeTelegramSender{delay: 200 * time.Millisecond}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := pusher.Push(ctx, "42", "hi"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDisabledProvider(t *testing.T) {
	p := Disabled("")
	if p.Enabled() {
		t.Fatalf("disabled provider must not be enabled")
	}
	if err := p.Pusher.Push(context.Background(), "u", "t"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if _, err := p.Decoder.Decode(nil, nil); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled from decoder, got %v", err)
	}
	if err := NewDisabledPusher("no provider").Push(context.Background(), "u", "t"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected wrapped ErrDisabled, got %v", err)
	}
}
