package platform

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrDisabled         = errors.New("platform provider disabled")
)

const (
	EventTypeMessage = "message"
	MessageTypeText  = "text"
)

// Event es un evento entrante normalizado, independiente del proveedor.
type Event struct {
	ID          string
	Type        string
	UserID      string
	Text        string
	MessageType string
	Redelivery  bool
	ReplyToken  string
	Timestamp   time.Time
}

// IsText indica si el evento es un mensaje de texto procesable.
func (e Event) IsText() bool {
	return e.Type == EventTypeMessage && e.MessageType == MessageTypeText &&
		strings.TrimSpace(e.UserID) != "" && strings.TrimSpace(e.Text) != ""
}

// Decoder verifica y decodifica el cuerpo de un webhook en un lote de eventos.
type Decoder interface {
	Decode(header http.Header, body []byte) ([]Event, error)
}

// Pusher envia un mensaje de texto al usuario externo.
type Pusher interface {
	Push(ctx context.Context, userID, text string) error
}

// Provider agrupa decoder y pusher de un mismo proveedor.
type Provider struct {
	Name    string
	Decoder Decoder
	Pusher  Pusher
}

// Enabled indica si hay un proveedor real configurado.
func (p Provider) Enabled() bool {
	return p.Decoder != nil && p.Pusher != nil && p.Name != ""
}
