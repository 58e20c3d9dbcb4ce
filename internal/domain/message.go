package domain

import "time"

// Sender es el rol de quien escribio el mensaje.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderBot   Sender = "bot"
	SenderStaff Sender = "staff"
)

func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderBot, SenderStaff:
		return true
	}
	return false
}

// MessageTypeAutoReply marca respuestas generadas por el motor de respuestas.
const MessageTypeAutoReply = "auto-reply"

// Message pertenece a una unica sesion y es inmutable una vez creado.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Sender      Sender    `json:"sender"`
	Content     string    `json:"content"`
	Platform    Platform  `json:"platform"`
	MessageType string    `json:"messageType,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
