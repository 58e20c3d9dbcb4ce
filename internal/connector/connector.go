package connector

import (
	"context"
	"errors"

	"sitechat/internal/domain"
)

var ErrIgnoredEvent = errors.New("event ignored")

// DeliveryKind distingue como vuelve la respuesta al canal de origen.
type DeliveryKind string

const (
	DeliveryInline DeliveryKind = "inline"
	DeliveryPush   DeliveryKind = "push"
)

// DeliveryInstruction es la salida del core para un conector.
// Inline: la respuesta viaja en el cuerpo HTTP. Push: se envia a Target por el proveedor.
type DeliveryInstruction struct {
	Kind      DeliveryKind
	Target    string
	SessionID string
	Reply     domain.Message
	Delivered bool
	Err       error
}

// Connector traduce un evento propio del canal a operaciones del core.
type Connector[E any] interface {
	HandleInbound(ctx context.Context, event E) (DeliveryInstruction, error)
}
