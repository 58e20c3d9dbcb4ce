package platform

import (
	"context"
	"errors"
	"net/http"
)

type disabledPusher struct {
	reason string
}

// NewDisabledPusher devuelve un Pusher que siempre falla; se usa sin PLATFORM_PROVIDER.
func NewDisabledPusher(reason string) Pusher {
	return &disabledPusher{reason: reason}
}

func (p *disabledPusher) Push(_ context.Context, _ string, _ string) error {
	if p.reason == "" {
		return ErrDisabled
	}
	return errors.Join(ErrDisabled, errors.New(p.reason))
}

type disabledDecoder struct{}

func (disabledDecoder) Decode(_ http.Header, _ []byte) ([]Event, error) {
	return nil, ErrDisabled
}

// Disabled construye el proveedor nulo.
func Disabled(reason string) Provider {
	return Provider{Name: "", Decoder: disabledDecoder{}, Pusher: NewDisabledPusher(reason)}
}
