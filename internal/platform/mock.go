package platform

import (
	"context"
	"net/http"
	"sync"
)

// PushCall es un envio registrado por MockPusher.
type PushCall struct {
	UserID string
	Text   string
}

// MockPusher permite tests sin llamar a un proveedor real.
// Errs se consume en orden, un error por llamada; Err aplica cuando Errs se agota.
type MockPusher struct {
	mu    sync.Mutex
	Err   error
	Errs  []error
	Calls []PushCall
}

func (m *MockPusher) Push(ctx context.Context, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, PushCall{UserID: userID, Text: text})
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		return err
	}
	return m.Err
}

// Pushed devuelve una copia de los envios registrados.
func (m *MockPusher) Pushed() []PushCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushCall, len(m.Calls))
	copy(out, m.Calls)
	return out
}

// StaticDecoder devuelve siempre el mismo lote o error.
type StaticDecoder struct {
	Events []Event
	Err    error
}

func (d StaticDecoder) Decode(_ http.Header, _ []byte) ([]Event, error) {
	return d.Events, d.Err
}
