package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sitechat/internal/domain"
)

var ErrSessionNotFound = errors.New("session not found")

// APIError es una respuesta de error del servidor de chat.
type APIError struct {
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("chat api: status=%d field=%s: %s", e.Status, e.Field, e.Message)
	}
	return fmt.Sprintf("chat api: status=%d: %s", e.Status, e.Message)
}

// SessionView es la respuesta de GET /api/chat/sessions/:sessionId.
type SessionView struct {
	SessionID string               `json:"sessionId"`
	Status    domain.SessionStatus `json:"status"`
	Platform  domain.Platform      `json:"platform"`
	Messages  []domain.Message     `json:"messages"`
}

// BotReply es la respuesta de POST /api/chat/messages.
type BotReply struct {
	Content   string    `json:"content"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// API es lo que el controlador necesita del servidor.
type API interface {
	CreateSession(ctx context.Context) (string, error)
	GetSession(ctx context.Context, sessionID string) (SessionView, error)
	SendMessage(ctx context.Context, sessionID, content string) (BotReply, error)
}

// HTTPClient implementa API contra las rutas /api/chat del servidor.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreateSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/chat/sessions", map[string]string{"platform": string(domain.PlatformWeb)}, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("chat api: empty sessionId")
	}
	return out.SessionID, nil
}

func (c *HTTPClient) GetSession(ctx context.Context, sessionID string) (SessionView, error) {
	var out SessionView
	err := c.do(ctx, http.MethodGet, "/api/chat/sessions/"+url.PathEscape(sessionID), nil, &out)
	return out, err
}

func (c *HTTPClient) SendMessage(ctx context.Context, sessionID, content string) (BotReply, error) {
	body := map[string]string{
		"sessionId": sessionID,
		"content":   content,
		"platform":  string(domain.PlatformWeb),
	}
	var out BotReply
	err := c.do(ctx, http.MethodPost, "/api/chat/messages", body, &out)
	return out, err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, reqBody any, out any) error {
	var body io.Reader
	if reqBody != nil {
		bodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrSessionNotFound
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error, Field: apiErr.Field}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
