package platform

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ProviderLine        = "line"
	lineSignatureHeader = "X-Line-Signature"
)

// LineDecoder verifica la firma HMAC y decodifica el webhook de LINE Messaging API.
type LineDecoder struct {
	channelSecret []byte
}

func NewLineDecoder(channelSecret string) *LineDecoder {
	return &LineDecoder{channelSecret: []byte(channelSecret)}
}

// Sign calcula la firma esperada para un cuerpo; la usan tests y herramientas locales.
func (d *LineDecoder) Sign(body []byte) string {
	mac := hmac.New(sha256.New, d.channelSecret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (d *LineDecoder) verify(header http.Header, body []byte) bool {
	if len(d.channelSecret) == 0 {
		return false
	}
	got, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header.Get(lineSignatureHeader)))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, d.channelSecret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func (d *LineDecoder) Decode(header http.Header, body []byte) ([]Event, error) {
	if !d.verify(header, body) {
		return nil, ErrInvalidSignature
	}

	var payload lineWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	events := make([]Event, 0, len(payload.Events))
	for i, raw := range payload.Events {
		ev := Event{
			ID:         raw.WebhookEventID,
			Type:       raw.Type,
			UserID:     raw.Source.UserID,
			Redelivery: raw.DeliveryContext.IsRedelivery,
			ReplyToken: raw.ReplyToken,
		}
		if ev.ID == "" {
			ev.ID = fmt.Sprintf("line:%d:%d", raw.Timestamp, i)
		}
		if raw.Timestamp > 0 {
			ev.Timestamp = time.UnixMilli(raw.Timestamp).UTC()
		}
		if raw.Message != nil {
			ev.MessageType = raw.Message.Type
			ev.Text = raw.Message.Text
		}
		events = append(events, ev)
	}
	return events, nil
}

type lineWebhook struct {
	Destination string      `json:"destination"`
	Events      []lineEvent `json:"events"`
}

type lineEvent struct {
	Type           string `json:"type"`
	WebhookEventID string `json:"webhookEventId"`
	Timestamp      int64  `json:"timestamp"`
	ReplyToken     string `json:"replyToken"`
	Source         struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	} `json:"source"`
	DeliveryContext struct {
		IsRedelivery bool `json:"isRedelivery"`
	} `json:"deliveryContext"`
	Message *struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message,omitempty"`
}

// LineClient implementa Pusher contra el endpoint push de LINE Messaging API.
type LineClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewLineClient construye un cliente HTTP apuntando a la API de LINE.
func NewLineClient(baseURL, channelToken string, httpClient *http.Client, logger *zap.Logger) *LineClient {
	if baseURL == "" {
		baseURL = "https://api.line.me"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LineClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   channelToken,
		client:  httpClient,
		logger:  logger,
	}
}

func (c *LineClient) Push(ctx context.Context, userID, text string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrInvalidRecipient
	}

	reqBody := pushRequest{
		To:       userID,
		Messages: []pushMessage{{Type: MessageTypeText, Text: text}},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/bot/message/push", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Retry-Key", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr pushError
		_ = json.Unmarshal(respBody, &apiErr)
		c.logger.Warn("line push rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return fmt.Errorf("line http error: status=%d", resp.StatusCode)
	}
	return nil
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []pushMessage `json:"messages"`
}

type pushMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushError struct {
	Message string `json:"message"`
}
