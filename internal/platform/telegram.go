package platform

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"
	"go.uber.org/zap"
)

const (
	ProviderTelegram     = "telegram"
	telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// TelegramDecoder decodifica un Update de webhook de Telegram como un lote de un evento.
type TelegramDecoder struct {
	secret string
}

func NewTelegramDecoder(secret string) *TelegramDecoder {
	return &TelegramDecoder{secret: strings.TrimSpace(secret)}
}

func (d *TelegramDecoder) Decode(header http.Header, body []byte) ([]Event, error) {
	if d.secret != "" {
		got := header.Get(telegramSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(d.secret)) != 1 {
			return nil, ErrInvalidSignature
		}
	}

	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	ev := Event{ID: "tg:" + strconv.Itoa(update.UpdateID)}
	msg := update.Message
	if msg == nil {
		ev.Type = "update"
		return []Event{ev}, nil
	}

	ev.Type = EventTypeMessage
	ev.UserID = strconv.FormatInt(msg.Chat.ID, 10)
	ev.Text = msg.Text
	if msg.Date > 0 {
		ev.Timestamp = time.Unix(int64(msg.Date), 0).UTC()
	}
	if msg.Text != "" {
		ev.MessageType = MessageTypeText
	} else {
		ev.MessageType = "other"
	}
	return []Event{ev}, nil
}

type telegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramPusher envia respuestas con BotAPI.Send; el id externo es el chat id.
type TelegramPusher struct {
	bot    telegramSender
	logger *zap.Logger
}

func NewTelegramPusher(bot telegramSender, logger *zap.Logger) *TelegramPusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramPusher{bot: bot, logger: logger}
}

// NewTelegramBot autoriza el bot contra la API de Telegram.
func NewTelegramBot(token string, debug bool) (*tgbotapi.BotAPI, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram token not provided")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot api: %w", err)
	}
	bot.Debug = debug
	return bot, nil
}

func (p *TelegramPusher) Push(ctx context.Context, userID, text string) error {
	if p == nil || p.bot == nil {
		return ErrDisabled
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRecipient, userID)
	}

	// BotAPI.Send no recibe contexto; se respeta el deadline con un select.
	done := make(chan error, 1)
	go func() {
		_, err := p.bot.Send(tgbotapi.NewMessage(chatID, text))
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			p.logger.Warn("telegram send failed", zap.Int64("chat_id", chatID), zap.Error(err))
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
