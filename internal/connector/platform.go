package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sitechat/internal/domain"
	"sitechat/internal/platform"
	"sitechat/internal/service"
)

// PlatformOptions ajusta la entrega hacia el proveedor externo.
type PlatformOptions struct {
	Dedup       service.EventDeduper
	Limiter     service.RateLimiter
	PushTimeout time.Duration
	RetryDelay  time.Duration
}

// PlatformConnector atiende el webhook del proveedor externo; la respuesta se empuja con Pusher.
type PlatformConnector struct {
	logger      *zap.Logger
	sessions    *service.SessionService
	conv        *service.ConversationService
	provider    platform.Provider
	dedup       service.EventDeduper
	limiter     service.RateLimiter
	pushTimeout time.Duration
	retryDelay  time.Duration
	users       *keyedMutex
	queue       *serialQueue
	wait        func(ctx context.Context, d time.Duration)
}

var _ Connector[platform.Event] = (*PlatformConnector)(nil)

func NewPlatformConnector(logger *zap.Logger, sessions *service.SessionService, conv *service.ConversationService, provider platform.Provider, opts PlatformOptions) *PlatformConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if provider.Pusher == nil {
		provider = platform.Disabled("")
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = 5 * time.Second
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	return &PlatformConnector{
		logger:      logger,
		sessions:    sessions,
		conv:        conv,
		provider:    provider,
		dedup:       opts.Dedup,
		limiter:     opts.Limiter,
		pushTimeout: opts.PushTimeout,
		retryDelay:  opts.RetryDelay,
		users:       newKeyedMutex(),
		queue:       newSerialQueue(),
		wait:        sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Enabled indica si hay un proveedor configurado.
func (c *PlatformConnector) Enabled() bool {
	return c != nil && c.provider.Enabled()
}

func (c *PlatformConnector) decode(header http.Header, body []byte) ([]platform.Event, error) {
	if !c.Enabled() {
		return nil, platform.ErrDisabled
	}
	return c.provider.Decoder.Decode(header, body)
}

// HandleWebhook verifica y decodifica el lote y procesa cada evento en orden, esperando el resultado.
// El procesamiento no depende de la cancelacion de la peticion entrante.
func (c *PlatformConnector) HandleWebhook(ctx context.Context, header http.Header, body []byte) ([]DeliveryInstruction, error) {
	events, err := c.decode(header, body)
	if err != nil {
		return nil, err
	}
	return c.HandleBatch(context.WithoutCancel(ctx), events), nil
}

// Accept verifica y decodifica el lote y encola sus eventos sin esperar las respuestas.
// Los eventos de un mismo usuario se procesan en orden de llegada; usuarios distintos en paralelo.
// Devuelve cuantos eventos se encolaron.
func (c *PlatformConnector) Accept(ctx context.Context, header http.Header, body []byte) (int, error) {
	events, err := c.decode(header, body)
	if err != nil {
		return 0, err
	}
	bctx := context.WithoutCancel(ctx)
	for _, ev := range events {
		c.queue.Submit(ev.UserID, func() {
			if _, err := c.safeHandle(bctx, ev); err != nil {
				c.logSkip(ev, err)
			}
		})
	}
	return len(events), nil
}

// Drain espera a que terminen los eventos aceptados o a que venza ctx.
func (c *PlatformConnector) Drain(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.queue.Wait(ctx)
}

// HandleBatch procesa los eventos de uno en uno; un fallo o panic en un evento no aborta el resto.
func (c *PlatformConnector) HandleBatch(ctx context.Context, events []platform.Event) []DeliveryInstruction {
	out := make([]DeliveryInstruction, 0, len(events))
	for _, ev := range events {
		inst, err := c.safeHandle(ctx, ev)
		if err != nil {
			if inst.Err == nil {
				inst.Err = err
			}
			c.logSkip(ev, err)
		}
		out = append(out, inst)
	}
	return out
}

func (c *PlatformConnector) safeHandle(ctx context.Context, ev platform.Event) (inst DeliveryInstruction, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("webhook event panic",
				zap.String("provider", c.provider.Name),
				zap.String("event_id", ev.ID),
				zap.Any("panic", r),
			)
			inst = DeliveryInstruction{Kind: DeliveryPush, Target: ev.UserID}
			err = fmt.Errorf("event %s: panic: %v", ev.ID, r)
		}
	}()
	return c.HandleInbound(ctx, ev)
}

func (c *PlatformConnector) logSkip(ev platform.Event, err error) {
	fields := []zap.Field{
		zap.String("provider", c.provider.Name),
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.Type),
		zap.Error(err),
	}
	switch {
	case errors.Is(err, ErrIgnoredEvent), errors.Is(err, service.ErrDuplicateEvent):
		c.logger.Debug("webhook event skipped", fields...)
	case errors.Is(err, service.ErrRateLimited):
		c.logger.Warn("webhook event rate limited", fields...)
	default:
		c.logger.Error("webhook event failed", fields...)
	}
}

// HandleInbound procesa un evento: sesion, mensaje de usuario, respuesta, push y registro del bot.
func (c *PlatformConnector) HandleInbound(ctx context.Context, ev platform.Event) (DeliveryInstruction, error) {
	inst := DeliveryInstruction{Kind: DeliveryPush, Target: ev.UserID}
	if c == nil || c.sessions == nil || c.conv == nil {
		return inst, service.ErrServiceNotConfigured
	}
	if !ev.IsText() {
		return inst, ErrIgnoredEvent
	}

	unlock := c.users.Lock(ev.UserID)
	defer unlock()

	if c.dedup != nil && ev.ID != "" {
		first, err := c.dedup.FirstSeen(ctx, c.provider.Name+":"+ev.ID)
		if err != nil {
			c.logger.Warn("event dedup unavailable", zap.String("event_id", ev.ID), zap.Error(err))
		} else if !first {
			return inst, service.ErrDuplicateEvent
		}
	}
	if c.limiter != nil && !c.limiter.Allow(ctx, c.provider.Name+":"+ev.UserID) {
		return inst, service.ErrRateLimited
	}

	session, err := c.sessions.ResolveOrCreate(ctx, domain.PlatformExternal, ev.UserID)
	if err != nil {
		c.apologize(ctx, ev.UserID, "")
		return inst, err
	}
	inst.SessionID = session.SessionID

	_, reply, err := c.conv.Inbound(ctx, session, ev.Text)
	if err != nil {
		c.apologize(ctx, ev.UserID, session.SessionID)
		return inst, err
	}

	inst.Delivered, inst.Err = c.deliver(ctx, session, reply.Text)

	botMsg, err := c.conv.RecordReply(ctx, session, reply.Text)
	if err != nil {
		c.logger.Error("record bot reply failed",
			zap.String("session_id", session.SessionID),
			zap.String("platform", string(session.Platform)),
			zap.Error(err),
		)
		return inst, err
	}
	inst.Reply = botMsg
	return inst, nil
}

// deliver empuja la respuesta y, si falla, reintenta una sola vez con la disculpa.
func (c *PlatformConnector) deliver(ctx context.Context, session domain.Session, text string) (bool, error) {
	err := c.push(ctx, session.ExternalUserID, text)
	if err == nil {
		return true, nil
	}
	c.logger.Warn("platform push failed",
		zap.String("provider", c.provider.Name),
		zap.String("session_id", session.SessionID),
		zap.String("platform", string(session.Platform)),
		zap.Int("text_len", len(text)),
		zap.Error(err),
	)

	c.wait(ctx, c.retryDelay)
	if retryErr := c.push(ctx, session.ExternalUserID, service.ApologyReply); retryErr != nil {
		c.logger.Error("platform apology push failed",
			zap.String("provider", c.provider.Name),
			zap.String("session_id", session.SessionID),
			zap.Error(retryErr),
		)
		return false, fmt.Errorf("%w: %w", service.ErrDelivery, errors.Join(err, retryErr))
	}
	return false, fmt.Errorf("%w: %w", service.ErrDelivery, err)
}

func (c *PlatformConnector) apologize(ctx context.Context, userID, sessionID string) {
	if err := c.push(ctx, userID, service.ApologyReply); err != nil {
		c.logger.Warn("platform apology push failed",
			zap.String("provider", c.provider.Name),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func (c *PlatformConnector) push(ctx context.Context, userID, text string) error {
	pushCtx, cancel := context.WithTimeout(ctx, c.pushTimeout)
	defer cancel()
	return c.provider.Pusher.Push(pushCtx, userID, text)
}

// DeliverStaff registra el mensaje de staff y, en sesiones externas, lo empuja al usuario.
// Si el push falla el mensaje queda registrado y se devuelve ErrDelivery.
func (c *PlatformConnector) DeliverStaff(ctx context.Context, session domain.Session, text string) (DeliveryInstruction, error) {
	if c == nil || c.conv == nil {
		return DeliveryInstruction{}, service.ErrServiceNotConfigured
	}
	msg, err := c.conv.RecordStaff(ctx, session, text)
	if err != nil {
		return DeliveryInstruction{}, err
	}

	inst := DeliveryInstruction{Kind: DeliveryInline, SessionID: session.SessionID, Reply: msg, Delivered: true}
	if session.Platform != domain.PlatformExternal {
		return inst, nil
	}

	inst.Kind = DeliveryPush
	inst.Target = session.ExternalUserID
	if err := c.push(ctx, session.ExternalUserID, msg.Content); err != nil {
		c.logger.Warn("staff push failed",
			zap.String("provider", c.provider.Name),
			zap.String("session_id", session.SessionID),
			zap.Error(err),
		)
		inst.Delivered = false
		inst.Err = fmt.Errorf("%w: %w", service.ErrDelivery, err)
		return inst, inst.Err
	}
	return inst, nil
}
