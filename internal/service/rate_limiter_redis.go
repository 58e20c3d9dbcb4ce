package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisRateAllowScript cuenta el golpe y fija la expiracion de la ventana en el primero.
// Devuelve {contador, ms restantes de la ventana}.
const redisRateAllowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {current, redis.call("PTTL", KEYS[1])}
`

const redisRateLimitTimeout = 500 * time.Millisecond

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// redisRateLimiter limita eventos por usuario externo con una ventana fija compartida entre instancias.
type redisRateLimiter struct {
	client redisEvaler
	logger *zap.Logger
	window time.Duration
	max    int
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, logger *zap.Logger, window time.Duration, max int) RateLimiter {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisRateLimiter{
		client: client,
		logger: logger,
		window: window,
		max:    max,
		prefix: "chat:webhook:rl:",
	}
}

// Allow deja pasar si redis falla; un backend caido no debe silenciar el canal.
func (l *redisRateLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisRateLimitTimeout)
	defer cancel()

	windowMS := l.window.Milliseconds()
	if windowMS <= 0 {
		windowMS = time.Minute.Milliseconds()
	}
	res, err := l.client.Eval(ctx, redisRateAllowScript, []string{l.prefix + key}, windowMS).Int64Slice()
	if err != nil || len(res) == 0 {
		l.log().Warn("rate limiter backend unavailable, allowing event",
			zap.String("key", key),
			zap.Error(err),
		)
		return true
	}

	count := res[0]
	if count <= int64(l.max) {
		return true
	}
	fields := []zap.Field{zap.String("key", key), zap.Int64("count", count), zap.Int("max", l.max)}
	if len(res) > 1 && res[1] > 0 {
		fields = append(fields, zap.Duration("retry_in", time.Duration(res[1])*time.Millisecond))
	}
	l.log().Debug("rate limit exceeded", fields...)
	return false
}

func (l *redisRateLimiter) log() *zap.Logger {
	if l.logger == nil {
		return zap.NewNop()
	}
	return l.logger
}
