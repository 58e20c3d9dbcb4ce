package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventDeduper recuerda ids de eventos de webhook para no procesar reentregas dos veces.
type EventDeduper interface {
	// FirstSeen marca la clave y devuelve true si no se habia visto antes.
	FirstSeen(ctx context.Context, key string) (bool, error)
}

type memoryEventDeduper struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]time.Time
}

func NewMemoryEventDeduper(ttl time.Duration) EventDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &memoryEventDeduper{
		ttl:   ttl,
		items: make(map[string]time.Time),
	}
}

func (d *memoryEventDeduper) FirstSeen(_ context.Context, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return true, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().UTC()
	if exp, ok := d.items[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.items[key] = now.Add(d.ttl)
	if len(d.items) > 10000 {
		for k, exp := range d.items {
			if now.After(exp) {
				delete(d.items, k)
			}
		}
	}
	return true, nil
}

type redisSetNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

type redisEventDeduper struct {
	client redisSetNXer
	ttl    time.Duration
	prefix string
}

func NewRedisEventDeduper(client *redis.Client, ttl time.Duration) EventDeduper {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisEventDeduper{
		client: client,
		ttl:    ttl,
		prefix: "chat:webhook:event:",
	}
}

func (d *redisEventDeduper) FirstSeen(ctx context.Context, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return d.client.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
}
