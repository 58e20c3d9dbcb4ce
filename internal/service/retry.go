package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"sitechat/internal/repository"
)

// RetryPolicy acota las llamadas al repositorio: timeout por intento y un unico reintento con jitter.
type RetryPolicy struct {
	Timeout   time.Duration
	BaseDelay time.Duration
}

func (p RetryPolicy) timeout() time.Duration {
	if p.Timeout <= 0 {
		return 3 * time.Second
	}
	return p.Timeout
}

func (p RetryPolicy) baseDelay() time.Duration {
	if p.BaseDelay <= 0 {
		return 100 * time.Millisecond
	}
	return p.BaseDelay
}

func permanentRepoError(err error) bool {
	return errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, repository.ErrDuplicate) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, context.Canceled)
}

func withRetry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.baseDelay()
	b.RandomizationFactor = 0.5

	op := func() (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout())
		defer cancel()
		v, err := fn(attemptCtx)
		if err != nil && permanentRepoError(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	return backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(2))
}

func withRetryErr(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := withRetry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
