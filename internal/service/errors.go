package service

import (
	"errors"
	"fmt"

	"sitechat/internal/repository"
)

var (
	ErrServiceNotConfigured = errors.New("service not configured")
	ErrValidation           = errors.New("validation failed")
	ErrNotFound             = errors.New("not found")
	ErrUpstream             = errors.New("upstream failure")
	ErrDelivery             = errors.New("delivery failed")
	ErrSessionClosed        = errors.New("session closed")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrRateLimited          = errors.New("rate limited")
	ErrDuplicateEvent       = errors.New("duplicate event")
)

// ValidationError describe un campo requerido ausente o mal formado.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// repoError traduce errores de repositorio a la taxonomia del servicio.
func repoError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}
