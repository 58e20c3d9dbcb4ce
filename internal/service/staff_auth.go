package service

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// StaffAuthService valida la cuenta de staff configurada y emite su token.
type StaffAuthService struct {
	username     string
	passwordHash []byte
	jwt          *JWTService
}

func NewStaffAuthService(username, passwordHash string, jwtSvc *JWTService) *StaffAuthService {
	return &StaffAuthService{
		username:     strings.TrimSpace(username),
		passwordHash: []byte(strings.TrimSpace(passwordHash)),
		jwt:          jwtSvc,
	}
}

// Enabled reporta si hay credenciales y secreto configurados.
func (s *StaffAuthService) Enabled() bool {
	return s != nil && s.username != "" && len(s.passwordHash) > 0 && s.jwt != nil && len(s.jwt.secret) > 0
}

func (s *StaffAuthService) Login(username, password string) (AccessToken, error) {
	if !s.Enabled() {
		return AccessToken{}, ErrServiceNotConfigured
	}
	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(s.username)) == 1
	// Se compara el hash siempre para no filtrar por tiempo si el usuario existe.
	passErr := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return AccessToken{}, ErrInvalidCredentials
	}
	return s.jwt.Issue(s.username)
}
