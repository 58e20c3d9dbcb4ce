package domain

import "time"

// Platform identifica el canal por el que llegan los mensajes.
type Platform string

const (
	PlatformWeb      Platform = "web"
	PlatformExternal Platform = "external"
)

// Valid indica si el valor es uno de los canales conocidos.
func (p Platform) Valid() bool {
	return p == PlatformWeb || p == PlatformExternal
}

// SessionStatus es el estado de vida de una sesion. closed es terminal.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

func (s SessionStatus) Valid() bool {
	return s == SessionActive || s == SessionClosed
}

// Session es una conversacion continua entre un visitante y el sistema.
type Session struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"sessionId"`
	Platform       Platform       `json:"platform"`
	Status         SessionStatus  `json:"status"`
	ExternalUserID string         `json:"externalUserId,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	StartedAt      time.Time      `json:"startedAt"`
	LastMessageAt  *time.Time     `json:"lastMessageAt,omitempty"`
	EndedAt        *time.Time     `json:"endedAt,omitempty"`
}

// IsActive reporta si la sesion acepta mensajes nuevos.
func (s Session) IsActive() bool {
	return s.Status == SessionActive
}

// SessionUpdate agrupa los unicos campos mutables de una sesion.
type SessionUpdate struct {
	Status        *SessionStatus
	LastMessageAt *time.Time
	EndedAt       *time.Time
}

// SessionFilter describe una consulta de sesiones para herramientas de staff.
type SessionFilter struct {
	Platform Platform
	Status   SessionStatus
	Limit    int
	// NewestFirst ordena por started_at descendente.
	NewestFirst bool
}
