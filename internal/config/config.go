package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"

	PlatformProviderLine     = "line"
	PlatformProviderTelegram = "telegram"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort      string `env:"HTTP_PORT" envDefault:"8080"`
	StoreBackend  string `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL"`
	DBAutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`
	// KnowledgeSeedFile carga FAQ desde JSON cuando STORE_BACKEND=memory.
	KnowledgeSeedFile string `env:"KNOWLEDGE_SEED_FILE"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	PlatformProvider      string        `env:"PLATFORM_PROVIDER"`
	LineChannelSecret     string        `env:"LINE_CHANNEL_SECRET"`
	LineChannelToken      string        `env:"LINE_CHANNEL_TOKEN"`
	LineAPIBaseURL        string        `env:"LINE_API_BASE_URL" envDefault:"https://api.line.me"`
	TelegramToken         string        `env:"TELEGRAM_TOKEN"`
	TelegramWebhookSecret string        `env:"TELEGRAM_WEBHOOK_SECRET"`
	TelegramDebug         bool          `env:"TELEGRAM_DEBUG" envDefault:"false"`
	PlatformPushTimeout   time.Duration `env:"PLATFORM_PUSH_TIMEOUT" envDefault:"5s"`
	PlatformRetryDelay    time.Duration `env:"PLATFORM_RETRY_DELAY" envDefault:"500ms"`
	WebhookRateLimit      int           `env:"WEBHOOK_RATE_LIMIT" envDefault:"30"`
	EventDedupTTL         time.Duration `env:"EVENT_DEDUP_TTL" envDefault:"24h"`

	RepositoryTimeout   time.Duration `env:"REPOSITORY_TIMEOUT" envDefault:"3s"`
	RepositoryRetryBase time.Duration `env:"REPOSITORY_RETRY_BASE" envDefault:"100ms"`
	FallbackStrategy    string        `env:"FALLBACK_STRATEGY" envDefault:"random"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	JWTSecret         string `env:"JWT_SECRET"`
	JWTTTLMinutes     int    `env:"JWT_TTL_MINUTES" envDefault:"60"`
	StaffUsername     string `env:"STAFF_USERNAME"`
	StaffPasswordHash string `env:"STAFF_PASSWORD_HASH"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate revisa combinaciones que env no puede expresar con tags.
func (c *Config) Validate() error {
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))
	c.PlatformProvider = strings.ToLower(strings.TrimSpace(c.PlatformProvider))

	var errs []error
	switch c.StoreBackend {
	case StoreBackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.PlatformProvider {
	case "":
	case PlatformProviderLine:
		if c.LineChannelSecret == "" || c.LineChannelToken == "" {
			errs = append(errs, errors.New("LINE_CHANNEL_SECRET and LINE_CHANNEL_TOKEN are required for the line provider"))
		}
	case PlatformProviderTelegram:
		if c.TelegramToken == "" {
			errs = append(errs, errors.New("TELEGRAM_TOKEN is required for the telegram provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PLATFORM_PROVIDER %q", c.PlatformProvider))
	}
	return errors.Join(errs...)
}

// ClientConfig configura el widget de terminal.
type ClientConfig struct {
	APIURL    string        `env:"CHAT_API_URL" envDefault:"http://localhost:8080"`
	StateFile string        `env:"CHAT_STATE_FILE" envDefault:".chat_session"`
	Timeout   time.Duration `env:"CHAT_TIMEOUT" envDefault:"15s"`
}

// LoadClientConfig carga la configuración del cliente desde variables de entorno.
func LoadClientConfig() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
