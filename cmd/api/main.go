package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sitechat/internal/config"
	"sitechat/internal/connector"
	"sitechat/internal/db"
	"sitechat/internal/domain"
	apihttp "sitechat/internal/http"
	"sitechat/internal/platform"
	"sitechat/internal/repository"
	"sitechat/internal/service"
)

type repositories struct {
	sessions  repository.SessionRepository
	messages  repository.MessageRepository
	knowledge repository.KnowledgeRepository
	close     func()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store init", zap.Error(err))
	}
	defer repos.close()

	var (
		limiter     service.RateLimiter
		deduper     service.EventDeduper
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory limiter and dedup", zap.Error(err))
		} else {
			limiter = service.NewRedisRateLimiter(redisClient, logger, time.Minute, cfg.WebhookRateLimit)
			deduper = service.NewRedisEventDeduper(redisClient, cfg.EventDedupTTL)
		}
		cancel()
	}
	if limiter == nil {
		limiter = service.NewMemoryRateLimiter(time.Minute, cfg.WebhookRateLimit)
	}
	if deduper == nil {
		deduper = service.NewMemoryEventDeduper(cfg.EventDedupTTL)
	}

	provider := buildProvider(cfg, logger)

	retry := service.RetryPolicy{Timeout: cfg.RepositoryTimeout, BaseDelay: cfg.RepositoryRetryBase}
	sessionSvc := service.NewSessionService(logger, repos.sessions, retry)
	messageSvc := service.NewMessageService(logger, repos.messages, sessionSvc, retry)
	replyEngine := service.NewReplyEngine(logger, repos.knowledge, service.NewFallbackPicker(cfg.FallbackStrategy), retry)
	conversationSvc := service.NewConversationService(logger, messageSvc, replyEngine)

	var jwtSvc *service.JWTService
	if cfg.JWTSecret != "" {
		jwtSvc = service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute)
	} else {
		logger.Warn("jwt secret not configured, staff routes disabled")
	}
	staffAuth := service.NewStaffAuthService(cfg.StaffUsername, cfg.StaffPasswordHash, jwtSvc)

	webConnector := connector.NewWebConnector(logger, sessionSvc, conversationSvc)
	platformConnector := connector.NewPlatformConnector(logger, sessionSvc, conversationSvc, provider, connector.PlatformOptions{
		Dedup:       deduper,
		Limiter:     limiter,
		PushTimeout: cfg.PlatformPushTimeout,
		RetryDelay:  cfg.PlatformRetryDelay,
	})

	router := apihttp.NewRouter(logger, apihttp.RouterDeps{
		Chat:    apihttp.NewChatHandler(logger, sessionSvc, messageSvc, webConnector),
		Webhook: apihttp.NewWebhookHandler(logger, platformConnector),
		Staff:   apihttp.NewStaffHandler(logger, staffAuth, sessionSvc, platformConnector),
		JWT:     jwtSvc,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           apihttp.NewHandler(router, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("store", cfg.StoreBackend),
		zap.String("platform", provider.Name),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := platformConnector.Drain(drainCtx); err != nil {
		logger.Warn("webhook events still in flight at shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func openRepositories(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories, error) {
	if cfg.StoreBackend == config.StoreBackendMemory {
		store := repository.NewMemoryStore()
		if cfg.KnowledgeSeedFile != "" {
			entries, err := loadKnowledgeSeed(cfg.KnowledgeSeedFile)
			if err != nil {
				return repositories{}, err
			}
			store.Knowledge.Seed(entries...)
			logger.Info("knowledge seeded", zap.Int("entries", len(entries)))
		}
		logger.Warn("using in-memory store, data is lost on restart")
		return repositories{
			sessions:  store.Sessions,
			messages:  store.Messages,
			knowledge: store.Knowledge,
			close:     func() {},
		}, nil
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return repositories{}, fmt.Errorf("db connect: %w", err)
	}
	if err := db.Ping(ctx, pool); err != nil {
		pool.Close()
		return repositories{}, fmt.Errorf("db ping: %w", err)
	}
	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return repositories{}, fmt.Errorf("db migrate: %w", err)
		}
	}
	return repositories{
		sessions:  repository.NewPgSessionRepository(pool),
		messages:  repository.NewPgMessageRepository(pool),
		knowledge: repository.NewPgKnowledgeRepository(pool),
		close:     pool.Close,
	}, nil
}

func loadKnowledgeSeed(path string) ([]domain.KnowledgeEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge seed: %w", err)
	}
	var entries []domain.KnowledgeEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse knowledge seed: %w", err)
	}
	return entries, nil
}

func buildProvider(cfg *config.Config, logger *zap.Logger) platform.Provider {
	switch cfg.PlatformProvider {
	case config.PlatformProviderLine:
		return platform.Provider{
			Name:    platform.ProviderLine,
			Decoder: platform.NewLineDecoder(cfg.LineChannelSecret),
			Pusher:  platform.NewLineClient(cfg.LineAPIBaseURL, cfg.LineChannelToken, nil, logger),
		}
	case config.PlatformProviderTelegram:
		bot, err := platform.NewTelegramBot(cfg.TelegramToken, cfg.TelegramDebug)
		if err != nil {
			logger.Warn("telegram bot init failed", zap.Error(err))
			return platform.Disabled("telegram bot init failed")
		}
		return platform.Provider{
			Name:    platform.ProviderTelegram,
			Decoder: platform.NewTelegramDecoder(cfg.TelegramWebhookSecret),
			Pusher:  platform.NewTelegramPusher(bot, logger),
		}
	default:
		return platform.Disabled("platform provider not configured")
	}
}
