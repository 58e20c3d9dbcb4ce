package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"sitechat/internal/service"
)

// RouterDeps agrupa los handlers que expone el servidor.
type RouterDeps struct {
	Chat    *ChatHandler
	Webhook *WebhookHandler
	Staff   *StaffHandler
	JWT     *service.JWTService
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(logger *zap.Logger, deps RouterDeps) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Chat != nil {
		api := r.Group("/api/chat", jsonContentTypeMiddleware())
		api.POST("/sessions", deps.Chat.CreateSession)
		api.GET("/sessions/:sessionId", deps.Chat.GetSession)
		api.PUT("/sessions/:sessionId", deps.Chat.UpdateSession)
		api.GET("/sessions/:sessionId/messages", deps.Chat.ListMessages)
		api.POST("/messages", deps.Chat.PostMessage)
	}

	// El webhook responde texto plano.
	if deps.Webhook != nil {
		r.POST("/webhook/platform", deps.Webhook.Receive)
	}

	if deps.Staff != nil {
		staff := r.Group("/staff", jsonContentTypeMiddleware())
		staff.POST("/login", deps.Staff.Login)

		protected := staff.Group("", JWTAuthMiddleware(deps.JWT))
		protected.GET("/sessions", deps.Staff.ListSessions)
		protected.POST("/sessions/:sessionId/messages", deps.Staff.PostMessage)
		protected.DELETE("/sessions/:sessionId", deps.Staff.DeleteSession)
	}

	return r
}

// NewHandler envuelve el router con CORS para el widget embebido en el sitio.
func NewHandler(r http.Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})(r)
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
