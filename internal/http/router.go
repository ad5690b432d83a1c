package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"group-chat/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
// Si jwtSvc es nil el upgrade del websocket no exige token.
func NewRouter(
	logger *zap.Logger,
	chatH *ChatHandler,
	wsH *WSHandler,
	healthH *HealthHandler,
	jwtSvc *service.JWTService,
) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(zapLoggerMiddleware(logger), gin.Recovery())
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Invalid request method"})
	})

	api := r.Group("/api", jsonContentTypeMiddleware())
	api.GET("/messages", chatH.ListMessages)

	ws := []gin.HandlerFunc{wsH.ServeChat}
	if jwtSvc != nil {
		ws = append([]gin.HandlerFunc{JWTAuthMiddleware(jwtSvc)}, ws...)
	}
	r.GET("/ws/chat", ws...)

	r.GET("/healthz", healthH.Live)
	r.GET("/readyz", healthH.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
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
