package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/swanstudios/studiochat-server/internal/auth"
	"github.com/swanstudios/studiochat-server/internal/config"
	"github.com/swanstudios/studiochat-server/internal/core"
)

// NewServer builds the HTTP server: token issuance, health and metrics
// endpoints, and the websocket upgrade route.
func NewServer(hub *core.Hub, authService *auth.Service, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	api := NewAPIHandlers(authService, hub, logger)
	router.GET("/healthz", api.Health)
	router.POST("/api/register", api.Register)
	router.POST("/api/login", api.Login)

	protected := router.Group("/api", AuthMiddleware(authService, logger))
	protected.GET("/metrics", RequireRole("admin"), api.Metrics)

	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, logger)))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
