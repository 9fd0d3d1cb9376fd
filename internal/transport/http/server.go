package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/veloramarket/velora-chat/internal/auth"
	"github.com/veloramarket/velora-chat/internal/config"
	"github.com/veloramarket/velora-chat/internal/core"
	"github.com/veloramarket/velora-chat/internal/store"
)

// NewServer builds the HTTP server: health, WebSocket upgrade, and the REST
// collaborator endpoints the chat session consumes.
func NewServer(hub *core.Hub, st store.Store, cfg *config.ServerConfig, logger *zerolog.Logger) *stdhttp.Server {
	jwtCfg := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	chat := NewChatHandlers(st, cfg.HistoryPageSize, logger)
	api := router.Group("/api/v1/chat", AuthMiddleware(jwtCfg, logger))
	{
		api.GET("", chat.ListContacts)
		api.POST("/online", chat.SetOnline)
		api.GET("/rooms/:roomID/messages", chat.ListMessages)
		api.POST("/rooms/:roomID/messages", chat.PostMessage)
	}

	// The upgrade hijacks the connection, which gin's response writer
	// refuses, so /ws is mounted on the plain mux next to the router.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, jwtCfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
