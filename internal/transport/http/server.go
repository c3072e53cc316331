package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/livechat/internal/config"
	"github.com/vovakirdan/livechat/internal/core"
)

// WebSocketPath is the STOMP-over-WebSocket endpoint.
const WebSocketPath = "/chat/websocket"

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the broker HTTP server: health check, the WebSocket
// endpoint and the long-poll fallback. Shutting the server down closes
// every long-poll session.
func NewServer(hub *core.Hub, cfg config.BrokerConfig, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.AllowedOrigins))

	router.GET("/health", healthHandler)

	polls := NewPollHandler(hub, cfg.PollTimeout, cfg.PollSessionTTL, cfg.SendRateLimit, logger)
	polls.Register(router)

	// The WebSocket handler hijacks the connection, so it stays outside gin.
	mux := stdhttp.NewServeMux()
	mux.Handle(WebSocketPath, NewWSHandler(hub, cfg.AllowedOrigins, cfg.SendRateLimit, logger))
	mux.Handle("/", router)

	server := &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	server.RegisterOnShutdown(polls.Close)
	return server
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
