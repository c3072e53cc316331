package app

import (
	"context"
	"errors"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/livechat/internal/config"
	"github.com/vovakirdan/livechat/internal/core"
	transporthttp "github.com/vovakirdan/livechat/internal/transport/http"
)

// Broker wires together the hub and the HTTP transport.
type Broker struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	log             *zerolog.Logger
}

// NewBroker constructs the broker with provided configuration.
func NewBroker(cfg config.BrokerConfig, logger *zerolog.Logger) *Broker {
	hub := core.NewHub(logger)
	return &Broker{
		server:          transporthttp.NewServer(hub, cfg, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		log:             logger,
	}
}

// Run listens on the configured address and blocks until ctx is cancelled or the server fails.
func (b *Broker) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.server.Addr)
	if err != nil {
		return err
	}
	return b.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (b *Broker) Serve(ctx context.Context, ln net.Listener) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go b.hub.Run(hubCtx)

	b.log.Info().Str("addr", ln.Addr().String()).Msg("broker listening")
	go func() {
		if err := b.server.Serve(ln); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), b.shutdownTimeout)
		defer cancel()

		b.log.Info().Msg("shutting down http server")
		// Stopping the hub closes client event streams, which ends hijacked WebSocket handlers.
		stopHub()
		if err := b.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}
