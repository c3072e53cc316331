package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/livechat/internal/core"
	"github.com/vovakirdan/livechat/internal/proto"
	"github.com/vovakirdan/livechat/internal/utils"
)

// subprotocols accepted by the WebSocket endpoint.
var subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

const wsReadLimit = 1 << 20

// errClientClosed ends the read loop after a DISCONNECT or a fatal ERROR.
var errClientClosed = errors.New("stomp session closed")

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub            *core.Hub
	allowedOrigins []string
	sendRateLimit  int
	log            *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, allowedOrigins []string, sendRateLimit int, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, allowedOrigins: allowedOrigins, sendRateLimit: sendRateLimit, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	opts := &websocket.AcceptOptions{Subprotocols: subprotocols}
	if len(h.allowedOrigins) == 0 {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = h.allowedOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	conn.SetReadLimit(wsReadLimit)

	client := core.NewClient(utils.NewID(), 0)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	logger := h.log.With().Str("client_id", client.ID).Str("transport", "websocket").Logger()
	limiter := newRateLimiter(h.sendRateLimit)
	session := newSTOMPSession(client, limiter, &logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	limiter.startReset(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, session, &logger)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client, &logger)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errClientClosed) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			logger.Warn().Err(err).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *stompSession, logger *zerolog.Logger) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			logger.Debug().Err(err).Msg("read ws frame")
			return err
		}

		replies, closeAfter := session.handle(data)
		for _, f := range replies {
			if err := conn.Write(ctx, websocket.MessageText, proto.Encode(f)); err != nil {
				return err
			}
		}
		if closeAfter {
			return errClientClosed
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, logger *zerolog.Logger) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			frame := eventToFrame(event)
			if frame == nil {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, proto.Encode(frame)); err != nil {
				logger.Error().Err(err).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
