package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// Subprotocols offered during the WebSocket handshake, most preferred first.
var Subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

const wsReadLimit = 1 << 20

// WebSocketDialer opens native WebSocket connections.
type WebSocketDialer struct {
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// NewWebSocketDialer builds a dialer; a nil client uses http.DefaultClient.
func NewWebSocketDialer(httpClient *http.Client, logger *zerolog.Logger) *WebSocketDialer {
	return &WebSocketDialer{HTTPClient: httpClient, Logger: logger}
}

// Dial performs the WebSocket handshake against baseURL + /chat/websocket.
func (d *WebSocketDialer) Dial(ctx context.Context, baseURL string) (Conn, error) {
	target, err := WebSocketURL(baseURL)
	if err != nil {
		return nil, &Error{Op: "dial", Transport: NameWebSocket, Err: err}
	}

	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient:   d.HTTPClient,
		Subprotocols: Subprotocols,
	})
	if err != nil {
		if resp != nil {
			err = errors.Join(err, errors.New("handshake status "+strconv.Itoa(resp.StatusCode)))
		}
		return nil, &Error{Op: "dial", Transport: NameWebSocket, Err: err}
	}
	conn.SetReadLimit(wsReadLimit)

	logger := zerolog.Nop()
	if d.Logger != nil {
		logger = d.Logger.With().Str("transport", NameWebSocket).Logger()
	}
	logger.Debug().Str("url", target).Str("subprotocol", conn.Subprotocol()).Msg("websocket opened")

	readCtx, cancel := context.WithCancel(context.Background())
	return &wsConn{
		conn:   conn,
		log:    &logger,
		ctx:    readCtx,
		cancel: cancel,
	}, nil
}

type wsConn struct {
	conn   *websocket.Conn
	log    *zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	closed     atomic.Bool
	closeOnce  sync.Once
	listenOnce sync.Once
}

func (c *wsConn) Transport() string { return NameWebSocket }

func (c *wsConn) Listen(h Handler) {
	c.listenOnce.Do(func() {
		go c.readLoop(h)
	})
}

func (c *wsConn) readLoop(h Handler) {
	h(Event{Kind: EventOpened})
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			h(c.terminalEvent(err))
			return
		}
		h(Event{Kind: EventFrame, Data: data})
	}
}

func (c *wsConn) terminalEvent(err error) Event {
	if c.closed.Load() {
		return Event{Kind: EventClosed, Reason: "closed by client"}
	}
	switch status := websocket.CloseStatus(err); status {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return Event{Kind: EventClosed, Reason: "closed by broker (" + strconv.Itoa(int(status)) + ")"}
	}
	if errors.Is(err, io.EOF) {
		return Event{Kind: EventClosed, Reason: "connection closed"}
	}
	c.log.Warn().Err(err).Msg("websocket read failed")
	return Event{Kind: EventError, Err: &Error{Op: "read", Transport: NameWebSocket, Err: err}}
}

func (c *wsConn) Send(ctx context.Context, data []byte) error {
	if c.closed.Load() {
		return &Error{Op: "send", Transport: NameWebSocket, Err: ErrClosed}
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return &Error{Op: "send", Transport: NameWebSocket, Err: err}
	}
	return nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if err := c.conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
			c.log.Debug().Err(err).Msg("websocket close")
		}
		c.cancel()
	})
	return nil
}
