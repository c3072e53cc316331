// Package client implements the client side of the chat transport: a duplex
// byte channel to the broker's /chat endpoint, carried over a WebSocket or,
// when that cannot be opened, over HTTP long-polling.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ChatPath is the sub-path of the broker's base URL that serves the chat transports.
const ChatPath = "/chat"

// Transport names.
const (
	NameWebSocket = "websocket"
	NamePolling   = "polling"
)

// ErrClosed is returned by Send on a connection that is not open.
var ErrClosed = errors.New("transport closed")

// Error is a transport-level failure: the connection could not be opened or was severed.
type Error struct {
	Op        string
	Transport string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Transport, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// EventKind enumerates what a connection reports to its handler.
type EventKind int

const (
	// EventOpened is always the first event delivered after Listen.
	EventOpened EventKind = iota
	// EventFrame carries one inbound transport message.
	EventFrame
	// EventClosed means the connection ended in an orderly way.
	EventClosed
	// EventError means the connection was severed by a failure.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventFrame:
		return "frame"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to a Handler. Data is set for EventFrame, Reason for
// EventClosed and Err for EventError.
type Event struct {
	Kind   EventKind
	Data   []byte
	Reason string
	Err    error
}

// Handler receives connection events. Calls are sequential and in arrival order;
// after EventClosed or EventError no further calls are made.
type Handler func(Event)

// Conn is one open connection to the broker.
type Conn interface {
	// Listen starts event delivery. Only the first call has an effect.
	Listen(h Handler)
	// Send writes one transport message. It fails with *Error wrapping ErrClosed when the connection is not open.
	Send(ctx context.Context, data []byte) error
	// Close releases the connection. It is idempotent.
	Close() error
	// Transport names the concrete transport.
	Transport() string
}

// Dialer opens connections to the broker at baseURL.
type Dialer interface {
	Dial(ctx context.Context, baseURL string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, baseURL string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, baseURL string) (Conn, error) {
	return f(ctx, baseURL)
}

// Endpoint joins baseURL, ChatPath and suffix.
func Endpoint(baseURL, suffix string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + ChatPath + suffix
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// WebSocketURL returns the WebSocket endpoint for baseURL, mapping http(s) to ws(s).
func WebSocketURL(baseURL string) (string, error) {
	raw, err := Endpoint(baseURL, "/websocket")
	if err != nil {
		return "", err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Host returns the host[:port] of baseURL, used as the CONNECT host header.
func Host(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return baseURL
	}
	return u.Host
}
