package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected rejects a publish while the session is not Subscribed.
	ErrNotConnected = errors.New("not connected")
	// ErrInvalidDraft rejects a publish with an empty username or a blank message.
	ErrInvalidDraft = errors.New("invalid draft")
	// ErrTornDown is returned by Open on a manager that was torn down.
	ErrTornDown = errors.New("session torn down")
	// ErrAlreadyOpen is returned by a second Open.
	ErrAlreadyOpen = errors.New("session already open")
	// ErrHandshakeTimeout is the cause reported when the broker does not answer CONNECT in time.
	ErrHandshakeTimeout = errors.New("handshake timed out")
	// ErrConnectionClosed is the cause reported when the transport closes in an orderly way.
	ErrConnectionClosed = errors.New("connection closed")
)

// ProtocolError is an advisory ERROR frame reported by the broker. It never changes the session state.
type ProtocolError struct {
	Message string
	Detail  string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" || e.Detail == e.Message {
		return fmt.Sprintf("broker error: %s", e.Message)
	}
	return fmt.Sprintf("broker error: %s (%s)", e.Message, e.Detail)
}
