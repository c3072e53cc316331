package session

import (
	"context"

	"github.com/vovakirdan/livechat/internal/proto"
	transport "github.com/vovakirdan/livechat/internal/transport/client"
)

// Client is the surface the view layer uses: connection state, the received
// message log and a guarded publish.
type Client struct {
	manager  *Manager
	messages *MessageLog
}

// NewClient builds a client whose manager appends received messages to its own log.
func NewClient(cfg Config, dialer transport.Dialer, opts ...Option) *Client {
	messages := NewMessageLog()
	return &Client{
		manager:  NewManager(cfg, dialer, messages, opts...),
		messages: messages,
	}
}

// Open starts connecting to the broker.
func (c *Client) Open() error {
	return c.manager.Open()
}

// State returns the current session state.
func (c *Client) State() State {
	return c.manager.State()
}

// Messages returns a snapshot of received messages in arrival order.
func (c *Client) Messages() []ChatMessage {
	return c.messages.Snapshot()
}

// Subscribe registers an observer for state changes, messages and broker errors.
func (c *Client) Subscribe(obs Observer) func() {
	return c.manager.Subscribe(obs)
}

// Publish sends the draft as a chat message.
//
// It returns an error wrapping ErrInvalidDraft when the username is empty or
// the message is blank, and ErrNotConnected when the session is not Subscribed;
// neither case touches the transport. On nil the caller should clear the draft's
// message. The sent message is not added to Messages: it appears there once the
// broker broadcasts it back.
func (c *Client) Publish(ctx context.Context, draft Draft) error {
	if err := draft.Validate(); err != nil {
		return err
	}
	return c.manager.Send(ctx, proto.DestinationSendMessage, proto.ChatMessage{
		Sender:  draft.Username,
		Content: draft.Message,
	})
}

// Close tears the session down and clears the message log.
func (c *Client) Close() {
	c.manager.Teardown()
	c.messages.Reset()
}
