package core

const defaultClientBuffer = 64

// Client is one broker connection as seen by the hub.
type Client struct {
	ID       string
	Commands chan *Command
	Events   chan *Event

	// subscription id -> destination, owned by the hub goroutine
	subscriptions map[string]string
	done          chan struct{}
}

// NewClient constructs a client with initialized channels. A buffer of 0 uses the default.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Client{
		ID:            id,
		Commands:      make(chan *Command, buffer),
		Events:        make(chan *Event, buffer),
		subscriptions: make(map[string]string),
		done:          make(chan struct{}),
	}
}

// Done is closed once the hub has unregistered the client. Events is closed at the same time.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
