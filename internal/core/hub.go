package core

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/livechat/internal/proto"
	"github.com/vovakirdan/livechat/internal/utils"
)

type clientCommand struct {
	client *Client
	cmd    *Command
}

// Hub routes commands from connected clients to topics.
// All state is owned by the goroutine running Run.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	stopped    chan struct{}

	clients map[*Client]struct{}
	topics  map[string]*Topic
	log     *zerolog.Logger
	now     func() time.Time
}

// NewHub creates a new chat hub instance. A nil logger discards output.
func NewHub(logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 256),
		stopped:    make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		topics:     make(map[string]*Topic),
		log:        logger,
		now:        time.Now,
	}
}

// RegisterClient attaches a client; its Commands are consumed until it is unregistered.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopped:
	}
}

// UnregisterClient drops the client's subscriptions and closes its Events channel.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Run processes hub events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			go h.pump(c)
			h.log.Debug().Str("client_id", c.ID).Int("clients", len(h.clients)).Msg("client registered")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.log.Debug().Str("client_id", c.ID).Int("clients", len(h.clients)).Msg("client unregistered")
			}
		case cc := <-h.commands:
			if _, ok := h.clients[cc.client]; !ok {
				continue
			}
			h.handle(cc.client, cc.cmd)
		}
	}
}

// pump forwards a client's commands into the hub.
func (h *Hub) pump(c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			select {
			case h.commands <- clientCommand{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-h.stopped:
				return
			}
		case <-c.done:
			return
		case <-h.stopped:
			return
		}
	}
}

func (h *Hub) drop(c *Client) {
	for _, dest := range c.subscriptions {
		h.leave(c, dest)
	}
	c.subscriptions = nil
	delete(h.clients, c)
	close(c.done)
	close(c.Events)
}

func (h *Hub) handle(c *Client, cmd *Command) {
	var ok bool
	switch cmd.Kind {
	case CommandSubscribe:
		ok = h.subscribe(c, cmd)
	case CommandUnsubscribe:
		ok = h.unsubscribe(c, cmd)
	case CommandSend:
		ok = h.send(c, cmd)
	default:
		h.reject(c, coreError(ErrCodeBadRequest, "unknown command"))
	}
	if ok && cmd.Receipt != "" {
		h.deliver(c, &Event{Kind: EventReceipt, Receipt: cmd.Receipt})
	}
}

func (h *Hub) subscribe(c *Client, cmd *Command) bool {
	if cmd.SubscriptionID == "" || cmd.Destination == "" {
		h.reject(c, coreError(ErrCodeBadRequest, "subscription id and destination are required"))
		return false
	}
	if !strings.HasPrefix(cmd.Destination, proto.TopicPrefix) {
		h.reject(c, coreError(ErrCodeUnknownDestination, "cannot subscribe to "+cmd.Destination))
		return false
	}
	if _, exists := c.subscriptions[cmd.SubscriptionID]; exists {
		h.reject(c, coreError(ErrCodeDuplicateSubscription, "subscription "+cmd.SubscriptionID+" already exists"))
		return false
	}

	topic, ok := h.topics[cmd.Destination]
	if !ok {
		topic = NewTopic(cmd.Destination)
		h.topics[cmd.Destination] = topic
	}
	if !topic.AddSubscriber(c, cmd.SubscriptionID) {
		h.reject(c, coreError(ErrCodeAlreadySubscribed, "already subscribed to "+cmd.Destination))
		return false
	}
	c.subscriptions[cmd.SubscriptionID] = cmd.Destination
	h.log.Debug().Str("client_id", c.ID).Str("destination", cmd.Destination).Str("subscription", cmd.SubscriptionID).Msg("subscribed")
	return true
}

func (h *Hub) unsubscribe(c *Client, cmd *Command) bool {
	dest, ok := c.subscriptions[cmd.SubscriptionID]
	if !ok {
		h.reject(c, coreError(ErrCodeNotSubscribed, "no subscription "+cmd.SubscriptionID))
		return false
	}
	delete(c.subscriptions, cmd.SubscriptionID)
	h.leave(c, dest)
	return true
}

func (h *Hub) leave(c *Client, dest string) {
	topic, ok := h.topics[dest]
	if !ok {
		return
	}
	topic.RemoveSubscriber(c)
	if topic.Empty() {
		delete(h.topics, dest)
	}
}

// send routes a published body: the chat application destination is validated
// and re-broadcast to the messages topic, topic destinations pass through.
func (h *Hub) send(c *Client, cmd *Command) bool {
	switch {
	case cmd.Destination == proto.DestinationSendMessage:
		msg, err := proto.ParseChatMessage(cmd.Body)
		if err != nil {
			h.reject(c, coreError(ErrCodeInvalidMessage, err.Error()))
			return false
		}
		body, err := json.Marshal(msg)
		if err != nil {
			h.reject(c, coreError(ErrCodeInvalidMessage, err.Error()))
			return false
		}
		h.publish(proto.TopicMessages, proto.ContentTypeJSON, body)
	case strings.HasPrefix(cmd.Destination, proto.TopicPrefix):
		h.publish(cmd.Destination, cmd.ContentType, cmd.Body)
	default:
		h.reject(c, coreError(ErrCodeUnknownDestination, "no handler for "+cmd.Destination))
		return false
	}
	return true
}

func (h *Hub) publish(dest, contentType string, body []byte) {
	topic, ok := h.topics[dest]
	if !ok {
		return
	}
	msg := Message{
		ID:          utils.NewPrefixedID("msg"),
		Destination: dest,
		ContentType: contentType,
		Body:        body,
		CreatedAt:   h.now(),
	}
	if dropped := topic.Broadcast(msg); dropped > 0 {
		h.log.Warn().Str("destination", dest).Int("dropped", dropped).Msg("slow subscribers skipped")
	}
}

func (h *Hub) reject(c *Client, err *CoreError) {
	h.log.Debug().Str("client_id", c.ID).Str("code", err.Code).Msg(err.Message)
	h.deliver(c, &Event{Kind: EventError, Error: err})
}

func (h *Hub) deliver(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		h.log.Warn().Str("client_id", c.ID).Msg("client queue full, event dropped")
	}
}
