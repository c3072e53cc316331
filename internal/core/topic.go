package core

import (
	"sort"

	"github.com/samber/lo"
)

// Topic groups the subscriptions attached to one destination.
type Topic struct {
	Name        string
	subscribers map[*Client]string
}

// NewTopic constructs a topic with no subscribers.
func NewTopic(name string) *Topic {
	return &Topic{
		Name:        name,
		subscribers: make(map[*Client]string),
	}
}

// AddSubscriber attaches client under subscription id. Returns false if the client is already subscribed.
func (t *Topic) AddSubscriber(c *Client, id string) bool {
	if _, exists := t.subscribers[c]; exists {
		return false
	}
	t.subscribers[c] = id
	return true
}

// RemoveSubscriber detaches a client. Returns true if removed.
func (t *Topic) RemoveSubscriber(c *Client) bool {
	if _, exists := t.subscribers[c]; !exists {
		return false
	}
	delete(t.subscribers, c)
	return true
}

// Broadcast delivers msg to every subscriber with its own subscription id.
// It returns the number of subscribers whose queue was full.
func (t *Topic) Broadcast(msg Message) int {
	dropped := 0
	for client, id := range t.subscribers {
		delivery := msg
		delivery.Subscription = id
		select {
		case client.Events <- &Event{Kind: EventMessage, Message: delivery}:
		default:
			// Drop if slow consumer.
			dropped++
		}
	}
	return dropped
}

// Subscribers returns the ids of subscribed clients, sorted.
func (t *Topic) Subscribers() []string {
	ids := lo.MapToSlice(t.subscribers, func(c *Client, _ string) string { return c.ID })
	sort.Strings(ids)
	return ids
}

// Empty returns true if no clients are subscribed.
func (t *Topic) Empty() bool {
	return len(t.subscribers) == 0
}
