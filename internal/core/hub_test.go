package core

import (
	"context"
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/vovakirdan/livechat/internal/proto"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(nil)
	go hub.Run(ctx)
	return hub
}

// subscribe asks for a receipt so later commands from other clients see the subscription.
func subscribe(t *testing.T, c *Client, id, dest string) {
	t.Helper()
	receipt := "r-" + id
	c.Commands <- &Command{Kind: CommandSubscribe, SubscriptionID: id, Destination: dest, Receipt: receipt}
	ev := mustEvent(t, c.Events, EventReceipt)
	if ev.Receipt != receipt {
		t.Fatalf("unexpected receipt %q", ev.Receipt)
	}
}

func TestHubEchoesChatMessagesToTopic(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("a", 0)
	bob := NewClient("b", 0)
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)

	subscribe(t, alice, "sub-0", proto.TopicMessages)
	subscribe(t, bob, "sub-7", proto.TopicMessages)

	alice.Commands <- &Command{
		Kind:        CommandSend,
		Destination: proto.DestinationSendMessage,
		ContentType: proto.ContentTypeJSON,
		Body:        []byte(`{"sender":"alice","content":"hi","extra":1}`),
	}

	// The author receives its own message through the topic.
	own := mustEvent(t, alice.Events, EventMessage)
	if own.Message.Subscription != "sub-0" || own.Message.Destination != proto.TopicMessages {
		t.Fatalf("unexpected delivery to author: %+v", own.Message)
	}

	ev := mustEvent(t, bob.Events, EventMessage)
	if ev.Message.Subscription != "sub-7" {
		t.Fatalf("expected bob's subscription id, got %q", ev.Message.Subscription)
	}
	if ev.Message.ID == "" || ev.Message.ID != own.Message.ID {
		t.Fatalf("deliveries of one publish should share a message id: %q vs %q", ev.Message.ID, own.Message.ID)
	}
	var msg proto.ChatMessage
	if err := json.Unmarshal(ev.Message.Body, &msg); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if msg != (proto.ChatMessage{Sender: "alice", Content: "hi"}) {
		t.Fatalf("unexpected body: %s", ev.Message.Body)
	}
	if ev.Message.ContentType != proto.ContentTypeJSON {
		t.Fatalf("unexpected content type %q", ev.Message.ContentType)
	}
}

func TestHubRejectsInvalidChatMessage(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("a", 0)
	hub.RegisterClient(alice)
	subscribe(t, alice, "sub-0", proto.TopicMessages)

	for _, body := range []string{``, `{"content":"no sender"}`, `not json`} {
		alice.Commands <- &Command{Kind: CommandSend, Destination: proto.DestinationSendMessage, Body: []byte(body)}
		ev := mustEvent(t, alice.Events, EventError)
		if ev.Error == nil || ev.Error.Code != ErrCodeInvalidMessage {
			t.Fatalf("body %q: expected invalid_message, got %+v", body, ev)
		}
	}
}

func TestHubUnknownDestinationProducesError(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("a", 0)
	hub.RegisterClient(alice)

	alice.Commands <- &Command{Kind: CommandSend, Destination: "/app/nope", Body: []byte(`{}`)}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeUnknownDestination {
		t.Fatalf("expected unknown_destination error, got %+v", ev)
	}

	alice.Commands <- &Command{Kind: CommandSubscribe, SubscriptionID: "sub-0", Destination: "/queue/x"}
	ev = mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeUnknownDestination {
		t.Fatalf("expected unknown_destination error, got %+v", ev)
	}
}

func TestHubTopicPassThrough(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("a", 0)
	hub.RegisterClient(alice)
	subscribe(t, alice, "s", "/topic/raw")

	alice.Commands <- &Command{Kind: CommandSend, Destination: "/topic/raw", ContentType: "text/plain", Body: []byte("anything")}
	ev := mustEvent(t, alice.Events, EventMessage)
	if string(ev.Message.Body) != "anything" || ev.Message.ContentType != "text/plain" {
		t.Fatalf("unexpected message: %+v", ev.Message)
	}
}

func TestHubDuplicateSubscriptionProducesError(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("a", 0)
	hub.RegisterClient(alice)

	subscribe(t, alice, "sub-0", proto.TopicMessages)
	alice.Commands <- &Command{Kind: CommandSubscribe, SubscriptionID: "sub-0", Destination: "/topic/other"}
	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeDuplicateSubscription {
		t.Fatalf("expected duplicate_subscription error, got %+v", ev)
	}

	alice.Commands <- &Command{Kind: CommandSubscribe, SubscriptionID: "sub-1", Destination: proto.TopicMessages}
	ev = mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeAlreadySubscribed {
		t.Fatalf("expected already_subscribed error, got %+v", ev)
	}
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("a", 0)
	bob := NewClient("b", 0)
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)
	subscribe(t, alice, "sub-0", proto.TopicMessages)
	subscribe(t, bob, "sub-0", proto.TopicMessages)

	bob.Commands <- &Command{Kind: CommandUnsubscribe, SubscriptionID: "sub-0"}
	bob.Commands <- &Command{Kind: CommandUnsubscribe, SubscriptionID: "sub-0"}
	ev := mustEvent(t, bob.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeNotSubscribed {
		t.Fatalf("expected not_subscribed error, got %+v", ev)
	}

	sendChat(alice, "alice", "x")
	mustEvent(t, alice.Events, EventMessage)
	expectQuiet(t, bob.Events)
}

func TestHubUnregisterClosesEvents(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("a", 0)
	hub.RegisterClient(alice)
	subscribe(t, alice, "sub-0", proto.TopicMessages)

	hub.UnregisterClient(alice)
	hub.UnregisterClient(alice)

	select {
	case <-alice.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("client not released")
	}
	if _, ok := <-alice.Events; ok {
		t.Fatalf("expected closed events channel")
	}
}

func TestHubDropsSlowConsumer(t *testing.T) {
	hub := startHub(t)

	slow := NewClient("slow", 1)
	fast := NewClient("fast", 16)
	hub.RegisterClient(slow)
	hub.RegisterClient(fast)
	subscribe(t, slow, "s", proto.TopicMessages)
	subscribe(t, fast, "f", proto.TopicMessages)

	for i := 0; i < 3; i++ {
		sendChat(fast, "f", "x")
	}
	for i := 0; i < 3; i++ {
		mustEvent(t, fast.Events, EventMessage)
	}
	if got := len(slow.Events); got != 1 {
		t.Fatalf("slow consumer queue = %d, want 1", got)
	}
}

func TestTopicSubscribers(t *testing.T) {
	topic := NewTopic(proto.TopicMessages)
	b := NewClient("b", 0)
	a := NewClient("a", 0)

	if !topic.AddSubscriber(b, "1") || !topic.AddSubscriber(a, "2") {
		t.Fatalf("expected new subscribers")
	}
	if topic.AddSubscriber(a, "3") {
		t.Fatalf("client subscribed twice")
	}
	if got := topic.Subscribers(); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("subscribers = %v", got)
	}
	topic.RemoveSubscriber(a)
	topic.RemoveSubscriber(b)
	if !topic.Empty() {
		t.Fatalf("expected empty topic")
	}
}
