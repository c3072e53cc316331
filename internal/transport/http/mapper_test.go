package http

import (
	"testing"

	"github.com/vovakirdan/livechat/internal/core"
	"github.com/vovakirdan/livechat/internal/proto"
)

func TestFrameToCommand(t *testing.T) {
	cases := []struct {
		name      string
		frame     *proto.Frame
		kind      core.CommandKind
		reply     string
		replyText string
		done      bool
	}{
		{
			name:  "subscribe",
			frame: proto.NewFrame(proto.CommandSubscribe, proto.HeaderID, "sub-0", proto.HeaderDestination, proto.TopicMessages),
			kind:  core.CommandSubscribe,
		},
		{
			name:      "subscribe without id",
			frame:     proto.NewFrame(proto.CommandSubscribe, proto.HeaderDestination, proto.TopicMessages),
			reply:     proto.CommandError,
			replyText: "malformed frame",
			done:      true,
		},
		{
			name:  "unsubscribe",
			frame: proto.NewFrame(proto.CommandUnsubscribe, proto.HeaderID, "sub-0"),
			kind:  core.CommandUnsubscribe,
		},
		{
			name:  "send",
			frame: proto.NewFrame(proto.CommandSend, proto.HeaderDestination, proto.DestinationSendMessage),
			kind:  core.CommandSend,
		},
		{
			name:      "send without destination",
			frame:     proto.NewFrame(proto.CommandSend),
			reply:     proto.CommandError,
			replyText: "malformed frame",
			done:      true,
		},
		{
			name:  "disconnect with receipt",
			frame: proto.NewDisconnect("bye"),
			reply: proto.CommandReceipt,
			done:  true,
		},
		{
			name:  "disconnect",
			frame: proto.NewDisconnect(""),
			done:  true,
		},
		{
			name:      "second connect",
			frame:     proto.NewConnect("localhost"),
			reply:     proto.CommandError,
			replyText: "already connected",
			done:      true,
		},
		{
			name:      "ack is unsupported but not fatal",
			frame:     proto.NewFrame(proto.CommandAck, proto.HeaderID, "1"),
			reply:     proto.CommandError,
			replyText: "unsupported frame",
		},
		{
			name:      "broker frame from client",
			frame:     proto.NewFrame(proto.CommandMessage),
			reply:     proto.CommandError,
			replyText: "unexpected frame",
			done:      true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, reply, done := frameToCommand(tc.frame)
			if done != tc.done {
				t.Fatalf("done = %v, want %v", done, tc.done)
			}
			if tc.reply == "" {
				if reply != nil {
					t.Fatalf("unexpected reply %s", reply)
				}
			} else {
				if reply == nil || reply.Command != tc.reply {
					t.Fatalf("reply = %v, want %s", reply, tc.reply)
				}
				if tc.replyText != "" && reply.Header.Get(proto.HeaderMessage) != tc.replyText {
					t.Fatalf("reply message = %q, want %q", reply.Header.Get(proto.HeaderMessage), tc.replyText)
				}
			}
			if tc.reply == "" && !tc.done {
				if cmd == nil || cmd.Kind != tc.kind {
					t.Fatalf("cmd = %+v, want kind %v", cmd, tc.kind)
				}
			} else if cmd != nil {
				t.Fatalf("unexpected command %+v", cmd)
			}
		})
	}
}

func TestFrameToCommandCarriesReceipt(t *testing.T) {
	f := proto.NewFrame(proto.CommandSend, proto.HeaderDestination, "/topic/raw", proto.HeaderReceipt, "r-1", proto.HeaderContentType, "text/plain")
	f.Body = []byte("body")

	cmd, reply, done := frameToCommand(f)
	if reply != nil || done {
		t.Fatalf("unexpected reply %v done %v", reply, done)
	}
	if cmd.Receipt != "r-1" || cmd.ContentType != "text/plain" || string(cmd.Body) != "body" {
		t.Fatalf("unexpected command %+v", cmd)
	}
}

func TestEventToFrame(t *testing.T) {
	msg := proto.ChatMessage{Sender: "a", Content: "b"}
	body := []byte(`{"sender":"a","content":"b"}`)
	f := eventToFrame(&core.Event{Kind: core.EventMessage, Message: core.Message{
		ID: "m-1", Destination: proto.TopicMessages, Subscription: "sub-0", ContentType: proto.ContentTypeJSON, Body: body,
	}})
	if f.Command != proto.CommandMessage || f.Header.Get(proto.HeaderMessageID) != "m-1" || f.Header.Get(proto.HeaderSubscription) != "sub-0" {
		t.Fatalf("unexpected MESSAGE: %s", f)
	}
	if got, err := proto.ParseChatMessage(f.Body); err != nil || got != msg {
		t.Fatalf("unexpected body %q: %v", f.Body, err)
	}

	f = eventToFrame(&core.Event{Kind: core.EventError, Error: &core.CoreError{Code: core.ErrCodeUnknownDestination, Message: "no route"}})
	if f.Command != proto.CommandError || f.Header.Get(proto.HeaderMessage) != "unknown destination" {
		t.Fatalf("unexpected ERROR: %s", f)
	}

	f = eventToFrame(&core.Event{Kind: core.EventReceipt, Receipt: "r-9"})
	if f.Command != proto.CommandReceipt || f.Header.Get(proto.HeaderReceiptID) != "r-9" {
		t.Fatalf("unexpected RECEIPT: %s", f)
	}
}

func TestRateLimiter(t *testing.T) {
	unlimited := newRateLimiter(0)
	for i := 0; i < 100; i++ {
		if !unlimited.allow() {
			t.Fatalf("unlimited limiter refused")
		}
	}

	limited := newRateLimiter(2)
	stop := make(chan struct{})
	defer close(stop)
	limited.startReset(stop)
	if !limited.allow() || !limited.allow() || limited.allow() {
		t.Fatalf("limit of 2 not enforced")
	}
}
