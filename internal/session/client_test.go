package session

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/livechat/internal/proto"
	transport "github.com/vovakirdan/livechat/internal/transport/client"
)

func newTestClient(t *testing.T) (*Client, *fakeDialer) {
	t.Helper()
	d := newFakeDialer()
	c := NewClient(Config{BaseURL: testBaseURL}, d, WithClock(clock.NewMock()))
	t.Cleanup(c.Close)
	return c, d
}

func TestPublishRejectsInvalidDraftInAnyState(t *testing.T) {
	c, d := newTestClient(t)

	bad := []Draft{
		{Username: "", Message: "hi"},
		{Username: "a", Message: "   "},
		{Username: "a", Message: "\t\n"},
		{},
	}
	check := func(stage string) {
		t.Helper()
		for _, draft := range bad {
			if err := c.Publish(context.Background(), draft); !errors.Is(err, ErrInvalidDraft) {
				t.Fatalf("%s: publish(%+v) = %v, want ErrInvalidDraft", stage, draft, err)
			}
		}
	}

	check("idle")
	if err := c.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	check("connecting")

	conn := handshake(t, c.manager, d)
	check("subscribed")
	if got := conn.commands(t); !slices.Equal(got, []string{proto.CommandConnect, proto.CommandSubscribe}) {
		t.Fatalf("invalid drafts reached the transport: %v", got)
	}
}

func TestPublishRejectsWhenNotSubscribed(t *testing.T) {
	c, d := newTestClient(t)
	draft := Draft{Username: "alice", Message: "hi"}

	if err := c.Publish(context.Background(), draft); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("idle publish: %v", err)
	}
	if err := c.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := c.Publish(context.Background(), draft); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("connecting publish: %v", err)
	}

	conn := handshake(t, c.manager, d)
	conn.emit(t, transport.Event{Kind: transport.EventClosed, Reason: "bye"})
	waitState(t, c, Disconnected)
	if err := c.Publish(context.Background(), draft); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("disconnected publish: %v", err)
	}
	if got := conn.commands(t); slices.Contains(got, proto.CommandSend) {
		t.Fatalf("rejected publish reached the transport: %v", got)
	}
}

func TestPublishSendsChatMessage(t *testing.T) {
	c, d := newTestClient(t)
	if err := c.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	conn := handshake(t, c.manager, d)

	if err := c.Publish(context.Background(), Draft{Username: "alice", Message: "  hello  "}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	f := conn.lastFrame(t)
	if f.Command != proto.CommandSend || f.Header.Get(proto.HeaderDestination) != proto.DestinationSendMessage {
		t.Fatalf("unexpected frame: %s", f)
	}
	if f.Header.Get(proto.HeaderContentType) != proto.ContentTypeJSON {
		t.Fatalf("unexpected content-type %q", f.Header.Get(proto.HeaderContentType))
	}
	var body proto.ChatMessage
	if err := json.Unmarshal(f.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body != (proto.ChatMessage{Sender: "alice", Content: "  hello  "}) {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestPublishDoesNotEchoLocally(t *testing.T) {
	c, d := newTestClient(t)
	if err := c.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	conn := handshake(t, c.manager, d)

	if err := c.Publish(context.Background(), Draft{Username: "alice", Message: "hi"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := c.Messages(); len(got) != 0 {
		t.Fatalf("published message appeared before the broker echoed it: %+v", got)
	}

	conn.emitFrame(t, chatFrame("alice", "hi"))
	waitFor(t, "echo", func() bool { return len(c.Messages()) == 1 })
	if got := c.Messages(); got[0] != (ChatMessage{Sender: "alice", Content: "hi"}) {
		t.Fatalf("unexpected messages: %+v", got)
	}
}

func TestClientCloseClearsHistory(t *testing.T) {
	c, d := newTestClient(t)
	if err := c.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	conn := handshake(t, c.manager, d)
	conn.emitFrame(t, chatFrame("alice", "hi"))
	waitFor(t, "message", func() bool { return len(c.Messages()) == 1 })

	c.Close()
	if c.State() != Idle {
		t.Fatalf("expected Idle, got %s", c.State())
	}
	if got := c.Messages(); len(got) != 0 {
		t.Fatalf("history survived close: %+v", got)
	}
}

func TestMessagesReturnsSnapshot(t *testing.T) {
	log := NewMessageLog()
	log.Append(ChatMessage{Sender: "a", Content: "1"})
	log.Append(ChatMessage{Sender: "a", Content: "1"})

	snap := log.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("duplicates are distinct entries, got %d", len(snap))
	}
	snap[0].Content = "mutated"
	if log.Snapshot()[0].Content != "1" {
		t.Fatalf("snapshot aliases the log")
	}

	log.Reset()
	if log.Len() != 0 {
		t.Fatalf("reset left %d messages", log.Len())
	}
}

func TestDraftValidate(t *testing.T) {
	cases := []struct {
		name  string
		draft Draft
		field string
	}{
		{name: "ok", draft: Draft{Username: "a", Message: "hi"}},
		{name: "padded message", draft: Draft{Username: "a", Message: " hi "}},
		{name: "no username", draft: Draft{Message: "hi"}, field: "username"},
		{name: "blank message", draft: Draft{Username: "a", Message: "  "}, field: "message"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.draft.Validate()
			if tc.field == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidDraft) {
				t.Fatalf("expected ErrInvalidDraft, got %v", err)
			}
			if want := "invalid draft: " + tc.field + " is required"; err.Error() != want {
				t.Fatalf("error = %q, want %q", err.Error(), want)
			}
		})
	}
}
