package core

import (
	"testing"
	"time"

	"github.com/vovakirdan/livechat/internal/proto"
)

// mustEvent waits for the next event of kind, skipping events of other kinds.
func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("events closed while waiting for %v", kind)
			}
			if ev != nil && ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("expected event kind %v not received", kind)
			return nil
		}
	}
}

// expectQuiet fails if anything arrives on ch within a short window.
func expectQuiet(t *testing.T, ch <-chan *Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func sendChat(c *Client, sender, content string) {
	c.Commands <- &Command{
		Kind:        CommandSend,
		Destination: proto.DestinationSendMessage,
		ContentType: proto.ContentTypeJSON,
		Body:        []byte(`{"sender":"` + sender + `","content":"` + content + `"}`),
	}
}
