package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/vovakirdan/livechat/internal/proto"
	transport "github.com/vovakirdan/livechat/internal/transport/client"
)

const testBaseURL = "http://chat.test:8080"

var errDialRefused = errors.New("connection refused")

type fakeConn struct {
	mu        sync.Mutex
	handler   transport.Handler
	listening chan struct{}
	sent      [][]byte
	closed    bool
	sendErr   error
}

func newFakeConn() *fakeConn {
	return &fakeConn{listening: make(chan struct{})}
}

func (c *fakeConn) Listen(h transport.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		return
	}
	c.handler = h
	close(c.listening)
}

func (c *fakeConn) Send(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &transport.Error{Op: "send", Transport: "fake", Err: transport.ErrClosed}
	}
	if c.sendErr != nil {
		return &transport.Error{Op: "send", Transport: "fake", Err: c.sendErr}
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Transport() string { return "fake" }

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) failSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// emit delivers ev to the listener once the manager has called Listen.
func (c *fakeConn) emit(t *testing.T, ev transport.Event) {
	t.Helper()
	select {
	case <-c.listening:
	case <-time.After(2 * time.Second):
		t.Fatalf("connection never listened")
	}
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	h(ev)
}

func (c *fakeConn) emitFrame(t *testing.T, f *proto.Frame) {
	t.Helper()
	c.emit(t, transport.Event{Kind: transport.EventFrame, Data: proto.Encode(f)})
}

// commands returns the commands of every frame sent so far.
func (c *fakeConn) commands(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, data := range c.sent {
		frames, err := proto.Decode(data)
		if err != nil {
			t.Fatalf("decode sent frame: %v", err)
		}
		for _, f := range frames {
			out = append(out, f.Command)
		}
	}
	return out
}

func (c *fakeConn) lastFrame(t *testing.T) *proto.Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	frames, err := proto.Decode(c.sent[len(c.sent)-1])
	if err != nil || len(frames) != 1 {
		t.Fatalf("decode last frame: %v (%d frames)", err, len(frames))
	}
	return frames[0]
}

type fakeDialer struct {
	conns chan *fakeConn
	dials atomic.Int32
	fail  atomic.Bool
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (transport.Conn, error) {
	d.dials.Add(1)
	if d.fail.Load() {
		return nil, &transport.Error{Op: "dial", Transport: "fake", Err: errDialRefused}
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no dial happened")
		return nil
	}
}

// recorder collects every observer callback.
type recorder struct {
	mu       sync.Mutex
	states   []StateEvent
	messages []ChatMessage
	errors   []*ProtocolError
}

func (r *recorder) OnStateChange(ev StateEvent) {
	r.mu.Lock()
	r.states = append(r.states, ev)
	r.mu.Unlock()
}

func (r *recorder) OnMessage(msg ChatMessage) {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
}

func (r *recorder) OnProtocolError(err *ProtocolError) {
	r.mu.Lock()
	r.errors = append(r.errors, err)
	r.mu.Unlock()
}

func (r *recorder) stateTrail() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.states))
	for _, ev := range r.states {
		out = append(out, ev.To)
	}
	return out
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states) + len(r.messages) + len(r.errors)
}

func (r *recorder) protocolErrors() []*ProtocolError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*ProtocolError(nil), r.errors...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, m interface{ State() State }, want State) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return m.State() == want })
}

func newTestManager(t *testing.T) (*Manager, *fakeDialer, *clock.Mock, *MessageLog, *recorder) {
	t.Helper()
	d := newFakeDialer()
	clk := clock.NewMock()
	log := NewMessageLog()
	m := NewManager(Config{BaseURL: testBaseURL}, d, log, WithClock(clk))
	rec := &recorder{}
	m.Subscribe(rec)
	t.Cleanup(m.Teardown)
	return m, d, clk, log, rec
}

// handshake answers the next dial with CONNECTED and waits for Subscribed.
func handshake(t *testing.T, m *Manager, d *fakeDialer) *fakeConn {
	t.Helper()
	c := d.next(t)
	c.emit(t, transport.Event{Kind: transport.EventOpened})
	waitFor(t, "CONNECT", func() bool { return len(c.commands(t)) > 0 })
	c.emitFrame(t, proto.NewConnected("test"))
	waitState(t, m, Subscribed)
	return c
}

func chatFrame(sender, content string) *proto.Frame {
	body := []byte(`{"sender":"` + sender + `","content":"` + content + `"}`)
	return proto.NewMessage(proto.TopicMessages, SubscriptionID, "m-"+sender, proto.ContentTypeJSON, body)
}
