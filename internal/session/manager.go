package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/livechat/internal/proto"
	transport "github.com/vovakirdan/livechat/internal/transport/client"
)

const (
	// DefaultReconnectDelay is the fixed pause between a disconnect and the next attempt.
	DefaultReconnectDelay = 5 * time.Second
	// SubscriptionID is the id of the single topic subscription.
	SubscriptionID = "sub-0"

	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
	disconnectTimeout   = time.Second
	inboxSize           = 64
)

// Config configures a Manager.
type Config struct {
	BaseURL        string
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock that drives the reconnect timer.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.log = logger
		}
	}
}

// inbound is one item processed by the loop: either a dial result or a transport event.
type inbound struct {
	epoch  uint64
	dialed bool
	conn   transport.Conn
	err    error
	event  transport.Event
}

type sendRequest struct {
	ctx   context.Context
	frame *proto.Frame
	reply chan error
}

// Manager owns the connection to the broker and its state machine.
// All transitions happen on one goroutine started by Open and stopped by Teardown.
type Manager struct {
	cfg       Config
	dialer    transport.Dialer
	sink      Sink
	clock     clock.Clock
	log       *zerolog.Logger
	observers observers

	state atomic.Int32

	// owned by the loop goroutine
	conn       transport.Conn
	epoch      uint64
	attempt    int
	timer      *clock.Timer
	handshake  *clock.Timer
	dialCancel context.CancelFunc

	inbox   chan inbound
	sends   chan sendRequest
	quit    chan struct{}
	stopped chan struct{}

	mu           sync.Mutex
	started      bool
	tornDown     bool
	teardownOnce sync.Once
}

// NewManager builds a manager in the Idle state. Decoded messages are appended to sink.
func NewManager(cfg Config, dialer transport.Dialer, sink Sink, opts ...Option) *Manager {
	nop := zerolog.Nop()
	m := &Manager{
		cfg:     cfg.withDefaults(),
		dialer:  dialer,
		sink:    sink,
		clock:   clock.New(),
		log:     &nop,
		inbox:   make(chan inbound, inboxSize),
		sends:   make(chan sendRequest),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Subscribe registers an observer and returns a function that removes it.
func (m *Manager) Subscribe(obs Observer) func() {
	return m.observers.add(obs)
}

// Open moves Idle to Connecting and starts the session loop.
// The state is Connecting when Open returns.
func (m *Manager) Open() error {
	m.mu.Lock()
	if m.tornDown {
		m.mu.Unlock()
		return ErrTornDown
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyOpen
	}
	m.started = true
	m.mu.Unlock()

	// the loop does not exist yet, so the first attempt can be started here
	m.connect()
	go m.run()
	return nil
}

// Teardown moves any state to Idle: it cancels a pending reconnect, closes the
// transport and stops the loop. No observer callback runs after it returns.
// It is idempotent; concurrent callers all wait for the first to finish.
func (m *Manager) Teardown() {
	m.teardownOnce.Do(func() {
		m.mu.Lock()
		m.tornDown = true
		started := m.started
		m.mu.Unlock()

		m.observers.detach()
		close(m.quit)
		if started {
			<-m.stopped
		}
		m.state.Store(int32(Idle))
	})
}

// Send encodes payload into a SEND frame for destination and writes it.
// It returns ErrNotConnected unless the session is Subscribed.
func (m *Manager) Send(ctx context.Context, destination string, payload any) error {
	if m.State() != Subscribed {
		return ErrNotConnected
	}
	frame, err := proto.NewSend(destination, payload)
	if err != nil {
		return err
	}

	req := sendRequest{ctx: ctx, frame: frame, reply: make(chan error, 1)}
	select {
	case m.sends <- req:
	case <-m.quit:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-m.stopped:
		return ErrNotConnected
	}
}

func (m *Manager) run() {
	defer close(m.stopped)

	for {
		var timerC, handshakeC <-chan time.Time
		if m.timer != nil {
			timerC = m.timer.C
		}
		if m.handshake != nil {
			handshakeC = m.handshake.C
		}

		select {
		case <-m.quit:
			m.shutdown()
			return
		case in := <-m.inbox:
			m.handle(in)
		case req := <-m.sends:
			req.reply <- m.send(req)
		case <-timerC:
			m.timer = nil
			m.connect()
		case <-handshakeC:
			m.handshake = nil
			m.disconnect(ErrHandshakeTimeout)
		}
	}
}

// connect starts one dial attempt off the loop.
func (m *Manager) connect() {
	m.epoch++
	m.attempt++
	epoch := m.epoch

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.DialTimeout)
	m.dialCancel = cancel

	m.log.Debug().Uint64("epoch", epoch).Int("attempt", m.attempt).Str("url", m.cfg.BaseURL).Msg("connecting")
	m.transition(Connecting, nil)

	go func() {
		conn, err := m.dialer.Dial(ctx, m.cfg.BaseURL)
		select {
		case m.inbox <- inbound{epoch: epoch, dialed: true, conn: conn, err: err}:
		case <-m.quit:
			if conn != nil {
				_ = conn.Close()
			}
		}
	}()
}

func (m *Manager) handle(in inbound) {
	if in.epoch != m.epoch {
		if in.dialed && in.conn != nil {
			_ = in.conn.Close()
		}
		return
	}
	if in.dialed {
		m.handleDialed(in.conn, in.err)
		return
	}
	m.handleEvent(in.event)
}

func (m *Manager) handleDialed(conn transport.Conn, err error) {
	m.cancelDial()
	if err != nil {
		m.disconnect(err)
		return
	}

	m.conn = conn
	// the broker must answer CONNECTED within the dial timeout
	m.handshake = m.clock.Timer(m.cfg.DialTimeout)
	epoch := m.epoch
	m.log.Info().Str("transport", conn.Transport()).Uint64("epoch", epoch).Msg("transport opened")
	conn.Listen(func(ev transport.Event) {
		select {
		case m.inbox <- inbound{epoch: epoch, event: ev}:
		case <-m.quit:
		}
	})
}

func (m *Manager) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventOpened:
		if err := m.writeFrame(context.Background(), proto.NewConnect(transport.Host(m.cfg.BaseURL))); err != nil {
			m.disconnect(err)
		}
	case transport.EventFrame:
		m.handleData(ev.Data)
	case transport.EventClosed:
		m.disconnect(fmt.Errorf("%w: %s", ErrConnectionClosed, ev.Reason))
	case transport.EventError:
		m.disconnect(ev.Err)
	}
}

func (m *Manager) handleData(data []byte) {
	frames, err := proto.Decode(data)
	epoch := m.epoch
	for _, f := range frames {
		m.handleFrame(f)
		if m.epoch != epoch {
			return
		}
	}
	if err != nil {
		m.log.Warn().Err(err).Msg("dropping malformed frame")
	}
}

func (m *Manager) handleFrame(f *proto.Frame) {
	sig, err := proto.Interpret(f)
	if err != nil {
		m.log.Warn().Err(err).Str("frame", f.String()).Msg("dropping malformed frame")
		return
	}

	switch sig.Kind {
	case proto.SignalConnected:
		if m.State() != Connecting {
			m.log.Warn().Str("state", m.State().String()).Msg("ignoring unexpected CONNECTED")
			return
		}
		m.stopHandshake()
		m.transition(Connected, nil)
		if err := m.writeFrame(context.Background(), proto.NewSubscribe(SubscriptionID, proto.TopicMessages)); err != nil {
			m.disconnect(err)
			return
		}
		m.transition(Subscribed, nil)
	case proto.SignalMessage:
		if m.State() != Subscribed || sig.Subscription != SubscriptionID {
			m.log.Debug().Str("state", m.State().String()).Str("subscription", sig.Subscription).Msg("dropping message outside subscription")
			return
		}
		msg := ChatMessage{Sender: sig.Message.Sender, Content: sig.Message.Content}
		if m.sink != nil {
			m.sink.Append(msg)
		}
		m.observers.message(msg)
	case proto.SignalError:
		perr := &ProtocolError{Message: sig.ErrorMessage, Detail: sig.ErrorDetail}
		m.log.Warn().Err(perr).Msg("broker reported error")
		m.observers.protocolError(perr)
	case proto.SignalReceipt:
		m.log.Debug().Str("receipt", sig.ReceiptID).Msg("receipt")
	}
}

func (m *Manager) send(req sendRequest) error {
	if m.State() != Subscribed || m.conn == nil {
		return ErrNotConnected
	}
	if err := m.writeFrame(req.ctx, req.frame); err != nil {
		m.disconnect(err)
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	return nil
}

func (m *Manager) writeFrame(ctx context.Context, f *proto.Frame) error {
	if m.conn == nil {
		return &transport.Error{Op: "send", Transport: "none", Err: transport.ErrClosed}
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
	defer cancel()
	return m.conn.Send(ctx, proto.Encode(f))
}

// disconnect drops the current transport, schedules the next attempt and
// moves to Disconnected. The timer exists before the state becomes visible.
func (m *Manager) disconnect(cause error) {
	m.cancelDial()
	m.stopHandshake()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.epoch++

	m.timer = m.clock.Timer(m.cfg.ReconnectDelay)
	m.log.Warn().Err(cause).Dur("retry_in", m.cfg.ReconnectDelay).Int("attempt", m.attempt).Msg("disconnected")
	m.transition(Disconnected, cause)
}

func (m *Manager) stopHandshake() {
	if m.handshake != nil {
		m.handshake.Stop()
		m.handshake = nil
	}
}

func (m *Manager) cancelDial() {
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
}

// shutdown runs on the loop when Teardown closes quit.
func (m *Manager) shutdown() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.cancelDial()
	m.stopHandshake()
	if m.conn != nil {
		if m.State() == Subscribed || m.State() == Connected {
			ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
			if err := m.conn.Send(ctx, proto.Encode(proto.NewDisconnect(""))); err != nil {
				m.log.Debug().Err(err).Msg("disconnect frame not sent")
			}
			cancel()
		}
		_ = m.conn.Close()
		m.conn = nil
	}
	m.epoch++
	m.state.Store(int32(Idle))
	m.log.Debug().Msg("session torn down")
}

func (m *Manager) transition(to State, cause error) {
	from := State(m.state.Swap(int32(to)))
	if from == to {
		return
	}
	m.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("state change")
	m.observers.stateChange(StateEvent{From: from, To: to, Err: cause})
}
