package http

import (
	"context"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/livechat/internal/core"
	"github.com/vovakirdan/livechat/internal/proto"
	"github.com/vovakirdan/livechat/internal/utils"
)

const (
	pollOpenRoute  = "/chat/poll"
	pollSendRoute  = "/chat/poll/:session/send"
	pollRecvRoute  = "/chat/poll/:session/recv"
	pollCloseRoute = "/chat/poll/:session"

	pollMaxBody = 1 << 20
)

// pollSession is one long-poll emulated connection.
type pollSession struct {
	id     string
	client *core.Client
	stomp  *stompSession

	mu       sync.Mutex
	queue    []string
	closing  bool
	lastSeen time.Time
	notify   chan struct{}

	// serializes sends so frames reach the STOMP session in order
	sendMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

func (p *pollSession) push(frames ...*proto.Frame) {
	p.mu.Lock()
	for _, f := range frames {
		p.queue = append(p.queue, string(proto.Encode(f)))
	}
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// drain takes queued frames. gone reports that the session ended and nothing is left to deliver.
func (p *pollSession) drain() (frames []string, gone bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeen = time.Now()
	frames, p.queue = p.queue, nil
	return frames, len(frames) == 0 && p.closing
}

func (p *pollSession) touch() {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

func (p *pollSession) idle(now time.Time, ttl time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Sub(p.lastSeen) > ttl
}

// finish marks the session as ending: queued frames stay receivable, then receives report it gone.
func (p *pollSession) finish() {
	p.mu.Lock()
	p.closing = true
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// PollHandler serves the long-poll emulation of a duplex STOMP connection.
type PollHandler struct {
	hub           *core.Hub
	pollTimeout   time.Duration
	sessionTTL    time.Duration
	sendRateLimit int
	log           *zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*pollSession

	stop     chan struct{}
	stopOnce sync.Once
}

// NewPollHandler builds the handler and starts the idle-session reaper; Close stops it.
func NewPollHandler(hub *core.Hub, pollTimeout, sessionTTL time.Duration, sendRateLimit int, logger *zerolog.Logger) *PollHandler {
	h := &PollHandler{
		hub:           hub,
		pollTimeout:   pollTimeout,
		sessionTTL:    sessionTTL,
		sendRateLimit: sendRateLimit,
		log:           logger,
		sessions:      make(map[string]*pollSession),
		stop:          make(chan struct{}),
	}
	go h.reap()
	return h
}

// Register attaches the long-poll routes.
func (h *PollHandler) Register(r gin.IRoutes) {
	r.POST(pollOpenRoute, h.Open)
	r.POST(pollSendRoute, h.Send)
	r.GET(pollRecvRoute, h.Recv)
	r.DELETE(pollCloseRoute, h.Delete)
}

// Open creates a session.
// POST /chat/poll
func (h *PollHandler) Open(c *gin.Context) {
	client := core.NewClient(utils.NewID(), 0)
	logger := h.log.With().Str("client_id", client.ID).Str("transport", "polling").Logger()
	limiter := newRateLimiter(h.sendRateLimit)

	p := &pollSession{
		id:       utils.NewID(),
		client:   client,
		stomp:    newSTOMPSession(client, limiter, &logger),
		lastSeen: time.Now(),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	h.hub.RegisterClient(client)
	limiter.startReset(p.done)
	go h.forward(p)

	h.mu.Lock()
	h.sessions[p.id] = p
	h.mu.Unlock()

	logger.Debug().Str("session", p.id).Msg("poll session opened")
	c.JSON(stdhttp.StatusOK, proto.PollSession{Session: p.id})
}

// Send feeds the request body to the session as one transport message.
// POST /chat/poll/:session/send
func (h *PollHandler) Send(c *gin.Context) {
	p, ok := h.lookup(c.Param("session"))
	if !ok {
		c.JSON(stdhttp.StatusNotFound, ErrorResponse{Error: "unknown session"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, pollMaxBody))
	if err != nil {
		c.JSON(stdhttp.StatusBadRequest, ErrorResponse{Error: "read body"})
		return
	}
	p.touch()

	p.sendMu.Lock()
	replies, closeAfter := p.stomp.handle(body)
	p.sendMu.Unlock()

	if len(replies) > 0 {
		p.push(replies...)
	}
	if closeAfter {
		h.end(p)
	}
	c.Status(stdhttp.StatusNoContent)
}

// Recv waits up to the poll timeout for frames.
// GET /chat/poll/:session/recv
func (h *PollHandler) Recv(c *gin.Context) {
	p, ok := h.lookup(c.Param("session"))
	if !ok {
		c.JSON(stdhttp.StatusNotFound, ErrorResponse{Error: "unknown session"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.pollTimeout)
	defer cancel()

	for {
		frames, gone := p.drain()
		if gone {
			h.remove(p)
			c.JSON(stdhttp.StatusGone, ErrorResponse{Error: "session closed"})
			return
		}
		if len(frames) > 0 {
			c.JSON(stdhttp.StatusOK, proto.PollBatch{Frames: frames})
			return
		}
		select {
		case <-p.notify:
		case <-ctx.Done():
			c.JSON(stdhttp.StatusOK, proto.PollBatch{Frames: []string{}})
			return
		}
	}
}

// Delete closes a session.
// DELETE /chat/poll/:session
func (h *PollHandler) Delete(c *gin.Context) {
	p, ok := h.lookup(c.Param("session"))
	if !ok {
		c.JSON(stdhttp.StatusNotFound, ErrorResponse{Error: "unknown session"})
		return
	}
	h.remove(p)
	c.Status(stdhttp.StatusNoContent)
}

// Close ends every session and stops the reaper.
func (h *PollHandler) Close() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.mu.Lock()
		sessions := make([]*pollSession, 0, len(h.sessions))
		for _, p := range h.sessions {
			sessions = append(sessions, p)
		}
		h.mu.Unlock()
		for _, p := range sessions {
			h.remove(p)
		}
	})
}

func (h *PollHandler) lookup(id string) (*pollSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.sessions[id]
	return p, ok
}

// forward moves hub events into the session queue.
func (h *PollHandler) forward(p *pollSession) {
	for {
		select {
		case ev, ok := <-p.client.Events:
			if !ok {
				p.finish()
				return
			}
			if f := eventToFrame(ev); f != nil {
				p.push(f)
			}
		case <-p.done:
			return
		}
	}
}

// end detaches the session from the hub but keeps queued replies receivable.
func (h *PollHandler) end(p *pollSession) {
	p.closeOnce.Do(func() {
		close(p.done)
		h.hub.UnregisterClient(p.client)
	})
	p.finish()
}

func (h *PollHandler) remove(p *pollSession) {
	h.end(p)
	h.mu.Lock()
	delete(h.sessions, p.id)
	h.mu.Unlock()
}

func (h *PollHandler) reap() {
	interval := h.sessionTTL / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			h.mu.Lock()
			var idle []*pollSession
			for _, p := range h.sessions {
				if p.idle(now, h.sessionTTL) {
					idle = append(idle, p)
				}
			}
			h.mu.Unlock()
			for _, p := range idle {
				h.log.Debug().Str("session", p.id).Msg("reaping idle poll session")
				h.remove(p)
			}
		case <-h.stop:
			return
		}
	}
}
