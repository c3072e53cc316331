package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/livechat/internal/proto"
)

const pollCloseTimeout = 2 * time.Second

// PollingDialer emulates a duplex channel with HTTP long-polling.
type PollingDialer struct {
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// NewPollingDialer builds a dialer; a nil client uses http.DefaultClient.
func NewPollingDialer(httpClient *http.Client, logger *zerolog.Logger) *PollingDialer {
	return &PollingDialer{HTTPClient: httpClient, Logger: logger}
}

// PollURL returns the long-poll endpoint for baseURL, mapping ws(s) to http(s).
func PollURL(baseURL string) (string, error) {
	raw, err := Endpoint(baseURL, "/poll")
	if err != nil {
		return "", err
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Dial opens a long-poll session.
func (d *PollingDialer) Dial(ctx context.Context, baseURL string) (Conn, error) {
	endpoint, err := PollURL(baseURL)
	if err != nil {
		return nil, &Error{Op: "dial", Transport: NamePolling, Err: err}
	}
	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, &Error{Op: "dial", Transport: NamePolling, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Op: "dial", Transport: NamePolling, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Op: "dial", Transport: NamePolling, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	var opened proto.PollSession
	if err := json.NewDecoder(resp.Body).Decode(&opened); err != nil {
		return nil, &Error{Op: "dial", Transport: NamePolling, Err: fmt.Errorf("decode session: %w", err)}
	}
	if opened.Session == "" {
		return nil, &Error{Op: "dial", Transport: NamePolling, Err: fmt.Errorf("empty session id")}
	}

	logger := zerolog.Nop()
	if d.Logger != nil {
		logger = d.Logger.With().Str("transport", NamePolling).Str("session", opened.Session).Logger()
	}
	logger.Debug().Str("url", endpoint).Msg("poll session opened")

	recvCtx, cancel := context.WithCancel(context.Background())
	return &pollConn{
		client:  client,
		session: endpoint + "/" + url.PathEscape(opened.Session),
		log:     &logger,
		ctx:     recvCtx,
		cancel:  cancel,
	}, nil
}

type pollConn struct {
	client  *http.Client
	session string
	log     *zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	closed     atomic.Bool
	closeOnce  sync.Once
	listenOnce sync.Once
}

func (c *pollConn) Transport() string { return NamePolling }

func (c *pollConn) Listen(h Handler) {
	c.listenOnce.Do(func() {
		go c.recvLoop(h)
	})
}

func (c *pollConn) recvLoop(h Handler) {
	h(Event{Kind: EventOpened})
	for {
		batch, gone, err := c.receive()
		if err != nil {
			if c.closed.Load() {
				h(Event{Kind: EventClosed, Reason: "closed by client"})
				return
			}
			c.log.Warn().Err(err).Msg("poll receive failed")
			h(Event{Kind: EventError, Err: &Error{Op: "read", Transport: NamePolling, Err: err}})
			return
		}
		if gone {
			h(Event{Kind: EventClosed, Reason: "session closed by broker"})
			return
		}
		for _, frame := range batch.Frames {
			h(Event{Kind: EventFrame, Data: []byte(frame)})
		}
	}
}

// receive performs one long-poll request. gone reports that the broker no longer knows the session.
func (c *pollConn) receive() (proto.PollBatch, bool, error) {
	var batch proto.PollBatch
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, c.session+"/recv", nil)
	if err != nil {
		return batch, false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return batch, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone:
		return batch, true, nil
	default:
		return batch, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&batch); err != nil {
		return batch, false, fmt.Errorf("decode batch: %w", err)
	}
	return batch, false, nil
}

func (c *pollConn) Send(ctx context.Context, data []byte) error {
	if c.closed.Load() {
		return &Error{Op: "send", Transport: NamePolling, Err: ErrClosed}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.session+"/send", bytes.NewReader(data))
	if err != nil {
		return &Error{Op: "send", Transport: NamePolling, Err: err}
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Op: "send", Transport: NamePolling, Err: err}
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound, http.StatusGone:
		return &Error{Op: "send", Transport: NamePolling, Err: ErrClosed}
	default:
		return &Error{Op: "send", Transport: NamePolling, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

func (c *pollConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), pollCloseTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.session, nil)
		if err != nil {
			return
		}
		resp, err := c.client.Do(req)
		if err != nil {
			c.log.Debug().Err(err).Msg("poll session delete")
			return
		}
		resp.Body.Close()
	})
	return nil
}
