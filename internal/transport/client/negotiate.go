package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// Negotiator tries dialers in order and returns the first connection that opens.
// Callers see a plain Dialer and never learn which transport won.
type Negotiator struct {
	dialers []Dialer
	log     *zerolog.Logger
}

// NewNegotiator builds a negotiator over dialers, tried in the given order.
func NewNegotiator(logger *zerolog.Logger, dialers ...Dialer) *Negotiator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Negotiator{dialers: dialers, log: logger}
}

// NewNegotiatorFromNames builds the dialers named in order ("websocket", "polling").
func NewNegotiatorFromNames(names []string, httpClient *http.Client, logger *zerolog.Logger) (*Negotiator, error) {
	dialers := make([]Dialer, 0, len(names))
	for _, name := range names {
		switch name {
		case NameWebSocket:
			dialers = append(dialers, NewWebSocketDialer(httpClient, logger))
		case NamePolling:
			dialers = append(dialers, NewPollingDialer(httpClient, logger))
		default:
			return nil, fmt.Errorf("unknown transport %q", name)
		}
	}
	if len(dialers) == 0 {
		return nil, errors.New("no transports configured")
	}
	return NewNegotiator(logger, dialers...), nil
}

// Dial implements Dialer.
func (n *Negotiator) Dial(ctx context.Context, baseURL string) (Conn, error) {
	if len(n.dialers) == 0 {
		return nil, &Error{Op: "dial", Transport: "negotiate", Err: errors.New("no transports configured")}
	}

	errs := make([]error, 0, len(n.dialers))
	for _, d := range n.dialers {
		conn, err := d.Dial(ctx, baseURL)
		if err == nil {
			n.log.Info().Str("transport", conn.Transport()).Str("url", baseURL).Msg("transport negotiated")
			return conn, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		n.log.Debug().Err(err).Msg("transport unavailable, trying next")
	}
	return nil, errors.Join(errs...)
}
