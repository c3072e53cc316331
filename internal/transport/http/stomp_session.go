package http

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/livechat/internal/core"
	"github.com/vovakirdan/livechat/internal/proto"
)

const serverName = "livechat/1.0"

// stompSession is the broker side of one STOMP connection, shared by the
// WebSocket and long-poll carriers. It is not safe for concurrent use: each
// carrier feeds it from a single reader.
type stompSession struct {
	client    *core.Client
	limiter   *rateLimiter
	log       *zerolog.Logger
	connected bool
}

func newSTOMPSession(client *core.Client, limiter *rateLimiter, logger *zerolog.Logger) *stompSession {
	return &stompSession{client: client, limiter: limiter, log: logger}
}

// handle processes one inbound transport message. Commands for the hub are
// queued on the client; replies are returned for the carrier to write. When
// closeAfter is set the carrier writes the replies and ends the connection.
func (s *stompSession) handle(data []byte) (replies []*proto.Frame, closeAfter bool) {
	frames, err := proto.Decode(data)
	for _, f := range frames {
		out, done := s.handleFrame(f)
		replies = append(replies, out...)
		if done {
			return replies, true
		}
	}
	if err != nil {
		s.log.Warn().Err(err).Str("client_id", s.client.ID).Msg("malformed frame")
		return append(replies, proto.NewError("malformed frame", err.Error())), true
	}
	return replies, false
}

func (s *stompSession) handleFrame(f *proto.Frame) ([]*proto.Frame, bool) {
	if !s.connected {
		if f.Command != proto.CommandConnect && f.Command != proto.CommandStomp {
			return fatal("not connected", "expected CONNECT, got "+f.Command)
		}
		if !supportsVersion(f.Header.Get(proto.HeaderAcceptVersion)) {
			return fatal("unsupported protocol version", "supported versions are "+proto.AcceptVersions)
		}
		s.connected = true
		s.log.Debug().Str("client_id", s.client.ID).Str("host", f.Header.Get(proto.HeaderHost)).Msg("stomp connected")
		return []*proto.Frame{proto.NewConnected(serverName)}, false
	}

	cmd, reply, done := frameToCommand(f)
	if done || reply != nil {
		if reply == nil {
			return nil, true
		}
		return []*proto.Frame{reply}, done
	}
	if cmd == nil {
		return nil, false
	}
	if cmd.Kind == core.CommandSend && !s.limiter.allow() {
		s.log.Debug().Str("client_id", s.client.ID).Msg("send rate limited")
		return []*proto.Frame{proto.NewError("rate limit exceeded", "too many messages, slow down")}, false
	}

	// The hub confirms a command carrying a receipt after it was applied.
	select {
	case s.client.Commands <- cmd:
		return nil, false
	case <-s.client.Done():
		return nil, true
	}
}

// supportsVersion reports whether an accept-version header includes a version
// this broker speaks. A missing header means STOMP 1.0.
func supportsVersion(accept string) bool {
	if accept == "" {
		return true
	}
	for _, v := range strings.Split(accept, ",") {
		switch strings.TrimSpace(v) {
		case "1.0", "1.1", "1.2":
			return true
		}
	}
	return false
}

func fatal(message, detail string) ([]*proto.Frame, bool) {
	return []*proto.Frame{proto.NewError(message, detail)}, true
}
