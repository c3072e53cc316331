package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/livechat/internal/session"
)

// Chat is the part of session.Client the view drives.
type Chat interface {
	Messages() []session.ChatMessage
	Subscribe(obs session.Observer) func()
	Publish(ctx context.Context, draft session.Draft) error
}

const (
	cmdQuit    = "/quit"
	cmdHistory = "/history"
	cmdName    = "/name"
	cmdRetry   = "/retry"
)

var (
	ownStyle    = color.New(color.FgGreen, color.OpBold)
	statusStyle = color.New(color.FgYellow)
	errorStyle  = color.New(color.FgRed)
)

// Option configures a View.
type Option func(*View)

// WithColors toggles ANSI highlighting.
func WithColors(enabled bool) Option {
	return func(v *View) { v.colors = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(v *View) {
		if logger != nil {
			v.log = logger
		}
	}
}

// View is a line-oriented terminal front end: it prints arriving messages and
// connection status, and turns input lines into publishes or commands.
type View struct {
	chat   Chat
	colors bool
	log    *zerolog.Logger

	mu    sync.Mutex // guards out and draft
	out   io.Writer
	draft session.Draft
}

// New builds a view writing to out. username seeds the draft.
func New(chat Chat, out io.Writer, username string, opts ...Option) *View {
	nop := zerolog.Nop()
	v := &View{
		chat:   chat,
		out:    out,
		colors: true,
		log:    &nop,
		draft:  session.Draft{Username: username},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Attach starts rendering session notifications and returns the detach func.
func (v *View) Attach() func() {
	return v.chat.Subscribe(session.ObserverFuncs{
		StateChange:   v.onState,
		Message:       v.onMessage,
		ProtocolError: v.onProtocolError,
	})
}

// Draft returns the current draft.
func (v *View) Draft() session.Draft {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.draft
}

// Run reads lines from in until EOF, /quit or ctx cancellation.
func (v *View) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	v.printf("%s\n", v.style(statusStyle, "type a message and press Enter; /name <user>, /history, /retry, /quit"))
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if v.Handle(ctx, line) {
				return nil
			}
		}
	}
}

// Handle processes one input line and reports whether the view should quit.
func (v *View) Handle(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return false
	case trimmed == cmdQuit:
		return true
	case trimmed == cmdHistory:
		v.printHistory()
		return false
	case trimmed == cmdRetry:
		v.submit(ctx, v.Draft().Message)
		return false
	case trimmed == cmdName || strings.HasPrefix(trimmed, cmdName+" "):
		v.rename(strings.TrimSpace(strings.TrimPrefix(trimmed, cmdName)))
		return false
	}
	v.submit(ctx, line)
	return false
}

func (v *View) rename(name string) {
	if name == "" {
		v.notice(errorStyle, "usage: /name <user>")
		return
	}
	v.mu.Lock()
	v.draft.Username = name
	v.mu.Unlock()
	v.notice(statusStyle, "you are now "+name)
}

func (v *View) submit(ctx context.Context, text string) {
	v.mu.Lock()
	v.draft.Message = text
	draft := v.draft
	v.mu.Unlock()

	err := v.chat.Publish(ctx, draft)
	switch {
	case err == nil:
		v.mu.Lock()
		if v.draft.Message == text {
			v.draft.Message = ""
		}
		v.mu.Unlock()
	case errors.Is(err, session.ErrNotConnected):
		v.notice(errorStyle, "not connected, message kept; /retry to send it again")
	case errors.Is(err, session.ErrInvalidDraft):
		v.notice(errorStyle, err.Error())
	default:
		v.log.Warn().Err(err).Msg("publish failed")
		v.notice(errorStyle, "publish failed: "+err.Error())
	}
}

func (v *View) printHistory() {
	self := v.Draft().Username
	lines := lo.Map(v.chat.Messages(), func(msg session.ChatMessage, _ int) string {
		return v.format(msg, self)
	})
	if len(lines) == 0 {
		v.notice(statusStyle, "no messages yet")
		return
	}
	v.printf("%s\n", strings.Join(lines, "\n"))
}

func (v *View) onMessage(msg session.ChatMessage) {
	v.printf("%s\n", v.format(msg, v.Draft().Username))
}

func (v *View) onState(ev session.StateEvent) {
	switch {
	case ev.To == session.Subscribed:
		v.notice(statusStyle, "connected")
	case ev.To == session.Connecting && ev.From == session.Idle:
		v.notice(statusStyle, "connecting...")
	case ev.From == session.Subscribed && ev.To != session.Idle:
		v.notice(statusStyle, "connecting...")
	}
}

func (v *View) onProtocolError(err *session.ProtocolError) {
	v.notice(errorStyle, err.Error())
}

// format renders a message as "sender: content", highlighting the user's own messages.
func (v *View) format(msg session.ChatMessage, self string) string {
	line := fmt.Sprintf("%s: %s", msg.Sender, msg.Content)
	if msg.Sender == self {
		return v.style(ownStyle, line)
	}
	return line
}

func (v *View) notice(style color.Style, text string) {
	v.printf("%s\n", v.style(style, "* "+text))
}

func (v *View) style(style color.Style, text string) string {
	if !v.colors {
		return text
	}
	return style.Render(text)
}

func (v *View) printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, err := fmt.Fprintf(v.out, format, args...); err != nil {
		v.log.Debug().Err(err).Msg("console write failed")
	}
}
