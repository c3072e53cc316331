package session

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ChatMessage is one received chat message.
type ChatMessage struct {
	Sender  string
	Content string
}

// Draft is the view's in-progress input.
type Draft struct {
	Username string
	Message  string
}

type draftRules struct {
	Username string `validate:"required"`
	Message  string `validate:"required"`
}

var validate = validator.New()

// Validate reports ErrInvalidDraft when the username is empty or the message is blank.
func (d Draft) Validate() error {
	err := validate.Struct(draftRules{Username: d.Username, Message: strings.TrimSpace(d.Message)})
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fmt.Errorf("%w: %s is required", ErrInvalidDraft, strings.ToLower(verrs[0].Field()))
	}
	return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
}

// Sink receives decoded chat messages from the manager.
type Sink interface {
	Append(msg ChatMessage)
}

// MessageLog is an append-only, arrival-ordered log of received messages.
type MessageLog struct {
	mu       sync.RWMutex
	messages []ChatMessage
}

// NewMessageLog returns an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

// Append adds msg at the end.
func (l *MessageLog) Append(msg ChatMessage) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
}

// Snapshot returns a copy of the log in arrival order.
func (l *MessageLog) Snapshot() []ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.messages)
}

// Len returns the number of messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// Reset empties the log.
func (l *MessageLog) Reset() {
	l.mu.Lock()
	l.messages = nil
	l.mu.Unlock()
}
