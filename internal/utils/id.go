package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random identifier suitable for client, session and message ids.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewPrefixedID returns NewID prefixed with prefix and a dash, e.g. "msg-3f2a...".
func NewPrefixedID(prefix string) string {
	if prefix == "" {
		return NewID()
	}
	return prefix + "-" + NewID()
}
