package core

// Error codes for domain errors.
const (
	ErrCodeBadRequest            = "bad_request"
	ErrCodeUnknownDestination    = "unknown_destination"
	ErrCodeInvalidMessage        = "invalid_message"
	ErrCodeAlreadySubscribed     = "already_subscribed"
	ErrCodeDuplicateSubscription = "duplicate_subscription"
	ErrCodeNotSubscribed         = "not_subscribed"
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
