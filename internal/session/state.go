package session

// State is the lifecycle state of a session.
type State int32

const (
	// Idle means not opened yet, or torn down.
	Idle State = iota
	// Connecting means a transport is being opened or the CONNECT handshake is pending.
	Connecting
	// Connected means the broker answered CONNECTED; SUBSCRIBE has not been sent yet.
	Connected
	// Subscribed means the topic subscription was sent; publishing is allowed.
	Subscribed
	// Disconnected means the transport was lost and a reconnect is scheduled.
	Disconnected
	// Reconnecting is never entered by Manager: a retry is reported as
	// Disconnected followed by Connecting. Views may use it to label a
	// pending retry of their own.
	Reconnecting
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Subscribed:
		return "subscribed"
	case Disconnected:
		return "disconnected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// StateEvent represents a state change.
type StateEvent struct {
	From State
	To   State
	Err  error // cause of a transition into Disconnected
}
