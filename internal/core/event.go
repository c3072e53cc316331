package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventMessage delivers a message to one subscription of the client.
	EventMessage EventKind = iota
	// EventError notifies the client about a rejected command.
	EventError
	// EventReceipt confirms a command that asked for a receipt.
	EventReceipt
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Message Message
	Error   *CoreError
	Receipt string
}
