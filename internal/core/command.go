package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSubscribe attaches a subscription id to a topic.
	CommandSubscribe CommandKind = iota
	// CommandUnsubscribe removes a subscription by id.
	CommandUnsubscribe
	// CommandSend publishes a body to a destination.
	CommandSend
)

func (k CommandKind) String() string {
	switch k {
	case CommandSubscribe:
		return "subscribe"
	case CommandUnsubscribe:
		return "unsubscribe"
	case CommandSend:
		return "send"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind           CommandKind
	SubscriptionID string
	Destination    string
	ContentType    string
	Body           []byte
	// Receipt, when set, is echoed back as EventReceipt once the command was applied.
	Receipt string
}
