package proto

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// ProtocolVersion is the STOMP version negotiated by client and broker.
	ProtocolVersion = "1.2"

	// AcceptVersions lists the versions offered in CONNECT.
	AcceptVersions = "1.2,1.1,1.0"

	// TopicMessages is the broadcast topic every chat client subscribes to.
	TopicMessages = "/topic/messages"

	// DestinationSendMessage is where clients publish chat messages.
	DestinationSendMessage = "/app/sendMessage"

	// ApplicationPrefix marks destinations handled by the broker itself.
	ApplicationPrefix = "/app/"

	// TopicPrefix marks broadcast destinations.
	TopicPrefix = "/topic/"

	// ContentTypeJSON is the content type of chat bodies.
	ContentTypeJSON = "application/json"

	// NoHeartBeat disables heart-beating in both directions.
	NoHeartBeat = "0,0"
)

// ChatMessage is the JSON body of SEND and MESSAGE frames.
type ChatMessage struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// ParseChatMessage decodes a JSON body. An empty sender is malformed.
func ParseChatMessage(body []byte) (ChatMessage, error) {
	var msg ChatMessage
	if len(body) == 0 {
		return msg, malformed("empty body")
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("%w: body: %v", ErrMalformedFrame, err)
	}
	if msg.Sender == "" {
		return msg, malformed("sender is required")
	}
	return msg, nil
}

// NewConnect builds the CONNECT frame a client sends after the transport opens.
func NewConnect(host string) *Frame {
	return NewFrame(CommandConnect,
		HeaderAcceptVersion, AcceptVersions,
		HeaderHost, host,
		HeaderHeartBeat, NoHeartBeat,
	)
}

// NewSubscribe builds a SUBSCRIBE frame.
func NewSubscribe(id, destination string) *Frame {
	return NewFrame(CommandSubscribe,
		HeaderID, id,
		HeaderDestination, destination,
	)
}

// NewUnsubscribe builds an UNSUBSCRIBE frame.
func NewUnsubscribe(id string) *Frame {
	return NewFrame(CommandUnsubscribe, HeaderID, id)
}

// NewSend builds a SEND frame whose body is payload encoded as JSON.
func NewSend(destination string, payload any) (*Frame, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	f := NewFrame(CommandSend,
		HeaderDestination, destination,
		HeaderContentType, ContentTypeJSON,
	)
	f.Body = body
	return f, nil
}

// NewDisconnect builds a DISCONNECT frame, optionally asking for a receipt.
func NewDisconnect(receipt string) *Frame {
	if receipt == "" {
		return NewFrame(CommandDisconnect)
	}
	return NewFrame(CommandDisconnect, HeaderReceipt, receipt)
}

// NewConnected builds the broker's answer to CONNECT.
func NewConnected(server string) *Frame {
	return NewFrame(CommandConnected,
		HeaderVersion, ProtocolVersion,
		HeaderHeartBeat, NoHeartBeat,
		HeaderServer, server,
	)
}

// NewMessage builds a MESSAGE frame delivered to one subscription.
func NewMessage(destination, subscription, messageID, contentType string, body []byte) *Frame {
	f := NewFrame(CommandMessage,
		HeaderDestination, destination,
		HeaderSubscription, subscription,
		HeaderMessageID, messageID,
	)
	if contentType != "" {
		f.Header.Add(HeaderContentType, contentType)
	}
	f.Body = body
	return f
}

// NewError builds an ERROR frame with a short message header and an optional detail body.
func NewError(message, detail string) *Frame {
	f := NewFrame(CommandError, HeaderMessage, message)
	if detail != "" {
		f.Header.Add(HeaderContentType, "text/plain")
		f.Body = []byte(detail)
	}
	return f
}

// NewReceipt builds a RECEIPT frame.
func NewReceipt(receiptID string) *Frame {
	return NewFrame(CommandReceipt, HeaderReceiptID, receiptID)
}

// SignalKind classifies a frame received by a client.
type SignalKind int

const (
	// SignalConnected means the broker accepted the CONNECT.
	SignalConnected SignalKind = iota
	// SignalMessage carries a chat message for a subscription.
	SignalMessage
	// SignalError is an advisory broker error.
	SignalError
	// SignalReceipt acknowledges a frame that asked for a receipt.
	SignalReceipt
)

func (k SignalKind) String() string {
	switch k {
	case SignalConnected:
		return "connected"
	case SignalMessage:
		return "message"
	case SignalError:
		return "error"
	case SignalReceipt:
		return "receipt"
	default:
		return "unknown"
	}
}

// Signal is the client-side meaning of a decoded frame.
type Signal struct {
	Kind         SignalKind
	Destination  string
	Subscription string
	MessageID    string
	Message      ChatMessage
	ErrorMessage string
	ErrorDetail  string
	ReceiptID    string
}

// Interpret maps a frame received by a client to a Signal.
func Interpret(f *Frame) (Signal, error) {
	switch f.Command {
	case CommandConnected:
		return Signal{Kind: SignalConnected}, nil
	case CommandMessage:
		dest, ok := f.Header.Lookup(HeaderDestination)
		if !ok {
			return Signal{}, malformed("MESSAGE without %s", HeaderDestination)
		}
		sub, ok := f.Header.Lookup(HeaderSubscription)
		if !ok {
			return Signal{}, malformed("MESSAGE without %s", HeaderSubscription)
		}
		msg, err := ParseChatMessage(f.Body)
		if err != nil {
			return Signal{}, err
		}
		return Signal{
			Kind:         SignalMessage,
			Destination:  dest,
			Subscription: sub,
			MessageID:    f.Header.Get(HeaderMessageID),
			Message:      msg,
		}, nil
	case CommandError:
		detail := strings.TrimSpace(string(f.Body))
		message := f.Header.Get(HeaderMessage)
		if message == "" {
			message = detail
		}
		return Signal{Kind: SignalError, ErrorMessage: message, ErrorDetail: detail}, nil
	case CommandReceipt:
		return Signal{Kind: SignalReceipt, ReceiptID: f.Header.Get(HeaderReceiptID)}, nil
	default:
		return Signal{}, malformed("unexpected %s frame from broker", f.Command)
	}
}
