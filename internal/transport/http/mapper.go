package http

import (
	"strings"

	"github.com/vovakirdan/livechat/internal/core"
	"github.com/vovakirdan/livechat/internal/proto"
)

// frameToCommand maps a frame from a connected client to a hub command.
// A non-nil reply is written back to the client; done ends the connection.
func frameToCommand(f *proto.Frame) (cmd *core.Command, reply *proto.Frame, done bool) {
	receipt := f.Header.Get(proto.HeaderReceipt)

	switch f.Command {
	case proto.CommandSubscribe:
		id, okID := f.Header.Lookup(proto.HeaderID)
		dest, okDest := f.Header.Lookup(proto.HeaderDestination)
		if !okID || !okDest || id == "" || dest == "" {
			return nil, proto.NewError("malformed frame", "SUBSCRIBE requires id and destination"), true
		}
		return &core.Command{
			Kind:           core.CommandSubscribe,
			SubscriptionID: id,
			Destination:    dest,
			Receipt:        receipt,
		}, nil, false
	case proto.CommandUnsubscribe:
		id := f.Header.Get(proto.HeaderID)
		if id == "" {
			return nil, proto.NewError("malformed frame", "UNSUBSCRIBE requires id"), true
		}
		return &core.Command{
			Kind:           core.CommandUnsubscribe,
			SubscriptionID: id,
			Receipt:        receipt,
		}, nil, false
	case proto.CommandSend:
		dest := f.Header.Get(proto.HeaderDestination)
		if dest == "" {
			return nil, proto.NewError("malformed frame", "SEND requires destination"), true
		}
		return &core.Command{
			Kind:        core.CommandSend,
			Destination: dest,
			ContentType: f.Header.Get(proto.HeaderContentType),
			Body:        f.Body,
			Receipt:     receipt,
		}, nil, false
	case proto.CommandDisconnect:
		if receipt != "" {
			return nil, proto.NewReceipt(receipt), true
		}
		return nil, nil, true
	case proto.CommandConnect, proto.CommandStomp:
		return nil, proto.NewError("already connected", "CONNECT sent twice"), true
	case proto.CommandAck, proto.CommandNack, proto.CommandBegin, proto.CommandCommit, proto.CommandAbort:
		return nil, proto.NewError("unsupported frame", f.Command+" is not supported"), false
	default:
		return nil, proto.NewError("unexpected frame", f.Command+" is sent by brokers only"), true
	}
}

// eventToFrame renders a hub event for the client.
func eventToFrame(ev *core.Event) *proto.Frame {
	switch ev.Kind {
	case core.EventMessage:
		msg := ev.Message
		return proto.NewMessage(msg.Destination, msg.Subscription, msg.ID, msg.ContentType, msg.Body)
	case core.EventError:
		if ev.Error == nil {
			return proto.NewError("error", "")
		}
		return proto.NewError(strings.ReplaceAll(ev.Error.Code, "_", " "), ev.Error.Message)
	case core.EventReceipt:
		return proto.NewReceipt(ev.Receipt)
	default:
		return nil
	}
}
