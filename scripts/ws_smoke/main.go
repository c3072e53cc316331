package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/livechat/internal/proto"
	transport "github.com/vovakirdan/livechat/internal/transport/client"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("url", "http://localhost:8080", "broker base URL")
	user := flag.String("user", "tester", "sender name")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	addr, err := transport.WebSocketURL(*base)
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, addr, &websocket.DialOptions{Subprotocols: transport.Subprotocols})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(f *proto.Frame) error {
		if err := conn.Write(ctx, websocket.MessageText, proto.Encode(f)); err != nil {
			return fmt.Errorf("send %s: %w", f.Command, err)
		}
		return nil
	}

	if err := send(proto.NewConnect(transport.Host(*base))); err != nil {
		return err
	}
	if err := send(proto.NewSubscribe("sub-0", proto.TopicMessages)); err != nil {
		return err
	}
	msg, err := proto.NewSend(proto.DestinationSendMessage, proto.ChatMessage{Sender: *user, Content: *text})
	if err != nil {
		return fmt.Errorf("build send: %w", err)
	}
	if err := send(msg); err != nil {
		return err
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		frames, err := proto.Decode(data)
		if err != nil {
			return fmt.Errorf("decode %q: %w", data, err)
		}
		for _, f := range frames {
			fmt.Printf("Received %s\n", f.Command)
			switch f.Command {
			case proto.CommandError:
				fmt.Printf("Error: %s\n", f.Header.Get(proto.HeaderMessage))
			case proto.CommandMessage:
				chat, err := proto.ParseChatMessage(f.Body)
				if err != nil {
					return fmt.Errorf("parse message: %w", err)
				}
				fmt.Printf("Message: destination=%s sender=%s content=%q\n",
					f.Header.Get(proto.HeaderDestination), chat.Sender, chat.Content)
				return send(proto.NewDisconnect(""))
			}
		}
	}
}
