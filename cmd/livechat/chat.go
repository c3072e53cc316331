package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/livechat/internal/config"
	"github.com/vovakirdan/livechat/internal/console"
	"github.com/vovakirdan/livechat/internal/session"
	transport "github.com/vovakirdan/livechat/internal/transport/client"
)

type chatFlags struct {
	url            string
	user           string
	reconnectDelay time.Duration
	transports     []string
	noColor        bool
}

func newChatCommand(root *rootOptions) *cobra.Command {
	flags := &chatFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join the chat: print incoming messages and publish typed lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Logs go to stderr so they do not interleave with the conversation.
			cfg, logger, err := root.load(os.Stderr)
			if err != nil {
				return err
			}
			cfg.Client.UpdateFrom(config.ClientConfig{
				BaseURL:        flags.url,
				Username:       flags.user,
				ReconnectDelay: flags.reconnectDelay,
				Transports:     flags.transports,
			})
			if err := cfg.Client.Validate(); err != nil {
				return err
			}

			dialer, err := transport.NewNegotiatorFromNames(cfg.Client.Transports, nil, logger)
			if err != nil {
				return err
			}
			client := session.NewClient(session.Config{
				BaseURL:        cfg.Client.BaseURL,
				ReconnectDelay: cfg.Client.ReconnectDelay,
				DialTimeout:    cfg.Client.DialTimeout,
				WriteTimeout:   cfg.Client.WriteTimeout,
			}, dialer, session.WithLogger(logger))
			defer client.Close()

			view := console.New(client, cmd.OutOrStdout(), cfg.Client.Username,
				console.WithColors(!flags.noColor), console.WithLogger(logger))
			detach := view.Attach()
			defer detach()

			if err := client.Open(); err != nil {
				return err
			}
			return view.Run(cmd.Context(), cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&flags.url, "url", "", "broker base URL, e.g. http://localhost:8080")
	cmd.Flags().StringVar(&flags.user, "user", "", "username shown as the sender")
	cmd.Flags().DurationVar(&flags.reconnectDelay, "reconnect-delay", 0, "pause between a disconnect and the next attempt (default 5s)")
	cmd.Flags().StringSliceVar(&flags.transports, "transports", nil, "transports in preference order: websocket, polling")
	cmd.Flags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")
	return cmd
}
