package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/livechat/internal/app"
)

func newBrokerCommand(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Run the echo broker that re-broadcasts chat messages to every subscriber",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := root.load(os.Stdout)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Broker.Addr = addr
			}
			if err := cfg.Broker.Validate(); err != nil {
				return err
			}

			logger.Info().Str("addr", cfg.Broker.Addr).Msg("starting livechat broker")
			if err := app.NewBroker(cfg.Broker, logger).Run(cmd.Context()); err != nil {
				return err
			}
			logger.Info().Msg("broker stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default :8080)")
	return cmd
}
