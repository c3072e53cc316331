package main

import (
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/livechat/internal/config"
	"github.com/vovakirdan/livechat/internal/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "livechat",
		Short:         "Real-time chat client and echo broker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ./livechat.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(newChatCommand(opts), newBrokerCommand(opts))
	return root
}

// load resolves configuration and builds the logger writing to w.
func (o *rootOptions) load(w io.Writer) (config.Config, *zerolog.Logger, error) {
	bootstrap := log.NewWithWriter(w, "info")
	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return cfg, bootstrap, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	logger := log.NewWithWriter(w, cfg.LogLevel)
	logger.Debug().Str("path", path).Msg("config loaded")
	return cfg, logger, nil
}
