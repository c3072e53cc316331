package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "LIVECHAT"
	envConfigDefaultPath = "LIVECHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "livechat.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	// Decode into a zero value: mapstructure merges slices element by element,
	// so a shorter list from the file would keep the tail of the default.
	var out Config
	if err := v.Unmarshal(&out); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return out, configPath, nil
}

// setDefaults registers every key so AutomaticEnv can resolve nested keys during Unmarshal.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log_level", cfg.LogLevel)

	v.SetDefault("client.base_url", cfg.Client.BaseURL)
	v.SetDefault("client.username", cfg.Client.Username)
	v.SetDefault("client.reconnect_delay", cfg.Client.ReconnectDelay)
	v.SetDefault("client.dial_timeout", cfg.Client.DialTimeout)
	v.SetDefault("client.write_timeout", cfg.Client.WriteTimeout)
	v.SetDefault("client.transports", cfg.Client.Transports)

	v.SetDefault("broker.addr", cfg.Broker.Addr)
	v.SetDefault("broker.read_header_timeout", cfg.Broker.ReadHeaderTimeout)
	v.SetDefault("broker.shutdown_timeout", cfg.Broker.ShutdownTimeout)
	v.SetDefault("broker.poll_timeout", cfg.Broker.PollTimeout)
	v.SetDefault("broker.poll_session_ttl", cfg.Broker.PollSessionTTL)
	v.SetDefault("broker.allowed_origins", cfg.Broker.AllowedOrigins)
	v.SetDefault("broker.send_rate_limit", cfg.Broker.SendRateLimit)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
