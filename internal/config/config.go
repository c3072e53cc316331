package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Transport names accepted in ClientConfig.Transports.
const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

// Config holds client and broker configuration values.
type Config struct {
	LogLevel string       `mapstructure:"log_level" yaml:"log_level"`
	Client   ClientConfig `mapstructure:"client" yaml:"client"`
	Broker   BrokerConfig `mapstructure:"broker" yaml:"broker"`
}

// ClientConfig configures the chat client session.
type ClientConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	Username       string        `mapstructure:"username" yaml:"username"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay" validate:"gt=0"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gt=0"`
	Transports     []string      `mapstructure:"transports" yaml:"transports" validate:"min=1,dive,oneof=websocket polling"`
}

// BrokerConfig configures the echo broker.
type BrokerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout" validate:"gt=0"`
	PollSessionTTL    time.Duration `mapstructure:"poll_session_ttl" yaml:"poll_session_ttl" validate:"gtfield=PollTimeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	SendRateLimit     int           `mapstructure:"send_rate_limit" yaml:"send_rate_limit" validate:"gte=0"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Client: ClientConfig{
			ReconnectDelay: 5 * time.Second,
			DialTimeout:    10 * time.Second,
			WriteTimeout:   5 * time.Second,
			Transports:     []string{TransportWebSocket, TransportPolling},
		},
		Broker: BrokerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			PollTimeout:       25 * time.Second,
			PollSessionTTL:    60 * time.Second,
		},
	}
}

// UpdateFrom overwrites non-zero client values from other config into receiver.
func (c *ClientConfig) UpdateFrom(other ClientConfig) {
	if other.BaseURL != "" {
		c.BaseURL = other.BaseURL
	}
	if other.Username != "" {
		c.Username = other.Username
	}
	if other.ReconnectDelay != 0 {
		c.ReconnectDelay = other.ReconnectDelay
	}
	if other.DialTimeout != 0 {
		c.DialTimeout = other.DialTimeout
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if len(other.Transports) > 0 {
		c.Transports = other.Transports
	}
}

// UpdateFrom overwrites non-zero broker values from other config into receiver.
func (c *BrokerConfig) UpdateFrom(other BrokerConfig) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.PollTimeout != 0 {
		c.PollTimeout = other.PollTimeout
	}
	if other.PollSessionTTL != 0 {
		c.PollSessionTTL = other.PollSessionTTL
	}
	if len(other.AllowedOrigins) > 0 {
		c.AllowedOrigins = other.AllowedOrigins
	}
	if other.SendRateLimit != 0 {
		c.SendRateLimit = other.SendRateLimit
	}
}

var validate = validator.New()

// Validate checks the client section.
func (c ClientConfig) Validate() error {
	return describe("client", validate.Struct(c))
}

// Validate checks the broker section.
func (c BrokerConfig) Validate() error {
	return describe("broker", validate.Struct(c))
}

func describe(section string, err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%s config: %w", section, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%s config: %s", section, strings.Join(parts, "; "))
}
