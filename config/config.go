package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/c360/docstream/errors"
	"github.com/c360/docstream/pkg/retry"
)

// Transport mode constants
const (
	TransportHTTP      = "http"      // NDJSON over a long-lived HTTP response
	TransportWebSocket = "websocket" // One JSON frame per WebSocket message
)

// Defaults applied by ApplyDefaults for fields left zero.
const (
	DefaultQueryTimeout  = 60 * time.Second
	DefaultProbeInterval = 30 * time.Second
	DefaultSecretEnv     = "DOCSTREAM_SECRET"
)

// Config holds everything a client needs to reach a document database:
// where it lives, how to authenticate, which transport carries the event
// stream, and how aggressively to retry connections.
type Config struct {
	Endpoint      string            `json:"endpoint"`                 // Base URL, e.g. "https://db.example.com"
	SecretEnv     string            `json:"secret_env,omitempty"`     // Env var holding the bearer secret
	Transport     string            `json:"transport,omitempty"`      // "http" or "websocket"
	QueryTimeout  time.Duration     `json:"query_timeout,omitempty"`  // Per-query deadline
	ProbeInterval time.Duration     `json:"probe_interval,omitempty"` // Health probe cadence; 0 disables the supervisor
	Headers       map[string]string `json:"headers,omitempty"`        // Extra headers sent on every request
	Retry         retry.Config      `json:"retry,omitempty"`          // Connection retry policy
}

// Load reads and validates a JSON config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: read %s: %v", errors.ErrMissingConfig, path, err),
			"Config", "Load", "read file")
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: parse %s: %v", errors.ErrInvalidConfig, path, err),
			"Config", "Load", "parse JSON")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Transport == "" {
		c.Transport = TransportHTTP
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.SecretEnv == "" {
		c.SecretEnv = DefaultSecretEnv
	}
	c.Retry = c.Retry.WithDefaults()
}

// Validate checks structural requirements. It does not touch the network
// or the environment, so a config can be validated before the secret is
// provisioned.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: endpoint is required", errors.ErrMissingConfig),
			"Config", "Validate", "check endpoint")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: endpoint %q is not an absolute URL", errors.ErrInvalidConfig, c.Endpoint),
			"Config", "Validate", "parse endpoint")
	}
	switch c.Transport {
	case TransportHTTP, TransportWebSocket:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown transport %q", errors.ErrInvalidConfig, c.Transport),
			"Config", "Validate", "check transport")
	}
	if c.ProbeInterval < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: probe interval must not be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "check probe interval")
	}
	return nil
}

// Secret resolves the bearer secret from the configured environment
// variable. The secret never lives in the config file itself.
func (c *Config) Secret() (string, error) {
	secret := strings.TrimSpace(os.Getenv(c.SecretEnv))
	if secret == "" {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: environment variable %s is not set", errors.ErrMissingConfig, c.SecretEnv),
			"Config", "Secret", "read environment")
	}
	return secret, nil
}

// StreamURL returns the endpoint rewritten for the configured transport:
// unchanged for HTTP, scheme-swapped to ws/wss for WebSocket.
func (c *Config) StreamURL() string {
	if c.Transport != TransportWebSocket {
		return c.Endpoint
	}
	if strings.HasPrefix(c.Endpoint, "https://") {
		return "wss://" + strings.TrimPrefix(c.Endpoint, "https://")
	}
	if strings.HasPrefix(c.Endpoint, "http://") {
		return "ws://" + strings.TrimPrefix(c.Endpoint, "http://")
	}
	return c.Endpoint
}
