package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docstream/errors"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `{"endpoint": "https://db.example.com"}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://db.example.com", cfg.Endpoint)
	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, DefaultQueryTimeout, cfg.QueryTimeout)
	assert.Equal(t, DefaultSecretEnv, cfg.SecretEnv)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfigFile(t, `{
		"endpoint": "https://db.example.com",
		"secret_env": "DB_SECRET",
		"transport": "websocket",
		"probe_interval": 10000000000,
		"headers": {"X-Driver": "docstream"},
		"retry": {"max_attempts": 7}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, TransportWebSocket, cfg.Transport)
	assert.Equal(t, "DB_SECRET", cfg.SecretEnv)
	assert.Equal(t, 10*time.Second, cfg.ProbeInterval)
	assert.Equal(t, "docstream", cfg.Headers["X-Driver"])
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
}

func TestLoad_Failures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		assert.ErrorIs(t, err, errors.ErrMissingConfig)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := Load(writeConfigFile(t, `{not json`))
		assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "valid http",
			cfg:     Config{Endpoint: "https://db.example.com", Transport: TransportHTTP},
			wantErr: nil,
		},
		{
			name:    "valid websocket",
			cfg:     Config{Endpoint: "https://db.example.com", Transport: TransportWebSocket},
			wantErr: nil,
		},
		{
			name:    "missing endpoint",
			cfg:     Config{Transport: TransportHTTP},
			wantErr: errors.ErrMissingConfig,
		},
		{
			name:    "relative endpoint",
			cfg:     Config{Endpoint: "db.example.com", Transport: TransportHTTP},
			wantErr: errors.ErrInvalidConfig,
		},
		{
			name:    "unknown transport",
			cfg:     Config{Endpoint: "https://db.example.com", Transport: "carrier-pigeon"},
			wantErr: errors.ErrInvalidConfig,
		},
		{
			name:    "negative probe interval",
			cfg:     Config{Endpoint: "https://db.example.com", Transport: TransportHTTP, ProbeInterval: -time.Second},
			wantErr: errors.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSecret(t *testing.T) {
	cfg := Config{SecretEnv: "DOCSTREAM_TEST_SECRET"}

	t.Run("unset env fails", func(t *testing.T) {
		t.Setenv("DOCSTREAM_TEST_SECRET", "")
		_, err := cfg.Secret()
		assert.ErrorIs(t, err, errors.ErrMissingConfig)
	})

	t.Run("set env resolves trimmed", func(t *testing.T) {
		t.Setenv("DOCSTREAM_TEST_SECRET", "  fnACGabc123  ")
		secret, err := cfg.Secret()
		require.NoError(t, err)
		assert.Equal(t, "fnACGabc123", secret)
	})
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		name      string
		endpoint  string
		transport string
		want      string
	}{
		{"http passthrough", "https://db.example.com", TransportHTTP, "https://db.example.com"},
		{"https to wss", "https://db.example.com", TransportWebSocket, "wss://db.example.com"},
		{"http to ws", "http://localhost:8443", TransportWebSocket, "ws://localhost:8443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Endpoint: tt.endpoint, Transport: tt.transport}
			assert.Equal(t, tt.want, cfg.StreamURL())
		})
	}
}
