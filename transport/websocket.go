package transport

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/docstream/errors"
	"github.com/c360/docstream/metric"
	"github.com/c360/docstream/pkg/retry"
)

// WSConfig configures a WebSocket stream connection.
type WSConfig struct {
	// URL is the ws:// or wss:// stream endpoint.
	URL string
	// Secret is sent as a bearer token during the handshake.
	Secret string
	// Headers are extra handshake headers.
	Headers http.Header
	// HandshakeTimeout bounds the dial; 45s when zero.
	HandshakeTimeout time.Duration
	// Retry governs dial attempts; retry.DefaultConfig() when zero.
	Retry retry.Config
	// Metrics receives reconnect counts; optional.
	Metrics *metric.Metrics
	// Logger is used for dial diagnostics; optional.
	Logger *slog.Logger
}

// WSSource reads one notification frame per WebSocket message. It is the
// alternative stream carrier for deployments that terminate HTTP/1.1
// between driver and database.
type WSSource struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closed    chan struct{}
}

var _ ChunkSource = (*WSSource)(nil)

// OpenWSStream dials the WebSocket stream endpoint. The subscription
// target is written as the first message after the handshake.
func OpenWSStream(ctx context.Context, cfg WSConfig, body []byte) (*WSSource, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "WSSource", "OpenWSStream", "stream URL required")
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 45 * time.Second
	}

	headers := http.Header{}
	if cfg.Secret != "" {
		headers.Set("Authorization", "Bearer "+cfg.Secret)
	}
	for k, vs := range cfg.Headers {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}

	attempt := 0
	conn, err := retry.DoWithResult(ctx, retryCfg, func() (*websocket.Conn, error) {
		attempt++
		if attempt > 1 {
			if cfg.Metrics != nil {
				cfg.Metrics.Reconnects.Inc()
			}
			logger.Debug("redialing stream endpoint", "component", "WSSource", "attempt", attempt)
		}
		c, resp, dialErr := dialer.DialContext(ctx, cfg.URL, headers)
		if dialErr != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return nil, retry.NonRetryable(errors.ErrPermissionDenied)
			}
			return nil, dialErr
		}
		return c, nil
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "WSSource", "OpenWSStream", "dial stream endpoint")
	}

	if len(body) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			conn.Close()
			return nil, errors.WrapTransient(err, "WSSource", "OpenWSStream", "send subscription target")
		}
	}

	return &WSSource{
		conn:   conn,
		closed: make(chan struct{}),
	}, nil
}

// Next reads one message frame.
func (s *WSSource) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-s.closed:
		return nil, errors.ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		select {
		case <-s.closed:
			return nil, errors.ErrTransportClosed
		default:
		}
		return nil, errors.WrapTransient(err, "WSSource", "Next", "read frame")
	}
	return msg, nil
}

// Cancel sends a best-effort close frame and closes the connection,
// unblocking any in-flight Next. Safe to call more than once.
func (s *WSSource) Cancel() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
	})
	return nil
}
