package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/c360/docstream/errors"
	"github.com/c360/docstream/metric"
	"github.com/c360/docstream/pkg/retry"
)

// HTTPConfig configures an HTTP stream connection.
type HTTPConfig struct {
	// URL is the stream endpoint.
	URL string
	// Secret is sent as a bearer token.
	Secret string
	// Headers are extra headers added to the request.
	Headers http.Header
	// Client is the HTTP client to use; http.DefaultClient when nil.
	Client *http.Client
	// Retry governs dial attempts; retry.DefaultConfig() when zero.
	Retry retry.Config
	// Metrics receives reconnect counts; optional.
	Metrics *metric.Metrics
	// Logger is used for dial diagnostics; optional.
	Logger *slog.Logger
}

// HTTPSource reads line-delimited JSON frames from a chunked HTTP response
// body. Each Next call consumes exactly one frame; keepalive blank lines
// are skipped transparently.
type HTTPSource struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    chan struct{}
}

var _ ChunkSource = (*HTTPSource)(nil)

// OpenHTTPStream dials the stream endpoint and returns a source over its
// response body. The request body carries the serialized subscription
// target. Dialing retries transient failures per cfg.Retry; authorization
// rejections are not retried.
func OpenHTTPStream(ctx context.Context, cfg HTTPConfig, body []byte) (*HTTPSource, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "HTTPSource", "OpenHTTPStream", "stream URL required")
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	streamCtx, cancel := context.WithCancel(ctx)

	attempt := 0
	resp, err := retry.DoWithResult(ctx, retryCfg, func() (*http.Response, error) {
		attempt++
		if attempt > 1 {
			if cfg.Metrics != nil {
				cfg.Metrics.Reconnects.Inc()
			}
			logger.Debug("redialing stream endpoint", "component", "HTTPSource", "attempt", attempt)
		}
		return dialOnce(streamCtx, client, cfg, body)
	})
	if err != nil {
		cancel()
		return nil, errors.WrapTransient(err, "HTTPSource", "OpenHTTPStream", "dial stream endpoint")
	}

	return &HTTPSource{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
		cancel: cancel,
		closed: make(chan struct{}),
	}, nil
}

func dialOnce(ctx context.Context, client *http.Client, cfg HTTPConfig, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, retry.NonRetryable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")
	if cfg.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Secret)
	}
	for k, vs := range cfg.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return resp, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, retry.NonRetryable(fmt.Errorf("stream endpoint returned %d: %w", resp.StatusCode, errors.ErrPermissionDenied))
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("stream endpoint returned %d", resp.StatusCode)
	}
}

// Next reads one frame. It returns ErrTransportClosed after Cancel and a
// connection error when the stream breaks mid-read.
func (s *HTTPSource) Next(ctx context.Context) ([]byte, error) {
	for {
		select {
		case <-s.closed:
			return nil, errors.ErrTransportClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			// A partial final frame without a trailing newline is
			// still a frame.
			if err == io.EOF && len(bytes.TrimSpace(line)) > 0 {
				return bytes.TrimSpace(line), nil
			}
			select {
			case <-s.closed:
				return nil, errors.ErrTransportClosed
			default:
			}
			return nil, errors.WrapTransient(err, "HTTPSource", "Next", "read frame")
		}

		frame := bytes.TrimSpace(line)
		if len(frame) == 0 {
			continue // keepalive
		}
		return frame, nil
	}
}

// Cancel closes the underlying response body, unblocking any in-flight
// Next. Safe to call more than once.
func (s *HTTPSource) Cancel() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
		_ = s.body.Close()
	})
	return nil
}
