package docstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/c360/docstream/config"
	"github.com/c360/docstream/errors"
	"github.com/c360/docstream/metric"
	"github.com/c360/docstream/pkg/retry"
	"github.com/c360/docstream/stream"
	"github.com/c360/docstream/transport"
	"github.com/c360/docstream/values"
)

// txnTimeHeader carries transaction timestamps in both directions: the
// server reports the query's txn time on responses, and the client
// replays its high-water mark on requests so a new connection never reads
// state older than what this client has already seen.
const txnTimeHeader = "X-Txn-Time"

var resourceField = values.At(values.RawField(), values.Key("resource"))

// Client is the driver facade: queries, change-notification streams, and
// the connection-scoped transaction watermark tying them together.
//
// A Client is safe for concurrent use. Each Stream call opens its own
// transport connection; queries share the configured HTTP client.
type Client struct {
	cfg     *config.Config
	secret  string
	http    *http.Client
	logger  *slog.Logger
	metrics *metric.Metrics

	lastTxn atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client used for queries,
// stream dialing, and health probes.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger passed down to every pipeline component.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics wires the client into a metric registry's core collectors.
func WithMetrics(r *metric.Registry) Option {
	return func(c *Client) { c.metrics = r.Core }
}

// NewClient builds a client from a validated config, resolving the
// bearer secret from the configured environment variable.
func NewClient(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "NewClient", "config required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	secret, err := cfg.Secret()
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		secret: secret,
		http:   http.DefaultClient,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LastTxnTime returns the highest transaction timestamp this client has
// observed, from query responses and stream events alike.
func (c *Client) LastTxnTime() int64 {
	return c.lastTxn.Load()
}

// SyncLastTxnTime advances the watermark to txn if txn is newer, used to
// carry a watermark across client instances. It never moves backwards.
func (c *Client) SyncLastTxnTime(txn int64) {
	c.observeTxnTime(txn)
}

// observeTxnTime publishes txn into the watermark monotonically.
func (c *Client) observeTxnTime(txn int64) {
	for {
		cur := c.lastTxn.Load()
		if txn <= cur {
			return
		}
		if c.lastTxn.CompareAndSwap(cur, txn) {
			if c.metrics != nil {
				c.metrics.LastTxnTime.Set(float64(txn))
			}
			return
		}
	}
}

// Query executes a serialized query expression against the database and
// decodes the response's resource into a Value. The expression is opaque
// to the driver; callers serialize it themselves.
func (c *Client) Query(ctx context.Context, expr json.RawMessage) (values.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()

	body, err := retry.DoWithResult(ctx, c.cfg.Retry, func() ([]byte, error) {
		return c.queryOnce(ctx, expr)
	})
	if err != nil {
		if retry.IsNonRetryable(err) {
			return nil, errors.WrapFatal(err, "Client", "Query", "execute query")
		}
		return nil, errors.WrapTransient(err, "Client", "Query", "execute query")
	}

	v, err := values.DecodeBytes(body)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrDecodeFailed, err),
			"Client", "Query", "decode response")
	}
	resource, err := resourceField.Get(v)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrDecodeFailed, err),
			"Client", "Query", "read resource")
	}
	return resource, nil
}

func (c *Client) queryOnce(ctx context.Context, expr json.RawMessage) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(expr))
	if err != nil {
		return nil, retry.NonRetryable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("X-Request-Id", uuid.NewString())
	if txn := c.lastTxn.Load(); txn > 0 {
		req.Header.Set(txnTimeHeader, strconv.FormatInt(txn, 10))
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if ts := resp.Header.Get(txnTimeHeader); ts != "" {
			if txn, err := strconv.ParseInt(ts, 10, 64); err == nil {
				c.observeTxnTime(txn)
			}
		}
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, retry.NonRetryable(
			fmt.Errorf("query endpoint returned %d: %w", resp.StatusCode, errors.ErrPermissionDenied))
	case resp.StatusCode == http.StatusBadRequest:
		return nil, retry.NonRetryable(fmt.Errorf("query endpoint rejected expression: %s", body))
	default:
		return nil, fmt.Errorf("query endpoint returned %d", resp.StatusCode)
	}
}

// StreamOption configures a single Stream call.
type StreamOption func(*streamOptions)

type streamOptions struct {
	loader stream.SnapshotLoader
}

// WithSnapshotLoader replaces the default snapshot loader, which fetches
// the subscribed document through Query.
func WithSnapshotLoader(l stream.SnapshotLoader) StreamOption {
	return func(o *streamOptions) { o.loader = l }
}

// Stream opens a snapshot-consistent change-notification stream for the
// document ref identifies. The returned subscription delivers the start
// event, a synthesized snapshot event, then live events newer than the
// snapshot, one at a time.
//
// When the config sets a probe interval, a supervisor polls the
// endpoint's ping path and terminates the stream if the connection dies
// silently. Closing the subscription tears down the transport and the
// supervisor together.
func (c *Client) Stream(ctx context.Context, ref values.Value, opts ...StreamOption) (*stream.Subscription, error) {
	o := streamOptions{loader: c.defaultLoader()}
	for _, opt := range opts {
		opt(&o)
	}

	body, err := json.Marshal(ref)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Client", "Stream", "serialize target reference")
	}

	source, err := c.openSource(ctx, body)
	if err != nil {
		return nil, err
	}

	chunks := stream.NewChunkStage(source, c.observeTxnTime, c.metrics, c.logger)
	snapshots := stream.NewSnapshotStage(chunks, ref, o.loader, c.metrics, c.logger)

	sub, err := snapshots.Subscribe(ctx)
	if err != nil {
		_ = source.Cancel()
		return nil, err
	}

	if c.cfg.ProbeInterval > 0 {
		probe := transport.NewHTTPProbe(c.http, c.cfg.Endpoint+"/ping", c.secret)
		supervisor := stream.NewSupervisor(c.cfg.ProbeInterval, probe, chunks.Fail, c.metrics, c.logger)

		supCtx, cancel := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(supCtx)
		g.Go(func() error { return supervisor.Run(gctx) })
		go func() {
			<-sub.Done()
			cancel()
			_ = g.Wait()
		}()
	}

	return sub, nil
}

// defaultLoader snapshots the subscribed document with a get query. The
// snapshot carries the document's ts field, which becomes the stream's
// initial watermark.
func (c *Client) defaultLoader() stream.SnapshotLoader {
	return func(ctx context.Context, ref values.Value) (values.Value, error) {
		refJSON, err := json.Marshal(ref)
		if err != nil {
			return nil, err
		}
		expr := fmt.Sprintf(`{"get":%s}`, refJSON)
		return c.Query(ctx, json.RawMessage(expr))
	}
}

func (c *Client) openSource(ctx context.Context, body []byte) (transport.ChunkSource, error) {
	headers := make(http.Header, len(c.cfg.Headers))
	for k, v := range c.cfg.Headers {
		headers.Set(k, v)
	}

	switch c.cfg.Transport {
	case config.TransportWebSocket:
		return transport.OpenWSStream(ctx, transport.WSConfig{
			URL:     c.cfg.StreamURL() + "/stream",
			Secret:  c.secret,
			Headers: headers,
			Retry:   c.cfg.Retry,
			Metrics: c.metrics,
			Logger:  c.logger,
		}, body)
	default:
		return transport.OpenHTTPStream(ctx, transport.HTTPConfig{
			URL:     c.cfg.Endpoint + "/stream",
			Secret:  c.secret,
			Headers: headers,
			Client:  c.http,
			Retry:   c.cfg.Retry,
			Metrics: c.metrics,
			Logger:  c.logger,
		}, body)
	}
}
