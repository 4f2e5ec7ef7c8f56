package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/c360/docstream/errors"
	"github.com/c360/docstream/metric"
	"github.com/c360/docstream/transport"
	"github.com/c360/docstream/values"
)

// WatermarkSink receives every txn timestamp observed on the wire. It is
// fire-and-forget: the stage calls it opportunistically and never lets it
// influence control flow.
type WatermarkSink func(txn int64)

// ChunkStage consumes raw transport chunks and produces decoded values.
//
// Per chunk: decode to a Value (failure is fatal), publish any txn field to
// the watermark sink, then classify by type. Error-typed events carrying
// the permission-denied code are fatal; every other event, including other
// error events, is forwarded downstream unchanged. The stage pulls exactly
// one chunk at a time and does not pull the next until the subscriber has
// received the current event.
type ChunkStage struct {
	source  transport.ChunkSource
	sink    WatermarkSink
	metrics *metric.Metrics
	logger  *slog.Logger

	subscribed atomic.Bool
	mu         sync.Mutex
	sub        *Subscription
	injected   error // Fail called before Subscribe
}

// NewChunkStage builds a chunk stage over source. sink, metrics, and
// logger may be nil.
func NewChunkStage(source transport.ChunkSource, sink WatermarkSink, metrics *metric.Metrics, logger *slog.Logger) *ChunkStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkStage{
		source:  source,
		sink:    sink,
		metrics: metrics,
		logger:  logger,
	}
}

// Subscribe attaches the stage's single subscriber and starts the pull
// loop. A second call fails fast without disturbing the first
// subscription.
func (c *ChunkStage) Subscribe(ctx context.Context) (*Subscription, error) {
	if !c.subscribed.CompareAndSwap(false, true) {
		return nil, errors.WrapInvalid(errors.ErrAlreadySubscribed, "ChunkStage", "Subscribe", "attach subscriber")
	}

	sub := newSubscription(func() { _ = c.source.Cancel() })

	c.mu.Lock()
	c.sub = sub
	injected := c.injected
	c.mu.Unlock()

	if injected != nil {
		c.fatal(sub, injected)
		return sub, nil
	}

	go c.run(ctx, sub)
	return sub, nil
}

// Fail injects a fatal error into the pipeline, used by the reconnection
// supervisor when a health probe reports the upstream connection dead.
// Idempotent against the stage's own termination.
func (c *ChunkStage) Fail(err error) {
	c.mu.Lock()
	sub := c.sub
	if sub == nil {
		c.injected = err
	}
	c.mu.Unlock()

	if sub != nil {
		c.fatal(sub, err)
	}
}

func (c *ChunkStage) run(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-sub.done:
			return
		case <-ctx.Done():
			sub.finish()
			return
		default:
		}

		chunk, err := c.source.Next(ctx)
		if err != nil {
			// A read error after termination is the echo of our own
			// cancellation, not a new failure.
			select {
			case <-sub.done:
				return
			default:
			}
			if ctx.Err() != nil {
				sub.finish()
				return
			}
			c.fatal(sub, errors.WrapFatal(err, "ChunkStage", "run", "read chunk"))
			return
		}

		if c.metrics != nil {
			c.metrics.ChunksReceived.WithLabelValues("chunk").Inc()
		}

		v, err := values.DecodeBytes(chunk)
		if err != nil {
			c.fatal(sub, errors.WrapInvalid(
				fmt.Errorf("%w: %v", errors.ErrDecodeFailed, err),
				"ChunkStage", "run", "decode chunk"))
			return
		}

		if txn, ok := EventTxn(v); ok && c.sink != nil {
			c.sink(txn)
		}

		typ, err := EventType(v)
		if err != nil {
			c.fatal(sub, errors.WrapInvalid(
				fmt.Errorf("%w: %v", errors.ErrDecodeFailed, err),
				"ChunkStage", "run", "classify event"))
			return
		}

		if typ == TypeError {
			info := errorInfo(v)
			if info.Code == PermissionDeniedCode {
				c.fatal(sub, errors.WrapFatal(
					fmt.Errorf("%w: %s: %s", errors.ErrPermissionDenied, info.Code, info.Description),
					"ChunkStage", "run", "authorize stream"))
				return
			}
			// Recoverable domain error: surfaced to the consumer as a
			// normal event, the stream continues.
			c.logger.Debug("forwarding domain error event",
				"component", "ChunkStage", "subscription", sub.id, "code", info.Code)
		}

		if c.metrics != nil {
			c.metrics.EventsForwarded.WithLabelValues("chunk", typ).Inc()
		}

		select {
		case sub.events <- v:
		case <-sub.done:
			return
		case <-ctx.Done():
			sub.finish()
			return
		}
	}
}

// fatal reports err to the subscriber exactly once and cancels upstream
// exactly once, in that order.
func (c *ChunkStage) fatal(sub *Subscription, err error) {
	if c.metrics != nil {
		c.metrics.ErrorsTotal.WithLabelValues("chunk", errors.Classify(err).String()).Inc()
	}
	c.logger.Error("stream terminated",
		"component", "ChunkStage", "subscription", sub.id, "error", err)
	sub.fail(err)
}
