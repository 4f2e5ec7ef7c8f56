package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/c360/docstream/errors"
	"github.com/c360/docstream/metric"
	"github.com/c360/docstream/values"
)

// SnapshotLoader loads a point-in-time snapshot of the subscribed
// document. The returned value must carry a readable "ts" field holding
// the snapshot's transaction timestamp.
type SnapshotLoader func(ctx context.Context, ref values.Value) (values.Value, error)

// SnapshotStage merges a live event feed with a point-in-time document
// snapshot so the consumer sees one consistent sequence.
//
// The first upstream event must be a start event; anything else is a
// protocol-sequence violation. On start, the stage calls the loader —
// blocking, so no upstream pull happens while the snapshot loads —
// establishes the watermark from the snapshot's ts field, forwards the
// start event, and synthesizes a snapshot event. From then on, events at
// or below the watermark are dropped silently: their effects are already
// in the snapshot. Everything newer passes through in arrival order.
type SnapshotStage struct {
	upstream *ChunkStage
	ref      values.Value
	loader   SnapshotLoader
	metrics  *metric.Metrics
	logger   *slog.Logger

	subscribed atomic.Bool
}

// NewSnapshotStage builds a snapshot stage over upstream. ref is the
// subscribed document reference used when the start event does not carry
// its own target. metrics and logger may be nil.
func NewSnapshotStage(upstream *ChunkStage, ref values.Value, loader SnapshotLoader, metrics *metric.Metrics, logger *slog.Logger) *SnapshotStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStage{
		upstream: upstream,
		ref:      ref,
		loader:   loader,
		metrics:  metrics,
		logger:   logger,
	}
}

// Subscribe attaches the stage's single subscriber, subscribes to the
// upstream chunk stage, and starts processing. A second call fails fast
// without disturbing the first subscription.
func (s *SnapshotStage) Subscribe(ctx context.Context) (*Subscription, error) {
	if !s.subscribed.CompareAndSwap(false, true) {
		return nil, errors.WrapInvalid(errors.ErrAlreadySubscribed, "SnapshotStage", "Subscribe", "attach subscriber")
	}

	up, err := s.upstream.Subscribe(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "SnapshotStage", "Subscribe", "subscribe upstream")
	}

	sub := newSubscription(up.Close)
	go s.run(ctx, up, sub)
	return sub, nil
}

func (s *SnapshotStage) run(ctx context.Context, up *Subscription, sub *Subscription) {
	initialized := false
	var watermark int64

	for {
		select {
		case v := <-up.events:
			if initialized {
				if !s.forwardLive(ctx, sub, v, watermark) {
					return
				}
				continue
			}
			wm, ok := s.bootstrap(ctx, sub, v)
			if !ok {
				return
			}
			watermark = wm
			initialized = true

		case err := <-up.errs:
			// Upstream already cancelled the transport; our own fail is
			// idempotent against that.
			s.fatal(sub, err)
			return

		case <-up.done:
			// Upstream terminated; surface its error if one is queued.
			select {
			case err := <-up.errs:
				s.fatal(sub, err)
			default:
				sub.finish()
			}
			return

		case <-sub.done:
			return

		case <-ctx.Done():
			sub.finish()
			return
		}
	}
}

// bootstrap handles the first event: validates it is a start event, loads
// the snapshot, and forwards the two bootstrap events. It returns the
// established watermark, with ok=false when the stage terminated.
func (s *SnapshotStage) bootstrap(ctx context.Context, sub *Subscription, v values.Value) (int64, bool) {
	typ, err := EventType(v)
	if err != nil || typ != TypeStart {
		s.fatal(sub, errors.WrapFatal(
			fmt.Errorf("%w: first event type %q, want %q", errors.ErrProtocolSequence, typ, TypeStart),
			"SnapshotStage", "bootstrap", "validate stream opening"))
		return 0, false
	}

	// Prefer the start event's own target reference when it carries one.
	ref := s.ref
	if ev, err := eventField.Get(v); err == nil {
		if r, ok := ev.(values.RefV); ok {
			ref = r
		}
	}

	// The loader call may suspend; the upstream pull protocol guarantees
	// no further chunks arrive until we receive again.
	started := time.Now()
	snapshot, err := s.loader(ctx, ref)
	if s.metrics != nil {
		s.metrics.SnapshotLoadDuration.Observe(time.Since(started).Seconds())
	}
	if err != nil {
		s.fatal(sub, errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrSnapshotLoad, err),
			"SnapshotStage", "bootstrap", "load document snapshot"))
		return 0, false
	}

	watermark, err := tsField.Get(snapshot)
	if err != nil {
		s.fatal(sub, errors.WrapFatal(
			fmt.Errorf("%w: snapshot has no readable ts: %v", errors.ErrSnapshotLoad, err),
			"SnapshotStage", "bootstrap", "read snapshot timestamp"))
		return 0, false
	}

	s.logger.Debug("stream initialized",
		"component", "SnapshotStage", "subscription", sub.id, "watermark", watermark)

	if !s.forward(ctx, sub, v, TypeStart) {
		return 0, false
	}
	synthesized := values.NewObject(
		values.Entry("type", values.StringV(TypeSnapshot)),
		values.Entry("txn", values.LongV(watermark)),
		values.Entry("event", snapshot),
	)
	if !s.forward(ctx, sub, synthesized, TypeSnapshot) {
		return 0, false
	}
	return watermark, true
}

// forwardLive applies the stale-event filter and forwards what passes.
// Dropped or forwarded, demand for the next upstream item is reissued
// immediately by returning to the select loop.
func (s *SnapshotStage) forwardLive(ctx context.Context, sub *Subscription, v values.Value, watermark int64) bool {
	if txn, ok := EventTxn(v); ok && txn <= watermark {
		// Predates or ties the snapshot; its state is already
		// incorporated.
		if s.metrics != nil {
			s.metrics.EventsDropped.WithLabelValues("snapshot").Inc()
		}
		return true
	}
	typ, _ := EventType(v)
	return s.forward(ctx, sub, v, typ)
}

func (s *SnapshotStage) forward(ctx context.Context, sub *Subscription, v values.Value, typ string) bool {
	if s.metrics != nil {
		s.metrics.EventsForwarded.WithLabelValues("snapshot", typ).Inc()
	}
	select {
	case sub.events <- v:
		return true
	case <-sub.done:
		return false
	case <-ctx.Done():
		sub.finish()
		return false
	}
}

func (s *SnapshotStage) fatal(sub *Subscription, err error) {
	if s.metrics != nil {
		s.metrics.ErrorsTotal.WithLabelValues("snapshot", errors.Classify(err).String()).Inc()
	}
	s.logger.Error("stream terminated",
		"component", "SnapshotStage", "subscription", sub.id, "error", err)
	sub.fail(err)
}
