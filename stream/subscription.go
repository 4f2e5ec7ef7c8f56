package stream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/c360/docstream/values"
)

// Subscription is the consumer handle for a stage. Each stage supports
// exactly one subscription.
//
// Events is unbuffered: the producing stage cannot pull its next upstream
// item until the consumer has received the current one, which is how
// single-item backpressure propagates from the consumer all the way to the
// transport. Errors has capacity one and carries at most one fatal error;
// Done closes on any termination, fatal or not.
type Subscription struct {
	id             string
	events         chan values.Value
	errs           chan error
	done           chan struct{}
	terminate      sync.Once
	cancelUpstream func()
}

func newSubscription(cancelUpstream func()) *Subscription {
	return &Subscription{
		id:             uuid.NewString(),
		events:         make(chan values.Value),
		errs:           make(chan error, 1),
		done:           make(chan struct{}),
		cancelUpstream: cancelUpstream,
	}
}

// ID returns the subscription's unique identifier, used in logs.
func (s *Subscription) ID() string { return s.id }

// Events returns the ordered stream of decoded values.
func (s *Subscription) Events() <-chan values.Value { return s.events }

// Errors delivers at most one fatal pipeline error.
func (s *Subscription) Errors() <-chan error { return s.errs }

// Done closes when the subscription terminates for any reason.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close cancels the subscription and its upstream chain. Idempotent.
func (s *Subscription) Close() { s.finish() }

// fail terminates with a fatal error: exactly one error notification to
// the subscriber, then exactly one upstream cancellation. Subsequent fail
// or finish calls are no-ops.
func (s *Subscription) fail(err error) {
	s.terminate.Do(func() {
		s.errs <- err
		if s.cancelUpstream != nil {
			s.cancelUpstream()
		}
		close(s.done)
	})
}

// finish terminates without an error (consumer close or context
// cancellation). Subsequent fail or finish calls are no-ops.
func (s *Subscription) finish() {
	s.terminate.Do(func() {
		if s.cancelUpstream != nil {
			s.cancelUpstream()
		}
		close(s.done)
	})
}
