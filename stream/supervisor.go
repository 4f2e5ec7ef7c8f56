package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/docstream/errors"
	"github.com/c360/docstream/health"
	"github.com/c360/docstream/metric"
)

// Probe checks the transport connection and reports its status. A probe
// error means the check itself could not run, which the supervisor treats
// the same as an unhealthy report.
type Probe func(ctx context.Context) (health.Status, error)

// Supervisor polls a health probe on a fixed interval and injects a fatal
// transport error into the pipeline when the upstream connection is dead.
// It detects the stalls the stream itself cannot observe: a connection
// that stops delivering chunks without ever failing a read.
type Supervisor struct {
	interval time.Duration
	probe    Probe
	fail     func(error)
	metrics  *metric.Metrics
	logger   *slog.Logger
}

// NewSupervisor builds a supervisor that calls fail once when probe
// reports the connection unhealthy. metrics and logger may be nil.
func NewSupervisor(interval time.Duration, probe Probe, fail func(error), metrics *metric.Metrics, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		interval: interval,
		probe:    probe,
		fail:     fail,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run polls until the context is cancelled or the probe reports a dead
// connection. On a dead connection it injects exactly one failure and
// returns nil; the pipeline owns error propagation from there.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			status, err := s.probe(ctx)
			if err == nil && status.IsHealthy() {
				continue
			}

			if s.metrics != nil {
				s.metrics.ProbeFailures.Inc()
			}
			if err == nil {
				err = fmt.Errorf("probe reported %s: %s", status.Status, status.Message)
			}
			s.logger.Warn("health probe failed, terminating stream",
				"component", "Supervisor", "error", err)
			s.fail(errors.WrapFatal(
				fmt.Errorf("%w: %v", errors.ErrConnectionLost, err),
				"Supervisor", "Run", "probe transport"))
			return nil
		}
	}
}
