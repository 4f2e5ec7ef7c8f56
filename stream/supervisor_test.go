package stream

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/docstream/errors"
	"github.com/c360/docstream/health"
)

func TestSupervisor_HealthyProbeKeepsRunning(t *testing.T) {
	probe := func(ctx context.Context) (health.Status, error) {
		return health.Healthy("transport"), nil
	}
	var failures atomic.Int64
	sup := NewSupervisor(5*time.Millisecond, probe, func(error) { failures.Add(1) }, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sup.Run(ctx)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), failures.Load())
}

func TestSupervisor_UnhealthyProbeFailsExactlyOnce(t *testing.T) {
	var calls atomic.Int64
	probe := func(ctx context.Context) (health.Status, error) {
		if calls.Add(1) < 3 {
			return health.Healthy("transport"), nil
		}
		return health.Unhealthy("transport", "ping returned 503"), nil
	}

	var failures []error
	sup := NewSupervisor(time.Millisecond, probe, func(err error) { failures = append(failures, err) }, nil, nil)

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after unhealthy probe")
	}

	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], errors.ErrConnectionLost)
	assert.True(t, errors.IsFatal(failures[0]))
	assert.Equal(t, int64(3), calls.Load())
}

func TestSupervisor_ProbeErrorFails(t *testing.T) {
	probe := func(ctx context.Context) (health.Status, error) {
		return health.Status{}, fmt.Errorf("connection refused")
	}

	var failure error
	sup := NewSupervisor(time.Millisecond, probe, func(err error) { failure = err }, nil, nil)

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after probe error")
	}

	require.Error(t, failure)
	assert.ErrorIs(t, failure, errors.ErrConnectionLost)
	assert.Contains(t, failure.Error(), "connection refused")
}

func TestSupervisor_ContextCancellationStopsSilently(t *testing.T) {
	probe := func(ctx context.Context) (health.Status, error) {
		return health.Healthy("transport"), nil
	}
	failed := false
	sup := NewSupervisor(time.Hour, probe, func(error) { failed = true }, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sup.Run(ctx)
	assert.NoError(t, err)
	assert.False(t, failed)
}
