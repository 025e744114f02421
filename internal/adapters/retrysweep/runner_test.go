package retrysweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
	panic bool
}

func (s *countingSweeper) ProcessRetries(context.Context) (int, error) {
	s.calls.Add(1)
	if s.panic {
		panic("sweep exploded")
	}
	return 1, s.err
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Schedule: "@every 1s"})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Sweeper: &countingSweeper{}, Schedule: "  "})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Sweeper: &countingSweeper{}, Schedule: "not a schedule"})
	require.ErrorContains(t, err, "parse retry sweep schedule")

	for _, spec := range []string{"@every 10s", "*/5 * * * * *", "* * * * *"} {
		_, err = NewRunner(RunnerOptions{Sweeper: &countingSweeper{}, Schedule: spec})
		assert.NoError(t, err, spec)
	}
}

func runUntilCalled(t *testing.T, sweeper *countingSweeper) {
	t.Helper()
	r, err := NewRunner(RunnerOptions{Sweeper: sweeper, Schedule: "@every 100ms", Logger: quiet()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunner_SweepsOnScheduleUntilCancelled(t *testing.T) {
	runUntilCalled(t, &countingSweeper{})
}

func TestRunner_KeepsRunningAfterErrors(t *testing.T) {
	runUntilCalled(t, &countingSweeper{err: errors.New("db down")})
}

func TestRunner_RecoversFromPanics(t *testing.T) {
	runUntilCalled(t, &countingSweeper{panic: true})
}
