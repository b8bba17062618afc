package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/config"
)

func TestSchedulerFiresOnInterval(t *testing.T) {
	ticks := make(chan time.Time, 8)
	s, err := New(config.SchedulerConfig{}, TickFunc(func(_ context.Context, now time.Time) {
		ticks <- now
	}), zap.NewNop())
	require.NoError(t, err)
	s.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)
	defer s.Stop()

	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("no tick within deadline")
	}
	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("no second tick within deadline")
	}
}

func TestSchedulerStopTerminatesLoop(t *testing.T) {
	s, err := New(config.SchedulerConfig{IntervalMinutes: 60}, TickFunc(func(context.Context, time.Time) {}), zap.NewNop())
	require.NoError(t, err)

	go s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestSchedulerRejectsInvalidCron(t *testing.T) {
	_, err := New(config.SchedulerConfig{CronExpr: "not a cron"}, TickFunc(func(context.Context, time.Time) {}), zap.NewNop())
	require.Error(t, err)
}

func TestSchedulerCronDelay(t *testing.T) {
	s, err := New(config.SchedulerConfig{CronExpr: "0 * * * *"}, TickFunc(func(context.Context, time.Time) {}), zap.NewNop())
	require.NoError(t, err)

	s.now = func() time.Time { return time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC) }
	require.Equal(t, 30*time.Minute, s.nextDelay())
}
