// Package scheduler drives the periodic re-evaluation of active cases.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/config"
)

// TickHandler receives the scheduler's clock on every tick.
type TickHandler interface {
	HandleTick(ctx context.Context, now time.Time)
}

// TickFunc adapts a function to the TickHandler interface.
type TickFunc func(ctx context.Context, now time.Time)

func (f TickFunc) HandleTick(ctx context.Context, now time.Time) { f(ctx, now) }

// Scheduler fires the handler on a fixed interval, or on a cron expression
// when one is configured. Cron takes precedence over the interval.
type Scheduler struct {
	handler  TickHandler
	logger   *zap.Logger
	interval time.Duration
	schedule cron.Schedule
	now      func() time.Time
	stop     chan struct{}
	done     chan struct{}
}

// New builds a scheduler from the application config. An invalid cron
// expression is an error; an empty one means interval mode.
func New(cfg config.SchedulerConfig, handler TickHandler, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		handler:  handler,
		logger:   logger,
		interval: cfg.Interval(),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if cfg.CronExpr != "" {
		schedule, err := cron.ParseStandard(cfg.CronExpr)
		if err != nil {
			return nil, err
		}
		s.schedule = schedule
	}
	return s, nil
}

// Start runs the tick loop until Stop is called or the context is
// cancelled. It blocks; callers run it in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.done)
	s.logger.Info("scheduler started",
		zap.Duration("interval", s.interval),
		zap.Bool("cron", s.schedule != nil))

	for {
		timer := time.NewTimer(s.nextDelay())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			now := s.now()
			s.handler.HandleTick(ctx, now)
		}
	}
}

// Stop signals the loop to exit and waits for it to drain.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) nextDelay() time.Duration {
	if s.schedule != nil {
		now := s.now()
		delay := s.schedule.Next(now).Sub(now)
		if delay <= 0 {
			delay = time.Second
		}
		return delay
	}
	return s.interval
}
