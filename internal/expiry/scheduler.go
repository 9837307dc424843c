package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger routes cron's own messages through zap. Cron's chatty run
// messages go to debug.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func newCronLogger(logger *zap.Logger) cron.Logger {
	return cronLogger{sugar: logger.Named("cron").Sugar()}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Scheduler runs a Sweeper once at start and then every interval. A run that
// is still going when the next tick fires makes that tick a no-op.
type Scheduler struct {
	sweeper  *Sweeper
	interval time.Duration
	logger   *zap.Logger
}

func NewScheduler(s *Sweeper, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{sweeper: s, interval: interval, logger: logger}
}

// runTimeout bounds one sweep by the schedule interval, never below 20s.
func (s *Scheduler) runTimeout() time.Duration {
	if s.interval < 20*time.Second {
		return 20 * time.Second
	}
	return s.interval
}

// Run blocks until ctx ends, then waits for an in-flight sweep; that sweep
// sees the cancelled context and stops early.
func (s *Scheduler) Run(ctx context.Context) error {
	s.runOnce(ctx)

	cl := newCronLogger(s.logger)
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.runOnce(ctx)
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule: %w", err)
	}
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout())
	defer cancel()

	start := time.Now()
	res, err := s.sweeper.Run(runCtx)
	if err != nil {
		s.logger.Error("expiry run error", zap.Error(err))
		return
	}
	s.logger.Debug("expiry run complete",
		zap.Int("cancelled", res.CancelledCount),
		zap.Int("notifications_sent", res.NotificationsSent),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(start)),
	)
}
