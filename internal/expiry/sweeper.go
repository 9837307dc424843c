package expiry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/events"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/metrics"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/notify"
)

const DefaultBatchSize = 200

// Result summarizes one sweep run.
type Result struct {
	CancelledCount    int
	NotificationsSent int
	Failed            int
}

type Sweeper struct {
	repo       appointment.Repository
	catalog    notify.CatalogReader
	dispatcher *notify.Dispatcher
	journal    *events.Journal
	metrics    *metrics.Metrics
	logger     *zap.Logger
	batchSize  int
	loc        *time.Location
	now        func() time.Time
}

type Options struct {
	BatchSize int
	Location  *time.Location
}

func NewSweeper(
	repo appointment.Repository,
	catalog notify.CatalogReader,
	dispatcher *notify.Dispatcher,
	journal *events.Journal,
	m *metrics.Metrics,
	logger *zap.Logger,
	opts Options,
) *Sweeper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		repo:       repo,
		catalog:    catalog,
		dispatcher: dispatcher,
		journal:    journal,
		metrics:    m,
		logger:     logger,
		batchSize:  opts.BatchSize,
		loc:        opts.Location,
		now:        time.Now,
	}
}

// WithClock replaces time.Now, for tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run cancels every hold that expired before now, one guarded update per row.
// Rows another writer resolved first are skipped. A failing row is logged and
// the rest of the batch still runs; only the initial query fails the run.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	now := s.now()

	var res Result
	candidates, err := s.repo.FindExpiredHolds(ctx, now, s.batchSize)
	if err != nil {
		return res, fmt.Errorf("find expired holds: %w", err)
	}

	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		a := &candidates[i]

		cancelled, err := s.repo.CancelHold(ctx, a.ID)
		if err != nil {
			if errors.Is(err, appointment.ErrRaceLost) || errors.Is(err, appointment.ErrAppointmentNotFound) {
				s.logger.Debug("expired hold already resolved", zap.Stringer("appointment_id", a.ID))
				continue
			}
			res.Failed++
			s.logger.Warn("failed to cancel expired hold", zap.Stringer("appointment_id", a.ID), zap.Error(err))
			continue
		}
		res.CancelledCount++

		s.metrics.Transition(string(appointment.StatusCancelled), "sweep")
		s.journal.Record(ctx, cancelled, events.HoldExpired, map[string]any{"reason": "sweep"})

		info := notify.Describe(ctx, s.catalog, cancelled, s.loc)
		if s.dispatcher.Deliver(ctx, notify.KindHoldExpired, cancelled.CustomerPhone, notify.HoldExpiredMessage(info)) {
			res.NotificationsSent++
		}
	}

	s.metrics.SweepRun(res.CancelledCount, time.Since(started))
	if res.CancelledCount > 0 || res.Failed > 0 {
		s.logger.Info("expiry sweep finished",
			zap.Int("candidates", len(candidates)),
			zap.Int("cancelled", res.CancelledCount),
			zap.Int("notifications_sent", res.NotificationsSent),
			zap.Int("failed", res.Failed))
	}
	return res, nil
}
