package schedule

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs background jobs on standard five-field cron specs. A job
// instance never overlaps itself; a tick that fires while the previous run
// is still going is skipped.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
}

func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		cron: cron.New(cron.WithParser(parser)),
	}
}

func (s *Scheduler) AddJob(job Job, spec string) error {
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", job.Name()), zap.String("spec", spec))
	if _, err := s.cron.AddFunc(spec, s.wrap(job, spec)); err != nil {
		logger.Error("schedule job failed", zap.Error(err))
		return err
	}
	logger.Info("job scheduled")
	return nil
}

func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = ctx
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			logutil.GetLogger(context.Background()).With(
				zap.String("job", job.Name()),
				zap.String("spec", spec),
			).Info("job skipped: still running")
			return
		}
		defer running.Store(false)

		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		logger := logutil.GetLogger(ctx).With(
			zap.String("job", job.Name()),
			zap.String("spec", spec),
		)
		start := time.Now()
		logger.Info("job started")
		err := job.Run(ctx)
		elapsed := time.Since(start)
		if err != nil {
			logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
			return
		}
		logger.Info("job finished", zap.Duration("duration", elapsed))
	}
}
