// Package schedule runs a job on a cron expression without overlapping runs.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	entryID cron.EntryID
}

// New builds a Scheduler evaluating expressions in loc. A tick that fires
// while the previous run is still going is skipped.
func New(loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

// Run registers job under spec and blocks until ctx is canceled, then waits
// for running jobs to return, including the immediate one. When runNow is
// set the job also runs once immediately.
func (s *Scheduler) Run(ctx context.Context, spec string, runNow bool, job Job) error {
	id, err := s.cron.AddFunc(spec, func() {
		s.invoke(ctx, job)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	s.entryID = id

	s.cron.Start()
	s.logger.Info("Scheduler started", zap.String("cron", spec), zap.Time("next", s.Next()))
	var immediate sync.WaitGroup
	if runNow {
		// Route through the entry so SkipIfStillRunning also guards it.
		wrapped := s.cron.Entry(id).WrappedJob
		immediate.Add(1)
		go func() {
			defer immediate.Done()
			wrapped.Run()
		}()
	}

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	// cron.Stop only tracks jobs it started itself.
	immediate.Wait()
	s.logger.Info("Scheduler stopped")
	return nil
}

// Next returns the next activation time, or zero before Run.
func (s *Scheduler) Next() time.Time {
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) invoke(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error("Scheduled run failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	s.logger.Info("Scheduled run finished", zap.Duration("duration", time.Since(start)), zap.Time("next", s.Next()))
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
