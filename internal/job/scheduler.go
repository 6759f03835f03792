// Package job runs periodic background jobs on cron schedules.
package job

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on standard 5-field cron specs or @every descriptors.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger
	ctx    context.Context
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser)),
		logger: logger,
		ctx:    context.Background(),
	}
}

// Add schedules job on spec.
func (s *Scheduler) Add(spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, s.wrap(job, spec)); err != nil {
		return fmt.Errorf("schedule %s on %q: %w", job.Name(), spec, err)
	}
	s.logger.Info("Job scheduled", zap.String("job", job.Name()), zap.String("spec", spec))
	return nil
}

// Start begins running jobs. ctx is passed to every run.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// wrap skips a run while the previous one is still in progress.
func (s *Scheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	log := s.logger.With(zap.String("job", job.Name()), zap.String("spec", spec))

	return func() {
		if !running.CompareAndSwap(false, true) {
			log.Info("Job skipped: still running")
			return
		}
		defer running.Store(false)

		start := time.Now()
		if err := job.Run(s.ctx); err != nil {
			log.Error("Job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
			return
		}
		log.Debug("Job finished", zap.Duration("duration", time.Since(start)))
	}
}
