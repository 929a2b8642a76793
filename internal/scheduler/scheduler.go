// Package scheduler drives the collection, reconcile and merge jobs on cron
// schedules for the long-running daemon.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

type entry struct {
	name string
	spec string
	fn   func(ctx context.Context)
}

// Scheduler runs registered jobs on cron schedules. A job that is still
// running when its next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	entries []entry
}

// New creates a scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		logger: logger,
	}
}

// Add registers fn under a standard five-field cron spec.
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context)) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, spec, err)
	}
	s.entries = append(s.entries, entry{name: name, spec: spec, fn: fn})
	return nil
}

// Register adds the standard job set. collectSpecs maps a source to its
// schedule; sources without one are not scheduled.
func (s *Scheduler) Register(jobs *Jobs, collectSpecs map[string]string, reconcileSpec, mergeSpec string) error {
	for _, src := range jobs.Sources() {
		spec, ok := collectSpecs[src]
		if !ok || spec == "" {
			continue
		}
		if err := s.Add("collect "+src, spec, func(ctx context.Context) {
			_, _ = jobs.Collect(ctx, src)
		}); err != nil {
			return err
		}
	}
	if reconcileSpec != "" {
		if err := s.Add("reconcile", reconcileSpec, func(ctx context.Context) {
			jobs.Reconcile(ctx)
		}); err != nil {
			return err
		}
	}
	if mergeSpec != "" {
		if err := s.Add("merge suggestions", mergeSpec, func(ctx context.Context) {
			res, err := jobs.MergeSuggestions(ctx)
			if err != nil {
				s.logger.Warn("merge suggestions", "error", err)
				return
			}
			s.logger.Info("merge suggestions finished", "total", res.Total, "merged", res.Merged, "failed", res.Failed)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the scheduler loop. Blocks until ctx is cancelled, then waits
// for running jobs to return.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, e := range s.entries {
		skip := cron.NewChain(cron.SkipIfStillRunning(cronLogger{logger: s.logger}))
		job := skip.Then(cron.FuncJob(func() {
			s.logger.Info("job started", "job", e.name)
			e.fn(ctx)
		}))
		if _, err := s.cron.AddJob(e.spec, job); err != nil {
			return fmt.Errorf("schedule %s: %w", e.name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler running", "jobs", len(s.entries))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
