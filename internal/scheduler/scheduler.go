// Package scheduler triggers harvest runs on a cron spec. Runs never overlap:
// a tick that fires while the previous run is still going is skipped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/bidharvest/internal/logger"
)

// Job is one scheduled unit of work.
type Job func(ctx context.Context) error

// Scheduler wraps robfig/cron and owns the context jobs run under.
type Scheduler struct {
	cron *cron.Cron
	spec string
	job  Job

	mu      sync.Mutex
	running sync.WaitGroup
	entry   cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// New validates spec (standard five fields or a descriptor such as
// "@every 6h") and returns a stopped Scheduler.
func New(spec string, job Job) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	l := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		spec: spec,
		job:  job,
	}, nil
}

// Start registers the job, starts the cron loop and runs the job once
// immediately. Jobs run under a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	id, err := s.cron.AddFunc(s.spec, s.run)
	if err != nil {
		s.cancel()
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.entry = id
	s.started = true
	s.cron.Start()
	logger.Info("scheduler started", "spec", s.spec, "next", s.cron.Entry(id).Next)

	go s.RunNow()
	return nil
}

// RunNow triggers the job outside the schedule. It is subject to the same
// overlap rule as scheduled ticks.
func (s *Scheduler) RunNow() {
	s.mu.Lock()
	entry := s.cron.Entry(s.entry)
	s.mu.Unlock()
	if entry.WrappedJob == nil {
		return
	}
	entry.WrappedJob.Run()
}

// Next returns the next scheduled tick, or the zero time when stopped.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron.Entry(s.entry).Next
}

func (s *Scheduler) run() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	start := time.Now()
	logger.Info("scheduled run starting")
	if err := s.job(s.ctx); err != nil {
		logger.Error("scheduled run failed", "error", err, "duration", time.Since(start).Round(time.Millisecond))
		return
	}
	logger.Info("scheduled run finished", "duration", time.Since(start).Round(time.Millisecond))
}

// Stop halts the schedule and waits for a running job to return. If ctx ends
// first, the job's context is cancelled and Stop waits for it to unwind.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	idle := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.running.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		logger.Warn("scheduler stop timed out, cancelling running job")
		cancel()
		<-idle
	}
	cancel()
	logger.Info("scheduler stopped")
}

// cronLogger routes cron's own logging through the package logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
