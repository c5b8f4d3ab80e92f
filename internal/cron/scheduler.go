package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs registered jobs on their schedules. A job whose previous
// run is still in progress skips the tick.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[string]Job
	order   []string
	locks   map[string]*sync.Mutex
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewScheduler creates a scheduler. Jobs must be registered before Start.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   make(map[string]Job),
		locks:  make(map[string]*sync.Mutex),
		logger: logger.With("component", "cron"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterJob adds a job. It fails on a duplicate name, an invalid
// schedule or a started scheduler.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if s.started {
		return fmt.Errorf("cron: cannot register %q after start", name)
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	if err := ParseSchedule(j.Schedule()); err != nil {
		return fmt.Errorf("cron: job %q: %w", name, err)
	}

	s.jobs[name] = j
	s.order = append(s.order, name)
	s.locks[name] = &sync.Mutex{}
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Start begins executing registered jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	s.cron = cron.New(cron.WithParser(parser))
	for _, name := range s.order {
		if _, err := s.cron.AddFunc(s.jobs[name].Schedule(), func() { s.run(name) }); err != nil {
			return fmt.Errorf("cron: scheduling %q: %w", name, err)
		}
	}

	s.cron.Start()
	s.started = true
	s.logger.Info("cron: scheduler started", "jobs", len(s.order))
	return nil
}

// Trigger runs the named job immediately, subject to the same overlap
// rule as scheduled runs. It reports whether the job ran.
func (s *Scheduler) Trigger(name string) (bool, error) {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("cron: unknown job %q", name)
	}
	return s.run(name), nil
}

func (s *Scheduler) run(name string) bool {
	s.mu.Lock()
	job, lock := s.jobs[name], s.locks[name]
	s.mu.Unlock()

	if !lock.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", name)
		return false
	}
	defer lock.Unlock()

	s.logger.Debug("cron: job started", "job", name)
	if err := job.Run(s.ctx); err != nil {
		s.logger.Error("cron: job failed", "job", name, "error", err)
	} else {
		s.logger.Debug("cron: job completed", "job", name)
	}
	return true
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	s.cancel()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: stopping scheduler: %w", ctx.Err())
	}
}
