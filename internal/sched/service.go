package sched

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"fleetcron/internal/ledger"
	"fleetcron/internal/schedule"
	"fleetcron/internal/timer"
	"fleetcron/pkg/logx"
)

// Scheduler owns the job registry and the running/paused/stopped lifecycle.
// Multiple independent instances per process are fine; they only interact
// through the ledger, like separate processes would.
type Scheduler struct {
	log     logx.Logger
	builder *schedule.Builder
	ledger  ledger.Ledger // nil disables persistence for every job

	mu      sync.Mutex
	running bool
	entries map[string]*entry
}

// New constructs a stopped scheduler. led may be nil, in which case all jobs
// behave as transient.
func New(cfg Config, led ledger.Ledger, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		log:     log.With(logx.Tag("sched")),
		builder: schedule.NewBuilder(cfg.TimeMode),
		ledger:  led,
		entries: map[string]*entry{},
	}
}

// Add validates and registers a job. Registering a name twice is a no-op.
// If the scheduler is running, the job's timer starts immediately.
func (s *Scheduler) Add(def JobDefinition) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidDefinition)
	}
	if def.Schedule == nil {
		return fmt.Errorf("%w: schedule required for %q", ErrInvalidDefinition, def.Name)
	}
	if def.Run == nil {
		return fmt.Errorf("%w: job function required for %q", ErrInvalidDefinition, def.Name)
	}

	src, err := def.Schedule(s.builder)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[def.Name]; ok {
		s.log.Debug("job already registered", logx.String("job", def.Name))
		return nil
	}

	e := &entry{def: def, src: src}
	s.entries[def.Name] = e
	if s.running {
		// Late joiners get scheduled without a restart.
		s.startEntryLocked(e)
	}
	s.log.Info("job registered", logx.String("job", def.Name),
		logx.Bool("transient", def.Transient))
	return nil
}

// Start creates a timer for every registered entry that does not have one
// and marks the scheduler running. Idempotent per entry.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.tm == nil {
			s.startEntryLocked(e)
		}
	}
	s.running = true
	s.log.Info("scheduler started", logx.Int("jobs", len(s.entries)))
}

// Pause cancels every entry's timer but keeps the registrations; Start
// resumes them.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.tm != nil {
			e.tm.Cancel()
			e.tm = nil
		}
	}
	s.running = false
	s.log.Info("scheduler paused", logx.Int("jobs", len(s.entries)))
}

// Stop cancels and removes every entry and marks the scheduler stopped.
// Occurrences already claimed and mid-execution run to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.tm != nil {
			e.tm.Cancel()
		}
	}
	s.entries = map[string]*entry{}
	s.running = false
	s.log.Info("scheduler stopped")
}

// Remove cancels and discards one job. Unknown names are a no-op.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return
	}
	if e.tm != nil {
		e.tm.Cancel()
	}
	delete(s.entries, name)
	s.log.Info("job removed", logx.String("job", name))
}

// Running reports whether the scheduler is in the running state.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Names returns the registered job names, unordered.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	return out
}

// NextOccurrence returns the next occurrence time for a registered job by
// evaluating its schedule fresh; it does not depend on the live timer. The
// zero time with a nil error means the schedule is exhausted.
func (s *Scheduler) NextOccurrence(name string) (time.Time, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}

	src, err := e.def.Schedule(s.builder)
	if err != nil {
		return time.Time{}, err
	}
	occ := src.Next(time.Now(), 1)
	if len(occ) == 0 {
		return time.Time{}, nil
	}
	return occ[0], nil
}

// Reset stops the scheduler and clears the ledger. Intended for tests.
func (s *Scheduler) Reset(ctx context.Context) error {
	s.Stop()
	if s.ledger == nil {
		return nil
	}
	return s.ledger.Reset(ctx)
}

func (s *Scheduler) startEntryLocked(e *entry) {
	def := e.def
	e.tm = timer.Start(e.src, func(intended time.Time) error {
		s.runOccurrence(def, intended)
		return nil
	}, s.log)
}
