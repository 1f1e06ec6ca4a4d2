package sched

import (
	"context"
	"time"

	"fleetcron/internal/schedule"
	"fleetcron/internal/timer"
)

// Config controls a scheduler instance.
type Config struct {
	// TimeMode fixes the location schedules are evaluated in. It must not
	// change while timers are active.
	TimeMode schedule.TimeMode
}

// JobFunc performs the work of one occurrence. intended is the occurrence's
// whole-second identity, which can differ from "now" by scheduling jitter.
// The returned value is recorded in the run ledger; the error, if any, is
// recorded instead. JobFuncs may block on I/O.
type JobFunc func(ctx context.Context, intended time.Time, name string) (any, error)

// ScheduleFunc produces the job's occurrence source from the scheduler's
// shared builder, e.g.
//
//	func(b *schedule.Builder) (schedule.Source, error) { return b.Daily("10:15") }
type ScheduleFunc func(b *schedule.Builder) (schedule.Source, error)

// JobDefinition is immutable after registration.
type JobDefinition struct {
	// Name is the unique registry key and half of the occurrence identity.
	Name string

	Schedule ScheduleFunc
	Run      JobFunc

	// Transient opts the job out of the run ledger: no claim, no record,
	// and therefore no distributed dedup. Duplicate execution across
	// processes is the accepted consequence. The zero value persists.
	Transient bool
}

// entry pairs a registered definition with its live timer. Owned exclusively
// by the Scheduler; tm is nil while paused or stopped.
type entry struct {
	def JobDefinition
	src schedule.Source
	tm  *timer.Timer
}
