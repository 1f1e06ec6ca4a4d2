// Package timer implements the per-job recurring timer: a chain of
// single-shot waits driven by a schedule.Source, rather than a fixed-period
// ticker, because occurrence spacing is irregular for cron-like schedules.
package timer

import (
	"sync"
	"sync/atomic"
	"time"

	"fleetcron/internal/schedule"
	"fleetcron/pkg/logx"
)

// State is the timer's lifecycle phase. Exposed for tests and introspection;
// transitions are driven entirely by the timer itself.
type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateFiring
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateFiring:
		return "firing"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Callback receives the intended occurrence time (not "now": the two differ
// by scheduling jitter). A non-nil error is logged and swallowed; it never
// breaks the timer chain.
type Callback func(intended time.Time) error

const (
	// maxWait is the longest single wait we arm. time.Timer itself can
	// represent more, but occurrence arithmetic happens in milliseconds and
	// callers may hand us schedules arbitrarily far out, so waits beyond the
	// ceiling are split into intermediate wake-ups that only re-evaluate the
	// schedule.
	maxWait = time.Duration(1<<31-1) * time.Millisecond // ~24.8 days

	// minFireDelay guards against firing an occurrence that is already
	// slipping past "now" by the time the delay is computed, and against a
	// busy loop of near-zero-delay fires.
	minFireDelay = time.Second
)

// Timer fires a callback once per occurrence of a schedule until the
// schedule is exhausted or Cancel is called.
type Timer struct {
	log  logx.Logger
	src  schedule.Source
	fire Callback

	maxWait      time.Duration
	minFireDelay time.Duration

	state atomic.Int32

	cancelOnce sync.Once
	done       chan struct{}
}

// Start creates the timer and begins its wait/fire loop.
func Start(src schedule.Source, fire Callback, log logx.Logger) *Timer {
	t := newTimer(src, fire, log)
	t.start()
	return t
}

func newTimer(src schedule.Source, fire Callback, log logx.Logger) *Timer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Timer{
		log:          log.With(logx.Tag("timer")),
		src:          src,
		fire:         fire,
		maxWait:      maxWait,
		minFireDelay: minFireDelay,
		done:         make(chan struct{}),
	}
}

func (t *Timer) start() {
	go t.loop()
}

// State reports the current lifecycle phase.
func (t *Timer) State() State { return State(t.state.Load()) }

// Cancel stops all future fires. Idempotent. A fire already in flight
// completes but does not reschedule.
func (t *Timer) Cancel() {
	t.cancelOnce.Do(func() {
		t.state.Store(int32(StateCancelled))
		close(t.done)
	})
}

// setIdle moves to idle unless a concurrent Cancel got there first.
func (t *Timer) setIdle() {
	if s := t.state.Load(); s != int32(StateCancelled) {
		t.state.CompareAndSwap(s, int32(StateIdle))
	}
}

func (t *Timer) cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Timer) loop() {
	for {
		if t.cancelled() {
			return
		}

		now := time.Now()
		occ := t.src.Next(now, 2)
		if len(occ) == 0 {
			// Schedule exhausted (e.g. a one-off already past). Not an error.
			t.setIdle()
			t.log.Debug("schedule exhausted, timer stopping")
			return
		}

		target := occ[0]
		if target.Sub(now) < t.minFireDelay {
			if len(occ) < 2 {
				t.setIdle()
				t.log.Debug("last occurrence too close to fire, timer stopping",
					logx.Time("occurrence", target))
				return
			}
			target = occ[1]
		}

		delay := target.Sub(now)
		reevaluate := false
		if delay > t.maxWait {
			// Intermediate wake-up: wait the ceiling, then recompute.
			delay = t.maxWait
			reevaluate = true
		}

		// CAS so a concurrent Cancel's state is never overwritten.
		if s := t.state.Load(); s != int32(StateCancelled) {
			t.state.CompareAndSwap(s, int32(StateWaiting))
		}
		if t.cancelled() {
			return
		}

		wait := time.NewTimer(delay)
		select {
		case <-t.done:
			wait.Stop()
			return
		case <-wait.C:
		}

		if reevaluate || t.cancelled() {
			continue
		}

		if s := t.state.Load(); s != int32(StateCancelled) {
			t.state.CompareAndSwap(s, int32(StateFiring))
		}
		t.safeFire(target)
	}
}

// safeFire invokes the callback and contains any failure: a failing job must
// not kill the timer chain.
func (t *Timer) safeFire(intended time.Time) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("timer callback panicked", logx.Any("panic", r),
				logx.Time("intended", intended))
		}
	}()
	if err := t.fire(intended); err != nil {
		t.log.Error("timer callback failed", logx.Err(err),
			logx.Time("intended", intended))
	}
}
