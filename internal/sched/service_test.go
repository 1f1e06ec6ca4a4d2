package sched

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"fleetcron/internal/ledger"
	"fleetcron/internal/schedule"
	"fleetcron/pkg/logx"
)

func testLedger(t *testing.T) ledger.Ledger {
	t.Helper()
	led, err := ledger.Open(ledger.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open memory ledger: %v", err)
	}
	t.Cleanup(func() { _ = led.Close() })
	return led
}

func daily(hhmm string) ScheduleFunc {
	return func(b *schedule.Builder) (schedule.Source, error) { return b.Daily(hhmm) }
}

func noop(context.Context, time.Time, string) (any, error) { return nil, nil }

func TestAddValidation(t *testing.T) {
	t.Parallel()
	s := New(Config{}, testLedger(t), logx.Nop())

	tests := []struct {
		name string
		def  JobDefinition
	}{
		{name: "empty name", def: JobDefinition{Schedule: daily("10:15"), Run: noop}},
		{name: "missing schedule", def: JobDefinition{Name: "a", Run: noop}},
		{name: "missing job func", def: JobDefinition{Name: "a", Schedule: daily("10:15")}},
		{name: "bad schedule", def: JobDefinition{Name: "a", Schedule: daily("25:99"), Run: noop}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Add(tt.def); !errors.Is(err, ErrInvalidDefinition) {
				t.Fatalf("Add = %v, want ErrInvalidDefinition", err)
			}
		})
	}
}

func TestAddTwiceIsNoop(t *testing.T) {
	t.Parallel()
	s := New(Config{}, testLedger(t), logx.Nop())

	def := JobDefinition{Name: "report", Schedule: daily("10:15"), Run: noop}
	if err := s.Add(def); err != nil {
		t.Fatalf("first Add error: %v", err)
	}
	if err := s.Add(def); err != nil {
		t.Fatalf("second Add error: %v", err)
	}
	if names := s.Names(); len(names) != 1 || names[0] != "report" {
		t.Fatalf("Names = %v, want [report]", names)
	}
}

func TestPauseStartPreservesJobs(t *testing.T) {
	t.Parallel()
	s := New(Config{}, testLedger(t), logx.Nop())
	defer s.Stop()

	for _, name := range []string{"a", "b", "c"} {
		if err := s.Add(JobDefinition{Name: name, Schedule: daily("10:15"), Run: noop}); err != nil {
			t.Fatalf("Add(%s) error: %v", name, err)
		}
	}

	s.Start()
	if !s.Running() {
		t.Fatal("not running after Start")
	}

	s.Pause()
	if s.Running() {
		t.Fatal("still running after Pause")
	}

	s.Start()
	if !s.Running() {
		t.Fatal("not running after resume")
	}
	names := s.Names()
	sort.Strings(names)
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Fatalf("Names after pause/start = %v, want [a b c]", names)
	}
}

func TestStopClearsRegistry(t *testing.T) {
	t.Parallel()
	s := New(Config{}, testLedger(t), logx.Nop())

	if err := s.Add(JobDefinition{Name: "a", Schedule: daily("10:15"), Run: noop}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	s.Start()
	s.Stop()

	if s.Running() {
		t.Fatal("still running after Stop")
	}
	if names := s.Names(); len(names) != 0 {
		t.Fatalf("Names after Stop = %v, want empty", names)
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s := New(Config{}, testLedger(t), logx.Nop())
	defer s.Stop()

	if err := s.Add(JobDefinition{Name: "a", Schedule: daily("10:15"), Run: noop}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	s.Start()

	s.Remove("a")
	if names := s.Names(); len(names) != 0 {
		t.Fatalf("Names after Remove = %v, want empty", names)
	}
	// Unknown names are a no-op.
	s.Remove("does-not-exist")
}

func TestNextOccurrence(t *testing.T) {
	t.Parallel()
	s := New(Config{}, testLedger(t), logx.Nop())

	if err := s.Add(JobDefinition{Name: "report", Schedule: daily("10:15"), Run: noop}); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	next, err := s.NextOccurrence("report")
	if err != nil {
		t.Fatalf("NextOccurrence error: %v", err)
	}
	if next.Hour() != 10 || next.Minute() != 15 {
		t.Fatalf("next = %v, want 10:15 wall time", next)
	}
	now := time.Now()
	if !next.After(now) || next.Sub(now) > 24*time.Hour {
		t.Fatalf("next = %v, want within the coming day", next)
	}

	if _, err := s.NextOccurrence("unknown"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("NextOccurrence(unknown) = %v, want ErrUnknownJob", err)
	}
}

func TestNextOccurrenceExhausted(t *testing.T) {
	t.Parallel()
	s := New(Config{}, testLedger(t), logx.Nop())

	past := time.Now().Add(-time.Hour)
	def := JobDefinition{
		Name: "oneoff",
		Schedule: func(b *schedule.Builder) (schedule.Source, error) {
			return b.Once(past), nil
		},
		Run: noop,
	}
	if err := s.Add(def); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	next, err := s.NextOccurrence("oneoff")
	if err != nil {
		t.Fatalf("NextOccurrence error: %v", err)
	}
	if !next.IsZero() {
		t.Fatalf("next = %v, want zero time for an exhausted schedule", next)
	}
}

func TestStartWithImminentOneOff(t *testing.T) {
	t.Parallel()
	s := New(Config{}, testLedger(t), logx.Nop())
	defer s.Stop()

	at := time.Now().Add(time.Second)
	def := JobDefinition{
		Name: "imminent",
		Schedule: func(b *schedule.Builder) (schedule.Source, error) {
			return b.Once(at), nil
		},
		Run: noop,
	}
	if err := s.Add(def); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	// The only occurrence is within the minimum fire delay; starting must
	// still be clean.
	s.Start()
	if !s.Running() {
		t.Fatal("not running")
	}
}

func TestAddWhileRunningStartsTimer(t *testing.T) {
	t.Parallel()
	led := testLedger(t)
	s := New(Config{}, led, logx.Nop())
	defer s.Stop()

	s.Start()

	ran := make(chan time.Time, 1)
	def := JobDefinition{
		Name: "late",
		Schedule: func(b *schedule.Builder) (schedule.Source, error) {
			return b.Every(time.Second)
		},
		Run: func(_ context.Context, intended time.Time, _ string) (any, error) {
			select {
			case ran <- intended:
			default:
			}
			return nil, nil
		},
	}
	if err := s.Add(def); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("late-added job never ran")
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	led := testLedger(t)
	s := New(Config{}, led, logx.Nop())

	if err := s.Add(JobDefinition{Name: "a", Schedule: daily("10:15"), Run: noop}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	ctx := context.Background()
	intended := time.Now().Truncate(time.Second)
	if _, err := led.Claim(ctx, "a", intended); err != nil {
		t.Fatalf("claim error: %v", err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset error: %v", err)
	}
	if len(s.Names()) != 0 || s.Running() {
		t.Fatal("Reset did not stop and clear the registry")
	}
	if _, err := led.Claim(ctx, "a", intended); err != nil {
		t.Fatalf("claim after Reset error: %v (store not cleared)", err)
	}
}
