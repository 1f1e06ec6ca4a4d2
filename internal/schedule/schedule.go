package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Source yields the concrete occurrence times of one schedule.
//
// Next returns up to n occurrence times strictly after t, in ascending
// order. An empty result means the schedule is exhausted (e.g. a one-off
// date already past). Implementations must be deterministic: the same
// schedule and reference time always yield the same occurrences.
type Source interface {
	Next(t time.Time, n int) []time.Time
}

// TimeMode selects the location schedules are evaluated in. It is a
// process-wide setting: changing it while timers are active is undefined.
type TimeMode int

const (
	ModeLocal TimeMode = iota
	ModeUTC
)

// ParseTimeMode maps a config string to a TimeMode. Empty means local.
func ParseTimeMode(s string) (TimeMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local":
		return ModeLocal, nil
	case "utc":
		return ModeUTC, nil
	default:
		return ModeLocal, fmt.Errorf("invalid time mode %q (use \"local\" or \"utc\")", s)
	}
}

// Builder constructs Sources. One Builder is shared by all jobs of a
// scheduler instance so they agree on parser flavor and location.
type Builder struct {
	parser cron.Parser
	loc    *time.Location
}

func NewBuilder(mode TimeMode) *Builder {
	loc := time.Local
	if mode == ModeUTC {
		loc = time.UTC
	}
	return &Builder{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		loc:    loc,
	}
}

func (b *Builder) Location() *time.Location { return b.loc }

// Cron builds a Source from a crontab expression or descriptor
// ("*/5 * * * *", "@hourly", "@every 55m").
func (b *Builder) Cron(spec string) (Source, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("cron spec required")
	}
	sched, err := b.parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return &cronSource{sched: sched, loc: b.loc}, nil
}

// Every builds a fixed-interval Source. Intervals are rounded up to whole
// seconds by the underlying cron schedule; sub-second intervals are rejected.
func (b *Builder) Every(d time.Duration) (Source, error) {
	if d < time.Second {
		return nil, fmt.Errorf("interval %v too small (minimum 1s)", d)
	}
	return &cronSource{sched: cron.Every(d), loc: b.loc}, nil
}

// Daily builds a Source firing once per day at "HH:MM".
func (b *Builder) Daily(atHHMM string) (Source, error) {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return nil, err
	}
	return b.Cron(fmt.Sprintf("%d %d * * *", m, h))
}

// Weekly builds a Source firing once per week at "HH:MM" on the given weekday.
func (b *Builder) Weekly(weekday time.Weekday, atHHMM string) (Source, error) {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return nil, err
	}
	return b.Cron(fmt.Sprintf("%d %d * * %d", m, h, int(weekday)))
}

// Once builds a one-off Source: a single occurrence at the given instant,
// exhausted afterwards.
func (b *Builder) Once(at time.Time) Source {
	return &onceSource{at: at.In(b.loc)}
}

type cronSource struct {
	sched cron.Schedule
	loc   *time.Location
}

func (s *cronSource) Next(t time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	cur := t.In(s.loc)
	for len(out) < n {
		next := s.sched.Next(cur)
		if next.IsZero() || !next.After(cur) {
			break
		}
		out = append(out, next)
		cur = next
	}
	return out
}

type onceSource struct {
	at time.Time
}

func (s *onceSource) Next(t time.Time, n int) []time.Time {
	if n <= 0 || !s.at.After(t) {
		return nil
	}
	return []time.Time{s.at}
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
