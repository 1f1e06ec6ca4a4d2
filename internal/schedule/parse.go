package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Parse turns a schedule string from config into a Source.
//
// Supported forms:
//   - Cron (crontab.guru-style): "*/5 * * * *", "55 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Daily HH:MM: "at:10:15"
//   - One-off date: "once:2026-09-01T10:15:00Z" (RFC 3339)
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
func (b *Builder) Parse(raw string) (Source, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return b.Cron(s[len("cron:"):])
	case strings.HasPrefix(low, "interval:"):
		return b.parseInterval(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return b.parseInterval(s[len("every:"):])
	case strings.HasPrefix(low, "at:"):
		return b.Daily(s[len("at:"):])
	case strings.HasPrefix(low, "once:"):
		at, err := time.Parse(time.RFC3339, strings.TrimSpace(s[len("once:"):]))
		if err != nil {
			return nil, fmt.Errorf("invalid one-off date in %q: %w", raw, err)
		}
		return b.Once(at), nil
	}

	// Heuristics: any whitespace or leading '@' => cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return b.Cron(s)
	}

	if d, err := time.ParseDuration(s); err == nil {
		return b.Every(d)
	}

	return nil, fmt.Errorf(
		"invalid schedule %q (use cron like '*/5 * * * *', a duration like '55m', 'at:HH:MM', or 'once:<RFC3339>')",
		raw,
	)
}

var reHHMM = regexp.MustCompile(`^\s*\d{1,2}:\d{2}\s*$`)

func (b *Builder) parseInterval(v string) (Source, error) {
	v = strings.TrimSpace(v)
	if reHHMM.MatchString(v) {
		// "02:30" means every 2 hours 30 minutes.
		h, m, err := parseHHMM(v)
		if err != nil {
			return nil, err
		}
		return b.Every(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return nil, fmt.Errorf("invalid interval %q: %w", v, err)
	}
	return b.Every(d)
}
