package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fleetcron/pkg/logx"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const sampleYAML = `
logging:
  level: debug
  file:
    enabled: true
    path: /var/log/fleetcron.log
store:
  driver: sqlite
  path: /srv/fleetcron/runs.db
  busy_timeout: 2s
scheduler:
  time_mode: utc
  retention_seconds: 3600
jobs:
  - name: report:nightly
    schedule: "15 10 * * *"
    command: make report
    timeout: 5m
  - name: cache:warm
    schedule: 10m
    command: ./warm-cache.sh
    transient: true
`

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "fleetcron.yaml", sampleYAML)

	cfg, err := NewManager(path, logx.Nop()).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("Level = %q, want debug", cfg.Logging.Level)
	}
	if !cfg.Logging.ConsoleEnabled() {
		t.Fatal("console should default to enabled")
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "/srv/fleetcron/runs.db" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Scheduler.TimeMode != "utc" {
		t.Fatalf("TimeMode = %q, want utc", cfg.Scheduler.TimeMode)
	}
	if got := cfg.Scheduler.Retention(); got != time.Hour {
		t.Fatalf("Retention = %v, want 1h", got)
	}
	if len(cfg.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(cfg.Jobs))
	}
	if !cfg.Jobs[1].Transient {
		t.Fatal("jobs[1] should be transient")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "fleetcron.json",
		`{"store":{"driver":"memory"},"scheduler":{"time_mode":"local"}}`)

	cfg, err := NewManager(path, logx.Nop()).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("Driver = %q, want memory", cfg.Store.Driver)
	}
}

func TestLoadRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "unknown field",
			file:    "c.json",
			content: `{"store":{"driver":"memory"},"retries":3}`,
		},
		{
			name:    "trailing data",
			file:    "c.json",
			content: `{"store":{"driver":"memory"}}{"again":true}`,
		},
		{
			name: "duplicate job names",
			file: "c.yaml",
			content: `
jobs:
  - {name: a, schedule: "@hourly", command: x}
  - {name: a, schedule: "@daily", command: y}
`,
		},
		{
			name:    "job without command",
			file:    "c.yaml",
			content: "jobs:\n  - {name: a, schedule: \"@hourly\"}\n",
		},
		{
			name:    "bad time mode",
			file:    "c.json",
			content: `{"scheduler":{"time_mode":"fixed"}}`,
		},
		{
			name:    "bad timeout",
			file:    "c.yaml",
			content: "jobs:\n  - {name: a, schedule: \"@hourly\", command: x, timeout: soon}\n",
		},
		{
			name:    "negative retention",
			file:    "c.json",
			content: `{"scheduler":{"retention_seconds":-1}}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			if _, err := NewManager(path, logx.Nop()).Load(); err == nil {
				t.Fatalf("Load accepted invalid config:\n%s", tt.content)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 90s "); err != nil || d != 90*time.Second {
		t.Fatalf("got (%v, %v), want (90s, nil)", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got (%v, %v), want (0, nil)", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if _, err := ParseDurationField("x", "five"); err == nil {
		t.Fatal("expected error for junk duration")
	}
}
