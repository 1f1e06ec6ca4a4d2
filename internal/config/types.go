package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the daemon configuration. Fields map 1:1 to the JSON/YAML file;
// unknown keys are rejected at decode time.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Store     StoreConfig     `json:"store"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Jobs are command jobs registered by fleetcrond at startup. Embedders
	// using the library directly register their own JobDefinitions instead.
	Jobs []JobConfig `json:"jobs,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"` // trace|debug|info|warn|error
	Console *bool      `json:"console,omitempty"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StoreConfig controls the shared run ledger.
//
// Example:
//
//	"store": { "driver": "sqlite", "path": "/srv/fleetcron/runs.db" }
type StoreConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`

	// Name is the persistent collection (table) holding run records.
	// Defaults to "job_runs".
	Name string `json:"name,omitempty"`

	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type SchedulerConfig struct {
	// TimeMode is "local" (default) or "utc". It applies process-wide and
	// must not change while the daemon runs.
	TimeMode string `json:"time_mode,omitempty"`

	// RetentionSeconds is the run-record TTL. Values below 300 are clamped
	// to 300 with a warning; 0 means the built-in default (48h).
	RetentionSeconds int `json:"retention_seconds,omitempty"`
}

// JobConfig is one command job.
//
// Example:
//
//	{ "name": "report:nightly", "schedule": "15 10 * * *", "command": "make report" }
type JobConfig struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Command  string `json:"command"`

	// Timeout is a Go duration string; empty means no timeout.
	Timeout string `json:"timeout,omitempty"`

	// Transient skips run-ledger recording (and so distributed dedup).
	Transient bool `json:"transient,omitempty"`
}

// ConsoleEnabled defaults console logging on unless explicitly disabled.
func (c LoggingConfig) ConsoleEnabled() bool {
	return c.Console == nil || *c.Console
}

// Retention converts RetentionSeconds, leaving floor enforcement to the
// ledger so the clamp is logged in one place.
func (c SchedulerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// Validate rejects configs that could not possibly run. Field-level clamps
// (retention floor, unknown log level) are applied downstream with warnings
// instead of failing here.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i, j := range c.Jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" {
			return fmt.Errorf("jobs[%d]: name required", i)
		}
		if seen[name] {
			return fmt.Errorf("jobs[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
		if strings.TrimSpace(j.Schedule) == "" {
			return fmt.Errorf("jobs[%d] (%s): schedule required", i, name)
		}
		if strings.TrimSpace(j.Command) == "" {
			return fmt.Errorf("jobs[%d] (%s): command required", i, name)
		}
		if _, err := ParseDurationField(fmt.Sprintf("jobs[%d].timeout", i), j.Timeout); err != nil {
			return err
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Scheduler.TimeMode)) {
	case "", "local", "utc":
	default:
		return fmt.Errorf("scheduler.time_mode: invalid value %q (use \"local\" or \"utc\")", c.Scheduler.TimeMode)
	}

	if _, err := ParseDurationField("store.busy_timeout", c.Store.BusyTimeout); err != nil {
		return err
	}
	if c.Scheduler.RetentionSeconds < 0 {
		return fmt.Errorf("scheduler.retention_seconds: must be >= 0")
	}
	return nil
}
