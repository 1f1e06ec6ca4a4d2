package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"fleetcron/pkg/logx"
)

var (
	// ErrDuplicateOccurrence signals that another process already claimed
	// the occurrence. It is an expected condition, not a failure: callers
	// skip the run and move on.
	ErrDuplicateOccurrence = errors.New("occurrence already claimed")

	ErrNotFound = errors.New("run record not found")
	ErrDisabled = errors.New("run ledger disabled")
)

// MinRetention is the floor for the retention window. Expiring a record
// sooner could drop it before a racing claim across the fleet observes it.
const MinRetention = 300 * time.Second

// DefaultRetention keeps finished runs around long enough to be useful as
// an audit trail.
const DefaultRetention = 48 * time.Hour

// Record is one row per attempted occurrence. The composite key
// (Name, IntendedAt) is unique in the store; that uniqueness constraint is
// the entire cross-process synchronization mechanism.
type Record struct {
	ID         int64
	Name       string
	IntendedAt time.Time // occurrence identity, whole-second precision
	StartedAt  time.Time
	FinishedAt time.Time // zero until the run completes
	Result     string
	Error      string
}

// Ledger is the shared persistent store recording one row per
// (job name, intended occurrence).
type Ledger interface {
	// Claim atomically reserves the right to run (name, intendedAt) and
	// returns the new record id. If the occurrence is already claimed it
	// returns the existing record's id together with ErrDuplicateOccurrence.
	Claim(ctx context.Context, name string, intendedAt time.Time) (int64, error)

	// Complete marks the record finished with a result.
	Complete(ctx context.Context, id int64, result string) error

	// Fail marks the record finished with an error detail.
	Fail(ctx context.Context, id int64, detail string) error

	Get(ctx context.Context, id int64) (Record, error)

	// List returns all records for a job name, newest first.
	List(ctx context.Context, name string) ([]Record, error)

	// ExpireBefore removes records whose intended time is older than the
	// cutoff. Best effort: correctness of the claim mechanism never depends
	// on expiry.
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Reset removes every record. Intended for tests.
	Reset(ctx context.Context) error

	Close() error
}

// Config configures the run ledger.
//
// Driver values:
//   - "sqlite": SQLite database file shared by the fleet
//   - "memory": in-process map (tests, single-process installs)
//
// If Driver is empty or "none", the ledger is disabled and Open returns
// (nil, nil); jobs then run without distributed dedup.
type Config struct {
	Driver      string
	Path        string
	Table       string        // persistent collection name; default "job_runs"
	Retention   time.Duration // floor-enforced at MinRetention
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// withDefaults fills the table name and enforces the retention floor.
func (c Config) withDefaults(log logx.Logger) Config {
	if c.Table == "" {
		c.Table = "job_runs"
	}
	switch {
	case c.Retention == 0:
		c.Retention = DefaultRetention
	case c.Retention < MinRetention:
		log.Warn("retention below enforced floor, clamping",
			logx.Duration("requested", c.Retention),
			logx.Duration("floor", MinRetention))
		c.Retention = MinRetention
	}
	return c
}

// Open initializes the configured ledger, including its unique index. Index
// setup failure is fatal: without the uniqueness constraint the at-most-once
// guarantee silently disappears, so startup must not proceed.
func Open(cfg Config, log logx.Logger) (Ledger, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.Tag("ledger"))
	cfg = cfg.withDefaults(log)

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return newMemory(cfg, log), nil
	default:
		return nil, errors.New("unknown ledger driver: " + driver)
	}
}
