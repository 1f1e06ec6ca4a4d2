package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"fleetcron/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// reTable keeps the configured collection name safe to splice into SQL.
var reTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type sqliteLedger struct {
	db    *sql.DB
	log   logx.Logger
	table string

	retention time.Duration

	opCount    atomic.Uint64
	pruneEvery uint64

	stopExpiry context.CancelFunc
	expiryDone chan struct{}
}

func openSQLite(cfg Config, log logx.Logger) (Ledger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if !reTable.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid ledger table name %q", cfg.Table)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteLedger{
		db:         db,
		log:        log,
		table:      cfg.Table,
		retention:  cfg.Retention,
		pruneEvery: 500,
		expiryDone: make(chan struct{}),
	}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	// The unique index is the whole correctness story; a failed migration
	// must fail Open rather than be logged and ignored.
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger index setup: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	st.stopExpiry = cancel
	go st.expiryLoop(ctx)

	return st, nil
}

func (s *sqliteLedger) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf(string(b), s.table))
	return err
}

func (s *sqliteLedger) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.stopExpiry != nil {
		s.stopExpiry()
		<-s.expiryDone
	}
	return s.db.Close()
}

func (s *sqliteLedger) Claim(ctx context.Context, name string, intendedAt time.Time) (int64, error) {
	sec := intendedAt.Unix()
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s(name, intended_at, started_at) VALUES(?,?,?)
		 ON CONFLICT(name, intended_at) DO NOTHING`, s.table),
		name, sec, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}

	if n := s.opCount.Add(1); n%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, _ = s.ExpireBefore(pctx, time.Now().Add(-s.retention))
		cancel()
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		// Someone else holds this occurrence; hand back their record id.
		var id int64
		err := s.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT id FROM %s WHERE name = ? AND intended_at = ?`, s.table),
			name, sec,
		).Scan(&id)
		if err != nil {
			return 0, err
		}
		return id, ErrDuplicateOccurrence
	}
	return res.LastInsertId()
}

func (s *sqliteLedger) Complete(ctx context.Context, id int64, result string) error {
	return s.finish(ctx, id, "result", result)
}

func (s *sqliteLedger) Fail(ctx context.Context, id int64, detail string) error {
	return s.finish(ctx, id, "error", detail)
}

func (s *sqliteLedger) finish(ctx context.Context, id int64, column, value string) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET finished_at = ?, %s = ? WHERE id = ?`, s.table, column),
		time.Now().UnixMilli(), value, id,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteLedger) Get(ctx context.Context, id int64) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, name, intended_at, started_at, finished_at, result, error
		 FROM %s WHERE id = ?`, s.table), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (s *sqliteLedger) List(ctx context.Context, name string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, name, intended_at, started_at, finished_at, result, error
		 FROM %s WHERE name = ? ORDER BY intended_at DESC`, s.table), name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteLedger) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE intended_at < ?`, s.table), cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteLedger) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table))
	return err
}

// expiryLoop sweeps expired records in the background. Best effort by
// design: a missed sweep only delays cleanup, never correctness.
func (s *sqliteLedger) expiryLoop(ctx context.Context) {
	defer close(s.expiryDone)

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			n, err := s.ExpireBefore(sctx, time.Now().Add(-s.retention))
			cancel()
			if err != nil {
				s.log.Warn("run record expiry failed", logx.Err(err))
				continue
			}
			if n > 0 {
				s.log.Debug("expired run records", logx.Int64("count", n))
			}
		}
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (Record, error) {
	var (
		rec        Record
		intendedAt int64
		startedAt  int64
		finishedAt sql.NullInt64
		result     sql.NullString
		errDetail  sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.Name, &intendedAt, &startedAt, &finishedAt, &result, &errDetail); err != nil {
		return Record{}, err
	}
	rec.IntendedAt = time.Unix(intendedAt, 0)
	rec.StartedAt = time.UnixMilli(startedAt)
	if finishedAt.Valid {
		rec.FinishedAt = time.UnixMilli(finishedAt.Int64)
	}
	rec.Result = result.String
	rec.Error = errDetail.String
	return rec, nil
}
