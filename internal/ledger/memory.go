package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleetcron/pkg/logx"
)

// memoryLedger is an in-process Ledger. It gives single-process installs the
// same claim semantics the sqlite driver gives a fleet, and keeps tests off
// the filesystem.
type memoryLedger struct {
	log       logx.Logger
	retention time.Duration

	mu     sync.Mutex
	nextID int64
	claims uint64
	byID   map[int64]*Record
	byKey  map[occurrenceKey]int64
}

type occurrenceKey struct {
	name string
	sec  int64
}

func newMemory(cfg Config, log logx.Logger) *memoryLedger {
	return &memoryLedger{
		log:       log,
		retention: cfg.Retention,
		byID:      make(map[int64]*Record),
		byKey:     make(map[occurrenceKey]int64),
	}
}

func (m *memoryLedger) Claim(_ context.Context, name string, intendedAt time.Time) (int64, error) {
	key := occurrenceKey{name: name, sec: intendedAt.Unix()}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byKey[key]; ok {
		return id, ErrDuplicateOccurrence
	}
	m.nextID++
	id := m.nextID
	m.byID[id] = &Record{
		ID:         id,
		Name:       name,
		IntendedAt: time.Unix(key.sec, 0),
		StartedAt:  time.Now(),
	}
	m.byKey[key] = id

	m.claims++
	if m.claims%500 == 0 {
		n := m.expireLocked(time.Now().Add(-m.retention))
		if n > 0 {
			m.log.Debug("expired run records", logx.Int64("count", n))
		}
	}
	return id, nil
}

func (m *memoryLedger) Complete(_ context.Context, id int64, result string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.FinishedAt = time.Now()
	rec.Result = result
	return nil
}

func (m *memoryLedger) Fail(_ context.Context, id int64, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.FinishedAt = time.Now()
	rec.Error = detail
	return nil
}

func (m *memoryLedger) Get(_ context.Context, id int64) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

func (m *memoryLedger) List(_ context.Context, name string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.byID {
		if rec.Name == name {
			out = append(out, *rec)
		}
	}
	// Newest first, matching the sqlite driver.
	sort.Slice(out, func(i, j int) bool { return out[i].IntendedAt.After(out[j].IntendedAt) })
	return out, nil
}

func (m *memoryLedger) ExpireBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expireLocked(cutoff), nil
}

func (m *memoryLedger) expireLocked(cutoff time.Time) int64 {
	var n int64
	for id, rec := range m.byID {
		if rec.IntendedAt.Before(cutoff) {
			delete(m.byID, id)
			delete(m.byKey, occurrenceKey{name: rec.Name, sec: rec.IntendedAt.Unix()})
			n++
		}
	}
	return n
}

func (m *memoryLedger) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID = make(map[int64]*Record)
	m.byKey = make(map[occurrenceKey]int64)
	return nil
}

func (m *memoryLedger) Close() error { return nil }
