// Package session manages isolated per-caller local analytic engines with
// idle-based expiry and per-session table registration.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/vizql/vizql/internal/observability"
	"github.com/vizql/vizql/internal/tabular"
)

var ErrNotFound = errors.New("session: not found")

const DefaultTimeout = 30 * time.Minute

// Session is one caller's isolated in-memory DuckDB instance plus the tables
// registered into it, in registration order. Timestamp and table mutations go
// through the Manager; the DB handle itself is safe for concurrent queries.
type Session struct {
	ID        string
	CreatedAt time.Time
	DB        *sql.DB

	lastAccessed time.Time
	timeout      time.Duration
	tables       []string

	// Serializes table-name assignment and materialization for this session
	// so names stay unique under concurrent uploads. Never held while the
	// Manager lock is held.
	uploadMu sync.Mutex
}

func (s *Session) expired(now time.Time) bool {
	return now.Sub(s.lastAccessed) > s.timeout
}

type SeedTable struct {
	Name  string
	Table tabular.Table
}

type Options struct {
	Timeout time.Duration
	Seed    []SeedTable
	Logger  *slog.Logger
}

// Manager owns every live session. All map and per-session metadata access is
// serialized by one mutex; engine opening, seeding, and disposal run outside it.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	timeout time.Duration
	seed    []SeedTable
	logger  *slog.Logger
	now     func() time.Time
}

func NewManager(opts Options) *Manager {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: map[string]*Session{},
		timeout:  timeout,
		seed:     opts.Seed,
		logger:   logger,
		now:      time.Now,
	}
}

// Create sweeps every expired session, then allocates a fresh one with an
// isolated in-memory engine, seeded with the configured base tables.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	stale := m.sweepLocked()
	m.mu.Unlock()
	m.disposeAll(stale)

	db, err := openLocalEngine()
	if err != nil {
		return nil, fmt.Errorf("open local engine: %w", err)
	}

	now := m.now().UTC()
	created := &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		DB:           db,
		lastAccessed: now,
		timeout:      m.timeout,
	}
	for _, seed := range m.seed {
		if err := tabular.Materialize(ctx, db, seed.Name, seed.Table); err != nil {
			m.dispose(created)
			return nil, fmt.Errorf("seed table %q: %w", seed.Name, err)
		}
		created.tables = append(created.tables, seed.Name)
	}

	m.mu.Lock()
	m.sessions[created.ID] = created
	size := len(m.sessions)
	m.mu.Unlock()

	observability.SetActiveSessions(size)
	return created, nil
}

// Get returns the session and refreshes its last-accessed time. An expired
// session reads as absent and is removed as a side effect.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	found, ok := m.lookupLocked(id)
	if ok {
		found.lastAccessed = m.now().UTC()
	}
	size := len(m.sessions)
	m.mu.Unlock()

	observability.SetActiveSessions(size)
	return found, ok
}

// Delete removes the session and releases its engine. Expired sessions count
// as absent but are still disposed.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	found, ok := m.lookupLocked(id)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	delete(m.sessions, id)
	size := len(m.sessions)
	m.mu.Unlock()

	observability.SetActiveSessions(size)
	m.dispose(found)
	return nil
}

// ListTables returns the session's registered tables in registration order.
func (m *Manager) ListTables(id string) ([]string, error) {
	m.mu.Lock()
	found, ok := m.lookupLocked(id)
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	found.lastAccessed = m.now().UTC()
	tables := make([]string, len(found.tables))
	copy(tables, found.tables)
	m.mu.Unlock()
	return tables, nil
}

// RegisterTable appends name to the session's table set. The caller guarantees
// uniqueness, normally by deriving the name through MaterializeTable.
func (m *Manager) RegisterTable(id, name string) error {
	m.mu.Lock()
	found, ok := m.lookupLocked(id)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	found.lastAccessed = m.now().UTC()
	found.tables = append(found.tables, name)
	m.mu.Unlock()
	return nil
}

// MaterializeTable loads table into the session engine under a sanitized,
// unique name derived from rawName, registers it, and returns the name.
// Concurrent materializations into one session are serialized; the store lock
// is not held while data loads.
func (m *Manager) MaterializeTable(ctx context.Context, id, rawName string, table tabular.Table) (string, error) {
	found, ok := m.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	found.uploadMu.Lock()
	defer found.uploadMu.Unlock()

	existing, err := m.ListTables(id)
	if err != nil {
		return "", err
	}
	name := Sanitize(rawName, existing)
	if err := tabular.Materialize(ctx, found.DB, name, table); err != nil {
		return "", err
	}
	if err := m.RegisterTable(id, name); err != nil {
		return "", err
	}
	return name, nil
}

// Shutdown disposes every session. Called once on process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	stale := make([]*Session, 0, len(m.sessions))
	for _, candidate := range m.sessions {
		stale = append(stale, candidate)
	}
	m.sessions = map[string]*Session{}
	m.mu.Unlock()

	observability.SetActiveSessions(0)
	m.disposeAll(stale)
}

// lookupLocked resolves id, removing it when expired (lazy expiry). Disposal
// of a lazily expired engine happens on a goroutine so no caller pays for it.
func (m *Manager) lookupLocked(id string) (*Session, bool) {
	found, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if found.expired(m.now().UTC()) {
		delete(m.sessions, id)
		observability.SessionsExpired(1)
		go m.dispose(found)
		return nil, false
	}
	return found, true
}

func (m *Manager) sweepLocked() []*Session {
	var stale []*Session
	now := m.now().UTC()
	for id, candidate := range m.sessions {
		if candidate.expired(now) {
			delete(m.sessions, id)
			stale = append(stale, candidate)
		}
	}
	observability.SessionsExpired(len(stale))
	return stale
}

func (m *Manager) disposeAll(sessions []*Session) {
	for _, candidate := range sessions {
		m.dispose(candidate)
	}
}

func (m *Manager) dispose(s *Session) {
	if s == nil || s.DB == nil {
		return
	}
	if err := s.DB.Close(); err != nil {
		m.logger.Warn("session engine dispose failed",
			slog.String("session_id", s.ID),
			slog.Any("error", err),
		)
	}
}

func openLocalEngine() (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, err
	}
	// One pooled connection keeps every statement on the same in-memory
	// catalog.
	db.SetMaxOpenConns(1)
	return db, nil
}
