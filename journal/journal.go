// Package journal records the history of program runs in a SQLite database.
//
// Every entry stores the fingerprint of the program that ran, the printed
// outputs or the failure that stopped it, and timing. Compiled programs
// themselves are never stored.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/quill/pkg/failure"
)

// ErrNotFound indicates the requested entry doesn't exist
var ErrNotFound = errors.New("journal entry not found")

// Run sources
const (
	SourceCLI     = "cli"
	SourceService = "service"
	SourceStream  = "stream"
)

var log = commonlog.GetLogger("quill.journal")

// Entry is one recorded run.
type Entry struct {
	ID          string        `json:"id"`
	SessionID   string        `json:"sessionId,omitempty"`
	Source      string        `json:"source"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	Outputs     []string      `json:"outputs"`
	ErrorKind   string        `json:"errorKind,omitempty"`
	ErrorCode   string        `json:"errorCode,omitempty"`
	Error       string        `json:"error,omitempty"`
	Steps       int           `json:"steps"`
	Started     time.Time     `json:"started"`
	Duration    time.Duration `json:"duration"`
}

// NewEntry starts an entry for a run beginning now.
func NewEntry(source, sessionID string) *Entry {
	return &Entry{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Source:    source,
		Started:   time.Now(),
	}
}

// Finish records the outcome of the run and its duration.
func (e *Entry) Finish(outputs []string, steps int, err error) {
	e.Duration = time.Since(e.Started)
	e.Outputs = outputs
	e.Steps = steps
	if err == nil {
		return
	}
	e.Error = err.Error()
	if fe, ok := failure.As(err); ok {
		e.ErrorKind = fe.Kind.String()
		e.ErrorCode = string(fe.Code)
	}
}

// Failed reports whether the run ended in an error.
func (e *Entry) Failed() bool {
	return e.Error != ""
}

// Journal is a run history backed by SQLite.
type Journal struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the journal at path. The path ":memory:" gives a
// private in-memory journal.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating journal directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Every connection to ":memory:" would be a separate database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Debugf("journal opened at %s", path)
	return &Journal{db: db, path: path}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			fingerprint TEXT NOT NULL DEFAULT '',
			outputs TEXT NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			error_code TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			steps INTEGER NOT NULL DEFAULT 0,
			started INTEGER NOT NULL,
			duration INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS runs_session ON runs (session_id, started)`,
		`CREATE INDEX IF NOT EXISTS runs_fingerprint ON runs (fingerprint)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("creating tables: %w", err)
		}
	}
	return nil
}

// Path returns the database path.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Record persists an entry. A missing ID or start time is filled in.
func (j *Journal) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Started.IsZero() {
		e.Started = time.Now()
	}
	outputs := e.Outputs
	if outputs == nil {
		outputs = []string{}
	}
	data, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("encoding outputs: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err = j.db.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, source, fingerprint, outputs, error_kind, error_code, error, steps, started, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Source, e.Fingerprint, string(data),
		e.ErrorKind, e.ErrorCode, e.Error, e.Steps,
		e.Started.UnixNano(), int64(e.Duration),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", e.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, session_id, source, fingerprint, outputs, error_kind, error_code, error, steps, started, duration FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		e        Entry
		outputs  string
		started  int64
		duration int64
	)
	if err := row.Scan(&e.ID, &e.SessionID, &e.Source, &e.Fingerprint, &outputs,
		&e.ErrorKind, &e.ErrorCode, &e.Error, &e.Steps, &started, &duration); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(outputs), &e.Outputs); err != nil {
		return nil, fmt.Errorf("decoding outputs of run %s: %w", e.ID, err)
	}
	e.Started = time.Unix(0, started)
	e.Duration = time.Duration(duration)
	return &e, nil
}

// Get retrieves one entry by id.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	e, err := scanEntry(j.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying run: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	return j.query(ctx, selectColumns+` ORDER BY started DESC, rowid DESC LIMIT ?`, limit)
}

// BySession returns the entries of one session in the order they ran.
func (j *Journal) BySession(ctx context.Context, sessionID string) ([]*Entry, error) {
	return j.query(ctx, selectColumns+` WHERE session_id = ? ORDER BY started, rowid`, sessionID)
}

// ByFingerprint returns every run of the program with the given fingerprint,
// oldest first.
func (j *Journal) ByFingerprint(ctx context.Context, fingerprint string) ([]*Entry, error) {
	return j.query(ctx, selectColumns+` WHERE fingerprint = ? ORDER BY started, rowid`, fingerprint)
}

// Count returns the number of recorded runs.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting runs: %w", err)
	}
	return n, nil
}

func (j *Journal) query(ctx context.Context, query string, args ...any) ([]*Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("reading run: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return entries, nil
}
