// Package ledger journals completion requests in SQLite. It records what was
// sent and how it went (fingerprint, size, latency, outcome) but never the turn
// text, so conversations are not persisted.
package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"HotkeyChat/internal/session"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Exchange is one request to the completion backend
type Exchange struct {
	SessionID   string
	Backend     string
	Model       string
	Fingerprint string
	Turns       int
	StartedAt   time.Time
	Duration    time.Duration
	Outcome     string
	Error       string
}

// Summary aggregates the exchanges of one session
type Summary struct {
	Total  int
	Failed int
}

// Ledger is a SQLite-backed exchange journal
type Ledger struct {
	db *sql.DB
}

// Fingerprint hashes a context snapshot so identical requests can be spotted
func Fingerprint(turns []session.Turn) string {
	h := sha256.New()
	for _, turn := range turns {
		h.Write([]byte(turn.Role))
		h.Write([]byte{0})
		h.Write([]byte(turn.Content))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Open opens or creates the database at path
func Open(path string) (*Ledger, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createExchangesTable := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		backend TEXT,
		model TEXT,
		fingerprint TEXT,
		turns INTEGER,
		started_at DATETIME,
		duration_ms INTEGER,
		outcome TEXT,
		error TEXT
	);`

	if _, err := db.Exec(createExchangesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create exchanges table: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Record appends one exchange
func (l *Ledger) Record(ctx context.Context, ex Exchange) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO exchanges (session_id, backend, model, fingerprint, turns, started_at, duration_ms, outcome, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.SessionID, ex.Backend, ex.Model, ex.Fingerprint, ex.Turns,
		ex.StartedAt, ex.Duration.Milliseconds(), ex.Outcome, ex.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// Summarize counts the exchanges recorded for a session
func (l *Ledger) Summarize(ctx context.Context, sessionID string) (Summary, error) {
	var s Summary
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0)
		 FROM exchanges WHERE session_id = ?`,
		OutcomeError, sessionID,
	).Scan(&s.Total, &s.Failed)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize session: %w", err)
	}
	return s, nil
}

// Exchanges returns the exchanges of a session in insertion order
func (l *Ledger) Exchanges(ctx context.Context, sessionID string) ([]Exchange, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT session_id, backend, model, fingerprint, turns, started_at, duration_ms, outcome, error
		 FROM exchanges WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var ex Exchange
		var ms int64
		if err := rows.Scan(&ex.SessionID, &ex.Backend, &ex.Model, &ex.Fingerprint, &ex.Turns,
			&ex.StartedAt, &ms, &ex.Outcome, &ex.Error); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		ex.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, ex)
	}
	return out, rows.Err()
}

// Close closes the database
func (l *Ledger) Close() error {
	return l.db.Close()
}
