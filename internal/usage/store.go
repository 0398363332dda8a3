// Package usage provides persistent per-run token accounting for
// assistant jobs. Rows are append-only, one per orchestrator run,
// keyed by the job handle.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one orchestrator run's accounting row.
type Run struct {
	ID           string
	CreatedAt    time.Time
	Kind         string // "chat", "action", "import", "ask"
	Model        string
	Rounds       int
	InputTokens  int
	OutputTokens int
	DurationMS   int64
	Status       string // "complete" or "error"
}

// Totals holds aggregated counters over a time window.
type Totals struct {
	Runs         int
	Rounds       int64
	InputTokens  int64
	OutputTokens int64
}

// Store is an append-only SQLite ledger of runs. SQLite serializes
// writes, so all methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the ledger at dbPath. The modernc driver
// keeps the add-on container CGO-free.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		created_at    TEXT NOT NULL,
		kind          TEXT NOT NULL,
		model         TEXT NOT NULL,
		rounds        INTEGER NOT NULL,
		input_tokens  INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		duration_ms   INTEGER NOT NULL,
		status        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists a run row. A zero CreatedAt is stamped with the
// current time.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs
			(id, created_at, kind, model, rounds, input_tokens, output_tokens, duration_ms, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.CreatedAt.UTC().Format(time.RFC3339),
		run.Kind,
		run.Model,
		run.Rounds,
		run.InputTokens,
		run.OutputTokens,
		run.DurationMS,
		run.Status,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Summary returns aggregated totals for runs within [start, end).
func (s *Store) Summary(start, end time.Time) (*Totals, error) {
	row := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(rounds), 0), COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		 FROM runs
		 WHERE created_at >= ? AND created_at < ?`,
		start.UTC().Format(time.RFC3339),
		end.UTC().Format(time.RFC3339),
	)

	var t Totals
	if err := row.Scan(&t.Runs, &t.Rounds, &t.InputTokens, &t.OutputTokens); err != nil {
		return nil, fmt.Errorf("query usage summary: %w", err)
	}
	return &t, nil
}

// TokensToday returns the combined input+output token count since local
// midnight. Used by the MQTT sensor and the usage endpoint.
func (s *Store) TokensToday(now time.Time) (int64, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	t, err := s.Summary(midnight, now.Add(time.Second))
	if err != nil {
		return 0, err
	}
	return t.InputTokens + t.OutputTokens, nil
}
