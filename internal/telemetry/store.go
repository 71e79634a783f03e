package telemetry

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists query events to a local SQLite database. The driver
// is pure Go, so the gateway builds without cgo.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the telemetry database at path and
// ensures the schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("telemetry database path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry database: %w", err)
	}
	// The gateway is the only writer and SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question TEXT NOT NULL,
		answered INTEGER NOT NULL DEFAULT 0,
		no_response INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_events_ts ON query_events(timestamp DESC);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// SaveEvent appends one query event and trims the log to the newest 10000
// rows.
func (s *SQLiteStore) SaveEvent(event QueryEvent) error {
	_, err := s.db.Exec(`
		INSERT INTO query_events (question, answered, no_response, latency_ms, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, event.Question, boolToInt(event.Answered), boolToInt(event.NoResponse),
		event.Latency.Milliseconds(), event.Timestamp)
	if err != nil {
		return fmt.Errorf("insert query event: %w", err)
	}

	_, err = s.db.Exec(`
		DELETE FROM query_events
		WHERE id NOT IN (
			SELECT id FROM query_events
			ORDER BY id DESC
			LIMIT 10000
		)
	`)
	if err != nil {
		return fmt.Errorf("trim query events: %w", err)
	}
	return nil
}

// RecentQuestions returns the newest questions, most recent first.
func (s *SQLiteStore) RecentQuestions(limit int) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT question
		FROM query_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent questions: %w", err)
	}
	defer rows.Close()

	var questions []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// EventCount returns the number of persisted events.
func (s *SQLiteStore) EventCount() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM query_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count query events: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
