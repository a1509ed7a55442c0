package pending

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_plan (
	slot       INTEGER PRIMARY KEY CHECK (slot = 1),
	status     TEXT NOT NULL,
	question   TEXT NOT NULL,
	context    TEXT NOT NULL DEFAULT '',
	action     BLOB,
	created_at TIMESTAMP NOT NULL
);
`

// SQLiteStore keeps the plan in a single-row table
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates <statePath>/system/steward.db
func OpenSQLite(statePath string) (*SQLiteStore, error) {
	dbPath := filepath.Join(statePath, "system", "steward.db")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore uses an existing connection and creates the table if needed
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate pending_plan: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the connection so other stores can share the file
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the underlying connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context) (*Plan, error) {
	var p Plan
	var action []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT status, question, context, action, created_at FROM pending_plan WHERE slot = 1`,
	).Scan(&p.Status, &p.Question, &p.Context, &action, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending plan: %w", err)
	}
	if len(action) > 0 {
		p.Action = action
	}
	return &p, nil
}

func (s *SQLiteStore) Save(ctx context.Context, plan Plan) error {
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}
	var action []byte
	if len(plan.Action) > 0 {
		action = []byte(plan.Action)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_plan (slot, status, question, context, action, created_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			status = excluded.status,
			question = excluded.question,
			context = excluded.context,
			action = excluded.action,
			created_at = excluded.created_at`,
		plan.Status, plan.Question, plan.Context, action, plan.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save pending plan: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_plan WHERE slot = 1`); err != nil {
		return fmt.Errorf("failed to clear pending plan: %w", err)
	}
	return nil
}
