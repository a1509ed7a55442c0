// Package memory keeps the facts the user asks the assistant to remember,
// in SQLite next to the pending plan.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/resolve"
	"github.com/vthunder/steward/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	text       TEXT NOT NULL,
	norm       TEXT NOT NULL,
	topic      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_notes_norm ON notes(norm);
CREATE INDEX IF NOT EXISTS idx_notes_topic ON notes(topic);
`

// scanLimit bounds how many candidate rows one recall scores
const scanLimit = 500

// Notes stores remembered facts
type Notes struct {
	db  *sql.DB
	now func() time.Time
}

// NewNotes uses an existing connection and creates the table if needed
func NewNotes(db *sql.DB) (*Notes, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate notes: %w", err)
	}
	return &Notes{db: db, now: time.Now}, nil
}

// Remember saves a fact. Saving the same fact again (ignoring case and
// accents) refreshes it instead of adding a duplicate.
func (n *Notes) Remember(ctx context.Context, text, topic string) (types.Note, error) {
	text = strings.TrimSpace(text)
	norm := resolve.Normalize(text)
	if norm == "" {
		return types.Note{}, fmt.Errorf("nothing to remember")
	}
	topic = strings.ToLower(strings.TrimSpace(topic))
	now := n.now().UTC()

	var id int64
	err := n.db.QueryRowContext(ctx, `
		INSERT INTO notes (text, norm, topic, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(norm) DO UPDATE SET
			text = excluded.text,
			topic = CASE WHEN excluded.topic != '' THEN excluded.topic ELSE notes.topic END,
			created_at = excluded.created_at
		RETURNING id`, text, norm, topic, now).Scan(&id)
	if err != nil {
		return types.Note{}, fmt.Errorf("failed to save note: %w", err)
	}
	logging.Debug("memory", "remembered note %d: %s", id, logging.Truncate(text, 60))
	return types.Note{ID: id, Text: text, Topic: topic, CreatedAt: now}, nil
}

// Recall returns up to limit notes matching query, best match first. Notes
// match on any query word or on their topic; an empty query returns the
// most recent notes.
func (n *Notes) Recall(ctx context.Context, query string, limit int) ([]types.Note, error) {
	if limit <= 0 {
		limit = 5
	}
	words := strings.Fields(resolve.Normalize(query))

	q := `SELECT id, text, norm, topic, created_at FROM notes`
	var args []any
	if len(words) > 0 {
		var conds []string
		for _, w := range words {
			conds = append(conds, `norm LIKE ? ESCAPE '\'`, `topic = ?`)
			args = append(args, "%"+escapeLike(w)+"%", w)
		}
		q += ` WHERE ` + strings.Join(conds, ` OR `)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, scanLimit)

	rows, err := n.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	type scored struct {
		note  types.Note
		score int
	}
	var hits []scored
	for rows.Next() {
		var note types.Note
		var norm string
		if err := rows.Scan(&note.ID, &note.Text, &norm, &note.Topic, &note.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		hits = append(hits, scored{note: note, score: score(words, norm, note.Topic)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]types.Note, len(hits))
	for i, h := range hits {
		out[i] = h.note
	}
	return out, nil
}

// Forget deletes a note by id
func (n *Notes) Forget(ctx context.Context, id int64) error {
	res, err := n.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("note %d not found", id)
	}
	return nil
}

// score counts query words found in the note, whole words weighing double
func score(words []string, norm, topic string) int {
	noteWords := make(map[string]bool)
	for _, w := range strings.Fields(norm) {
		noteWords[w] = true
	}
	s := 0
	for _, w := range words {
		switch {
		case noteWords[w] || w == topic:
			s += 2
		case strings.Contains(norm, w):
			s++
		}
	}
	return s
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
