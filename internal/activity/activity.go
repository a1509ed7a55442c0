// Package activity keeps an append-only audit trail of turns: what the owner
// said, how it was handled and what each action did.
package activity

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Type identifies an entry
type Type string

const (
	TypeInput      Type = "input"       // message from the owner
	TypeQuickReply Type = "quick_reply" // yes/no to the pending question, no planner call
	TypePlanner    Type = "planner"     // planner returned an action list
	TypeAction     Type = "action"      // one action's outcome
	TypeResume     Type = "resume"      // confirmed external action ran
	TypeError      Type = "error"
)

// Entry is one line of the log
type Entry struct {
	Timestamp time.Time      `json:"ts"`
	Type      Type           `json:"type"`
	UserID    string         `json:"user_id,omitempty"`
	Summary   string         `json:"summary"`
	Kind      string         `json:"kind,omitempty"`   // action kind or integration name
	Status    string         `json:"status,omitempty"` // executed, failed, skipped...
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Log appends entries to <state>/system/activity.jsonl
type Log struct {
	path string
	mu   sync.Mutex
}

// New returns a log under statePath
func New(statePath string) *Log {
	return &Log{path: filepath.Join(statePath, "system", "activity.jsonl")}
}

// Path of the backing file
func (l *Log) Path() string {
	return l.path
}

// Log appends e, stamping it when Timestamp is zero
func (l *Log) Log(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(data, '\n'))
	return err
}

// LogInput records a message from the owner
func (l *Log) LogInput(user, text string) error {
	return l.Log(Entry{Type: TypeInput, UserID: user, Summary: text})
}

// LogQuickReply records a pending question answered without the planner
func (l *Log) LogQuickReply(user, intent, reply string) error {
	return l.Log(Entry{Type: TypeQuickReply, UserID: user, Summary: reply, Status: intent})
}

// LogPlanner records the size of a planner response and how long it took
func (l *Log) LogPlanner(user string, actions int, took time.Duration) error {
	return l.Log(Entry{
		Type:    TypePlanner,
		UserID:  user,
		Summary: fmt.Sprintf("%d actions", actions),
		Data:    map[string]any{"actions": actions, "duration_ms": took.Milliseconds()},
	})
}

// LogAction records one action outcome
func (l *Log) LogAction(user, kind, status, message string, err error) error {
	e := Entry{Type: TypeAction, UserID: user, Kind: kind, Status: status, Summary: message}
	if err != nil {
		e.Error = err.Error()
	}
	return l.Log(e)
}

// LogResume records a confirmed external action
func (l *Log) LogResume(user, integration string, err error) error {
	e := Entry{Type: TypeResume, UserID: user, Kind: integration, Status: "done", Summary: "ran " + integration}
	if err != nil {
		e.Status = "failed"
		e.Error = err.Error()
	}
	return l.Log(e)
}

// LogError records a turn-level failure
func (l *Log) LogError(user, summary string, err error) error {
	e := Entry{Type: TypeError, UserID: user, Summary: summary}
	if err != nil {
		e.Error = err.Error()
	}
	return l.Log(e)
}

// Recent returns the last n entries, oldest first
func (l *Log) Recent(n int) ([]Entry, error) {
	all, err := l.readAll()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// Since returns entries at or after t
func (l *Log) Since(t time.Time) ([]Entry, error) {
	return l.Range(t, time.Time{})
}

// Range returns entries in [from, to). A zero to means no upper bound.
func (l *Log) Range(from, to time.Time) ([]Entry, error) {
	return l.filter(0, func(e Entry) bool {
		return !e.Timestamp.Before(from) && (to.IsZero() || e.Timestamp.Before(to))
	})
}

// ByType returns the last limit entries of type t (all when limit <= 0)
func (l *Log) ByType(t Type, limit int) ([]Entry, error) {
	return l.filter(limit, func(e Entry) bool { return e.Type == t })
}

// Search returns the last limit entries whose summary, kind or error
// contains query, ignoring case
func (l *Log) Search(query string, limit int) ([]Entry, error) {
	q := strings.ToLower(query)
	return l.filter(limit, func(e Entry) bool {
		return strings.Contains(strings.ToLower(e.Summary), q) ||
			strings.Contains(strings.ToLower(e.Kind), q) ||
			strings.Contains(strings.ToLower(e.Error), q)
	})
}

func (l *Log) filter(limit int, keep func(Entry) bool) ([]Entry, error) {
	all, err := l.readAll()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		if keep(e) {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// readAll skips lines that fail to parse
func (l *Log) readAll() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}
