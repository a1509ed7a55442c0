// Package gtd is a local JSON-file task list. It implements the same task
// service contract as the Google Tasks client, so it backs the CLI in
// offline mode and works without any account.
package gtd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/retry"
	"github.com/vthunder/steward/internal/types"
)

const storeFilename = "user_tasks.json"

// Store manages the task list with thread-safe operations. Every mutation
// is written to disk before it returns.
type Store struct {
	path string
	data storeData
	mu   sync.RWMutex
	loc  *time.Location
	now  func() time.Time
}

// NewStore creates a store with the given state directory path
func NewStore(statePath string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{
		path: filepath.Join(statePath, storeFilename),
		data: storeData{Tasks: []Task{}, Keys: map[string]string{}},
		loc:  loc,
		now:  time.Now,
	}
}

// Load reads the task list from disk
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.data = storeData{Tasks: []Task{}, Keys: map[string]string{}}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read task store: %w", err)
	}
	var loaded storeData
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse task store: %w", err)
	}
	if loaded.Tasks == nil {
		loaded.Tasks = []Task{}
	}
	if loaded.Keys == nil {
		loaded.Keys = map[string]string{}
	}
	s.data = loaded
	return nil
}

// save writes the task list; caller holds the write lock
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write task store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace task store: %w", err)
	}
	return nil
}

// idCounter keeps ids unique within the same nanosecond
var idCounter int64

func generateID() string {
	count := atomic.AddInt64(&idCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), count)
}

// Tasks returns open and completed tasks sorted by order
func (s *Store) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Task
	for _, t := range s.data.Tasks {
		if t.Status == StatusCanceled {
			continue
		}
		result = append(result, t)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Order < result[j].Order
	})
	return result
}

// FetchTopTasks implements the task service contract. The token is ignored.
func (s *Store) FetchTopTasks(ctx context.Context, token string) ([]types.TaskItem, error) {
	tasks := s.Tasks()
	out := make([]types.TaskItem, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, s.toItem(t))
	}
	return out, nil
}

// CreateTask adds a task. Replaying a key returns the task it created.
func (s *Store) CreateTask(ctx context.Context, token string, draft types.TaskDraft, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.data.Keys[key]; ok && key != "" {
		logging.Debug("gtd", "create replayed for key %s -> %s", key, id)
		return id, nil
	}

	task := Task{
		ID:     generateID(),
		Title:  strings.TrimSpace(draft.Title),
		Notes:  draft.Notes,
		When:   "inbox",
		List:   draft.List,
		Status: StatusOpen,
		Order:  float64(s.now().UnixNano()),
	}
	if draft.Due != nil {
		task.When = draft.Due.In(s.loc).Format("2006-01-02")
	}
	if err := ValidateTask(&task); err != nil {
		return "", err
	}

	s.data.Tasks = append(s.data.Tasks, task)
	if key != "" {
		s.data.Keys[key] = task.ID
	}
	if err := s.save(); err != nil {
		return "", err
	}
	logging.Info("gtd", "added task %s: %s", task.ID, task.Title)
	return task.ID, nil
}

// PushTaskChanges applies patch. Completing a repeating task schedules its
// next occurrence.
func (s *Store) PushTaskChanges(ctx context.Context, token, taskID string, patch types.TaskPatch, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(taskID)
	if i < 0 {
		return notFound(taskID)
	}
	updated := s.data.Tasks[i]
	if patch.Title != nil {
		updated.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Notes != nil {
		updated.Notes = *patch.Notes
	}
	if patch.Due != nil {
		updated.When = patch.Due.In(s.loc).Format("2006-01-02")
	}
	if err := ValidateTask(&updated); err != nil {
		return err
	}

	if patch.Completed != nil {
		switch {
		case *patch.Completed && updated.Status != StatusCompleted:
			now := s.now()
			updated.Status = StatusCompleted
			updated.CompletedAt = &now
			if updated.Repeat != "" {
				s.data.Tasks = append(s.data.Tasks, s.nextOccurrence(updated))
			}
		case !*patch.Completed:
			updated.Status = StatusOpen
			updated.CompletedAt = nil
		}
	}
	s.data.Tasks[i] = updated
	return s.save()
}

// DeleteTask removes a task
func (s *Store) DeleteTask(ctx context.Context, token, taskID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(taskID)
	if i < 0 {
		return notFound(taskID)
	}
	s.data.Tasks = append(s.data.Tasks[:i], s.data.Tasks[i+1:]...)
	return s.save()
}

func (s *Store) indexOf(id string) int {
	for i := range s.data.Tasks {
		if s.data.Tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// notFound mirrors a remote 404 so callers classify it the same way
func notFound(id string) error {
	return &retry.StatusError{Service: "tasks", Code: 404, Message: "task not found: " + id}
}

func (s *Store) toItem(t Task) types.TaskItem {
	item := types.TaskItem{
		ID:        t.ID,
		Title:     t.Title,
		Notes:     t.Notes,
		Completed: t.Status == StatusCompleted,
		List:      t.List,
	}
	var due time.Time
	var err error
	switch {
	case datePattern.MatchString(t.When):
		due, err = time.ParseInLocation("2006-01-02", t.When, s.loc)
	case t.When == "today":
		n := s.now().In(s.loc)
		due = time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, s.loc)
	}
	if err == nil && !due.IsZero() {
		item.Due = &due
	}
	return item
}

// nextOccurrence creates the next occurrence of a repeating task
func (s *Store) nextOccurrence(task Task) Task {
	next := Task{
		ID:     generateID(),
		Title:  task.Title,
		Notes:  task.Notes,
		When:   task.When,
		List:   task.List,
		Repeat: task.Repeat,
		Status: StatusOpen,
		Order:  float64(s.now().UnixNano()),
	}
	if datePattern.MatchString(task.When) {
		if base, err := time.Parse("2006-01-02", task.When); err == nil {
			next.When = calculateNextDate(base, task.Repeat).Format("2006-01-02")
		}
	}
	return next
}

// calculateNextDate calculates the next occurrence date based on repeat pattern
func calculateNextDate(base time.Time, repeat string) time.Time {
	switch repeat {
	case "weekly":
		return base.AddDate(0, 0, 7)
	case "biweekly":
		return base.AddDate(0, 0, 14)
	case "monthly":
		return base.AddDate(0, 1, 0)
	case "quarterly":
		return base.AddDate(0, 3, 0)
	case "yearly":
		return base.AddDate(1, 0, 0)
	default:
		return base.AddDate(0, 0, 1)
	}
}

// SetRepeat marks a task as repeating
func (s *Store) SetRepeat(taskID, repeat string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(taskID)
	if i < 0 {
		return notFound(taskID)
	}
	updated := s.data.Tasks[i]
	updated.Repeat = repeat
	if err := ValidateTask(&updated); err != nil {
		return err
	}
	s.data.Tasks[i] = updated
	return s.save()
}
