package pending

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const planFilename = "pending_plan.json"

// FileStore keeps the plan as a JSON file in the state directory
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by <statePath>/pending_plan.json
func NewFileStore(statePath string) *FileStore {
	return &FileStore{path: filepath.Join(statePath, planFilename)}
}

func (s *FileStore) Get(ctx context.Context) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending plan: %w", err)
	}

	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse pending plan: %w", err)
	}
	return &p, nil
}

func (s *FileStore) Save(ctx context.Context, plan Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal pending plan: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temp file and rename so a crash never leaves half a plan
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write pending plan: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace pending plan: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear pending plan: %w", err)
	}
	return nil
}
