// Package pending persists the single outstanding clarification question.
package pending

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Status values for a pending plan
const (
	StatusAwaitUser      = "await_user"
	StatusExternalAction = "external_action"
)

// Plan is the outstanding question that halted a turn
type Plan struct {
	Status   string `json:"status"`
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
	// Action is the serialized action to resume when the user confirms
	Action    json.RawMessage `json:"action,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store holds at most one plan. Save overwrites; Get returns nil when empty.
type Store interface {
	Get(ctx context.Context) (*Plan, error)
	Save(ctx context.Context, plan Plan) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the plan in process memory
type MemoryStore struct {
	mu   sync.Mutex
	plan *Plan
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plan == nil {
		return nil, nil
	}
	p := *s.plan
	return &p, nil
}

func (s *MemoryStore) Save(ctx context.Context, plan Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}
	s.plan = &plan
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = nil
	return nil
}
