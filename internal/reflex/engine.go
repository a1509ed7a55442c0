// Package reflex classifies short replies to a pending question without a
// planner round trip.
package reflex

import (
	"sort"
	"sync"

	"github.com/vthunder/steward/internal/logging"
)

// DefaultReflexes are the built-in English and Spanish quick replies
func DefaultReflexes() []Reflex {
	return []Reflex{
		{
			Name:     "affirm",
			Trigger:  Trigger{Pattern: `yes|yeah|yep|yup|sure|ok|okay|confirm|confirmed|do it|go ahead|go for it|please do|sounds good|s[ií]|dale|claro|vale|hazlo|adelante|de acuerdo`, MaxWords: 4},
			Intent:   IntentAffirm,
			Priority: 10,
		},
		{
			Name:     "deny",
			Trigger:  Trigger{Pattern: `no|nope|nah|cancel|stop|never ?mind|forget it|don'?t|no thanks|no,? thanks|cancela|cancelar|d[eé]jalo|olv[ií]dalo|no gracias`, MaxWords: 4},
			Intent:   IntentDeny,
			Priority: 20,
		},
	}
}

// Engine holds the quick-reply rules
type Engine struct {
	reflexes []*Reflex
	mu       sync.RWMutex
}

// NewEngine creates an engine with the given rules, or the defaults when none
// are given. Rules with an invalid pattern are skipped.
func NewEngine(reflexes ...Reflex) *Engine {
	if len(reflexes) == 0 {
		reflexes = DefaultReflexes()
	}
	e := &Engine{}
	e.set(reflexes)
	return e
}

func (e *Engine) set(reflexes []Reflex) {
	list := make([]*Reflex, 0, len(reflexes))
	for i := range reflexes {
		r := reflexes[i]
		if err := r.compile(); err != nil {
			logging.Warn("reflex", "skipping %s: %v", r.Name, err)
			continue
		}
		list = append(list, &r)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority > list[j].Priority
	})

	e.mu.Lock()
	e.reflexes = list
	e.mu.Unlock()
}

// Count returns the number of active rules
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.reflexes)
}

// Classify returns the intent of the highest priority matching rule
func (e *Engine) Classify(content string) Intent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, r := range e.reflexes {
		if res := r.Match(content); res.Matched {
			logging.Debug("reflex", "%q matched %s", logging.Truncate(content, 40), r.Name)
			return res.Intent
		}
	}
	return IntentNone
}
