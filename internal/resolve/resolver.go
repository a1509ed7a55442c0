package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vthunder/steward/internal/bridge"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/types"
)

var (
	// ErrNotFound means no candidate matched the hints
	ErrNotFound = errors.New("no matching item")
	// ErrSkipped means the user declined to pick a candidate
	ErrSkipped = errors.New("selection skipped")
	// ErrAmbiguous means several candidates tied and no bridge could decide
	ErrAmbiguous = errors.New("ambiguous reference")
)

// AmbiguousError lists the tied candidates when escalation was impossible
type AmbiguousError struct {
	Labels []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous reference: %s", strings.Join(e.Labels, "; "))
}

func (e *AmbiguousError) Unwrap() error { return ErrAmbiguous }

// Resolver turns hints into concrete identities. Calendar ties are
// escalated through the pick bridge; a nil bridge yields *AmbiguousError.
type Resolver struct {
	lex  *lexicon
	pick *bridge.Bridge[bridge.CalendarPickRequest, bridge.CalendarPickDecision]
}

// New creates a resolver
func New(vocab Vocabulary, pick *bridge.Bridge[bridge.CalendarPickRequest, bridge.CalendarPickDecision]) *Resolver {
	return &Resolver{lex: vocab.compile(), pick: pick}
}

// ResolveEvent picks one event for q. reason is shown to the user if a
// choice is needed. When confirmFallback is set a nearest-event fallback is
// also confirmed through the bridge before it is used.
func (r *Resolver) ResolveEvent(ctx context.Context, q EventQuery, events []types.CalendarEvent, reason string, confirmFallback bool) (*types.ResolvedReference, error) {
	d := r.DecideEvent(q, events)
	switch {
	case len(d.Scores) == 0:
		return nil, ErrNotFound

	case d.Pick != nil && !(d.Fallback && confirmFallback):
		ev := d.Pick.Event
		matchedBy := "score"
		if d.Fallback {
			matchedBy = "fallback"
			logging.Info("resolve", "no positive score for %q, using nearest event %q", q.Title, ev.Title)
		} else {
			logging.Debug("resolve", "picked %q (score %d)", ev.Title, d.Pick.Total)
		}
		return &types.ResolvedReference{ID: ev.ID, Event: &ev, MatchedBy: matchedBy}, nil
	}

	tied := d.Tied
	if d.Pick != nil {
		tied = []EventScore{*d.Pick}
	}
	candidates := make([]types.CalendarEvent, len(tied))
	labels := make([]string, len(tied))
	for i, s := range tied {
		candidates[i] = s.Event
		labels[i] = EventLabel(s.Event)
	}

	if r.pick == nil {
		return nil, &AmbiguousError{Labels: labels}
	}

	logging.Info("resolve", "escalating %d candidates for %q", len(candidates), q.Title)
	answer, err := r.pick.Ask(ctx, bridge.CalendarPickRequest{
		Candidates: candidates,
		Reason:     reason,
		Labels:     labels,
		SkipLabel:  "Skip",
	})
	if err != nil && !errors.Is(err, bridge.ErrTimeout) {
		return nil, fmt.Errorf("calendar choice: %w", err)
	}
	if answer.Skip {
		return nil, ErrSkipped
	}
	for i := range candidates {
		if candidates[i].ID == answer.EventID {
			ev := candidates[i]
			return &types.ResolvedReference{ID: ev.ID, Event: &ev, MatchedBy: "user"}, nil
		}
	}
	return nil, fmt.Errorf("picked event %q is not a candidate: %w", answer.EventID, ErrNotFound)
}

// EventLabel renders an event for choice lists
func EventLabel(ev types.CalendarEvent) string {
	return fmt.Sprintf("%s (%s %s-%s)", ev.Title, ev.Start.Format("Mon Jan 2"), ev.Start.Format("15:04"), ev.End.Format("15:04"))
}

// TaskLabel renders a task for choice lists
func TaskLabel(t types.TaskItem) string {
	if t.Due == nil {
		return t.Title
	}
	return fmt.Sprintf("%s (due %s)", t.Title, t.Due.Format("Mon Jan 2"))
}
