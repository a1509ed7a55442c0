package resolve

import (
	"sort"
	"strings"
	"time"

	"github.com/vthunder/steward/internal/timewin"
	"github.com/vthunder/steward/internal/types"
)

// TaskQuery holds the hints available for finding a task
type TaskQuery struct {
	Title string
	// Date is the hinted due day (zero when absent)
	Date time.Time
	// Minutes is the hinted due time; only used when HasTime is set
	Minutes       int
	HasTime       bool
	NoDescription bool
}

// TaskMatch is a task that passed the title filter, with its rank score
type TaskMatch struct {
	Task  types.TaskItem
	Score int
	Exact bool
}

// TaskDecision is the ranked result of matching a query against tasks
type TaskDecision struct {
	Matches []TaskMatch
}

// Best returns the top match, if any
func (d TaskDecision) Best() (TaskMatch, bool) {
	if len(d.Matches) == 0 {
		return TaskMatch{}, false
	}
	return d.Matches[0], true
}

// Ambiguous reports whether the top two matches share the same score
func (d TaskDecision) Ambiguous() bool {
	return len(d.Matches) > 1 && d.Matches[0].Score == d.Matches[1].Score
}

// Tied returns every match sharing the top score
func (d TaskDecision) Tied() []TaskMatch {
	if len(d.Matches) == 0 {
		return nil
	}
	n := 1
	for n < len(d.Matches) && d.Matches[n].Score == d.Matches[0].Score {
		n++
	}
	return d.Matches[:n]
}

// Score weights for ranking task matches
const (
	scoreDueDate       = 4
	scoreNoDescription = 3
	scoreDueTime       = 2
	scoreExactTitle    = 1
)

// MatchTasks filters tasks by title and ranks the survivors. With no title
// hint every task is a candidate as long as some other hint is present.
func (r *Resolver) MatchTasks(q TaskQuery, tasks []types.TaskItem) TaskDecision {
	query := Normalize(q.Title)
	queryTokens := r.lex.tokens(q.Title)
	otherHints := !q.Date.IsZero() || q.HasTime || q.NoDescription

	var matches []TaskMatch
	for _, t := range tasks {
		title := Normalize(t.Title)
		if query == "" {
			if !otherHints {
				continue
			}
		} else if !contains(query, title) && !r.tokenAccept(queryTokens, r.lex.tokens(t.Title)) {
			continue
		}

		m := TaskMatch{Task: t, Exact: query != "" && query == title}
		if m.Exact {
			m.Score += scoreExactTitle
		}
		if q.NoDescription && strings.TrimSpace(t.Notes) == "" {
			m.Score += scoreNoDescription
		}
		if t.Due != nil {
			if !q.Date.IsZero() && sameDay(*t.Due, q.Date) {
				m.Score += scoreDueDate
			}
			if q.HasTime && timewin.Round5(timewin.MinutesOf(*t.Due)) == timewin.Round5(q.Minutes) {
				m.Score += scoreDueTime
			}
		}
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		at, bt := strings.ToLower(a.Task.Title), strings.ToLower(b.Task.Title)
		if at != bt {
			return at < bt
		}
		return a.Task.ID < b.Task.ID
	})
	return TaskDecision{Matches: matches}
}

// tokenAccept applies the overlap rule: at least 60% of query tokens, or at
// least two tokens when the query has three or more
func (r *Resolver) tokenAccept(query, candidate []string) bool {
	if len(query) == 0 || len(candidate) == 0 {
		return false
	}
	matched := overlap(query, candidate)
	if matched*5 >= len(query)*3 {
		return true
	}
	return len(query) >= 3 && matched >= 2
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
