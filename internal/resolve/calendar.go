package resolve

import (
	"math"
	"sort"
	"time"

	"github.com/vthunder/steward/internal/timewin"
	"github.com/vthunder/steward/internal/types"
)

// EventQuery holds the hints available for finding a calendar event
type EventQuery struct {
	Title string
	// Date is the hinted day (zero when absent)
	Date time.Time
	// Minutes is the hinted start time; only used when HasTime is set
	Minutes int
	HasTime bool
	// Reference anchors the nearest-event fallback when Date is absent
	Reference time.Time
}

// anchor is the instant the fallback measures distance from
func (q EventQuery) anchor() time.Time {
	if q.Date.IsZero() {
		return q.Reference
	}
	if q.HasTime {
		return timewin.At(q.Date, q.Minutes)
	}
	return timewin.At(q.Date, 12*60)
}

// EventScore is one candidate with its weighted components
type EventScore struct {
	Event types.CalendarEvent
	Title int
	Time  int
	Date  int
	Total int
}

// Component caps
const (
	titleExact       = 95
	titleContainment = 75
	titleCoverage    = 70
	timeMax          = 40
	timeWindow       = 60
)

// dateScores by whole-day distance
var dateScores = []int{40, 25, 10}

// ScoreEvent computes title, time and date components for one event
func (r *Resolver) ScoreEvent(q EventQuery, ev types.CalendarEvent) EventScore {
	s := EventScore{Event: ev}
	start := ev.Start
	if loc := q.location(); loc != nil {
		start = start.In(loc)
	}

	query := Normalize(q.Title)
	title := Normalize(ev.Title)
	switch {
	case query == "":
	case query == title:
		s.Title = titleExact
	case contains(query, title):
		s.Title = titleContainment
	default:
		qt := r.lex.tokens(q.Title)
		if len(qt) > 0 {
			matched := overlap(qt, r.lex.tokens(ev.Title))
			s.Title = int(math.Round(titleCoverage * float64(matched) / float64(len(qt))))
		}
	}
	if s.Title > titleExact {
		s.Title = titleExact
	}

	if q.HasTime {
		diff := abs(timewin.MinutesOf(start) - q.Minutes)
		if diff < timeWindow {
			s.Time = int(math.Round(timeMax * float64(timeWindow-diff) / timeWindow))
		}
	}

	if !q.Date.IsZero() {
		if d := dayDistance(start, q.Date); d < len(dateScores) {
			s.Date = dateScores[d]
		}
	}

	s.Total = s.Title + s.Time + s.Date
	return s
}

func (q EventQuery) location() *time.Location {
	switch {
	case !q.Date.IsZero():
		return q.Date.Location()
	case !q.Reference.IsZero():
		return q.Reference.Location()
	}
	return nil
}

// EventDecision is the outcome of scoring candidates
type EventDecision struct {
	// Scores holds every candidate, best first
	Scores []EventScore
	// Pick is set when one candidate leads unambiguously
	Pick *EventScore
	// Tied holds the candidates that need a human decision
	Tied []EventScore
	// Fallback is set when no candidate scored above zero
	Fallback bool
}

// DecideEvent scores events and decides between auto-pick and escalation.
// A unique positive leader is picked. Candidates tied at a positive best
// score are escalated. When nothing scores above zero the event nearest
// the query's anchor is used, and a tie on distance is escalated too.
func (r *Resolver) DecideEvent(q EventQuery, events []types.CalendarEvent) EventDecision {
	var d EventDecision
	if len(events) == 0 {
		return d
	}

	for _, ev := range events {
		d.Scores = append(d.Scores, r.ScoreEvent(q, ev))
	}
	sort.SliceStable(d.Scores, func(i, j int) bool {
		a, b := d.Scores[i], d.Scores[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		if !a.Event.Start.Equal(b.Event.Start) {
			return a.Event.Start.Before(b.Event.Start)
		}
		return a.Event.ID < b.Event.ID
	})

	best := d.Scores[0].Total
	if best > 0 {
		tied := leaders(d.Scores, func(s EventScore) int { return -s.Total })
		d.decide(tied)
		return d
	}

	d.Fallback = true
	anchor := q.anchor()
	if anchor.IsZero() {
		d.Tied = d.Scores
		return d
	}
	byDistance := make([]EventScore, len(d.Scores))
	copy(byDistance, d.Scores)
	sort.SliceStable(byDistance, func(i, j int) bool {
		return distance(byDistance[i].Event, anchor) < distance(byDistance[j].Event, anchor)
	})
	d.decide(leaders(byDistance, func(s EventScore) int { return int(distance(s.Event, anchor) / time.Minute) }))
	return d
}

func (d *EventDecision) decide(tied []EventScore) {
	if len(tied) == 1 {
		pick := tied[0]
		d.Pick = &pick
		return
	}
	d.Tied = tied
}

// leaders returns the prefix of sorted scores sharing the first key
func leaders(sorted []EventScore, key func(EventScore) int) []EventScore {
	n := 1
	for n < len(sorted) && key(sorted[n]) == key(sorted[0]) {
		n++
	}
	return sorted[:n]
}

func distance(ev types.CalendarEvent, anchor time.Time) time.Duration {
	d := ev.Start.Sub(anchor)
	if d < 0 {
		return -d
	}
	return d
}

// dayDistance returns the absolute number of calendar days between a and b,
// using each date's wall-clock day
func dayDistance(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return abs(int(da.Sub(db).Hours() / 24))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
