package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthunder/steward/internal/bridge"
	"github.com/vthunder/steward/internal/types"
)

func newResolver() *Resolver {
	return New(DefaultVocabulary(), nil)
}

func day(d int) time.Time {
	return time.Date(2026, 10, d, 0, 0, 0, 0, time.UTC)
}

func at(d, h, m int) time.Time {
	return time.Date(2026, 10, d, h, m, 0, 0, time.UTC)
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"Reunión con José":  "reunion con jose",
		"  Buy   MILK!! ":   "buy milk",
		"Año-nuevo/plan":    "ano nuevo plan",
		"Café, 2x":          "cafe 2x",
		"":                  "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestIsBulkDelete(t *testing.T) {
	r := newResolver()
	tests := []struct {
		text   string
		domain Domain
		want   bool
	}{
		{"delete my alarm", DomainCalendar, false},
		{"delete all my calendar events", DomainCalendar, true},
		{"clear my calendar", DomainCalendar, true},
		{"all", DomainCalendar, true},
		{"every", DomainTasks, true},
		{"delete all events with Bob", DomainCalendar, false},
		{"delete all my tasks", DomainCalendar, false},
		{"delete all my tasks", DomainTasks, true},
		{"borrar todas mis tareas", DomainTasks, true},
		{"events", DomainCalendar, false},
		{"", DomainCalendar, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.IsBulkDelete(tt.text, tt.domain), "IsBulkDelete(%q)", tt.text)
	}
}

func TestMatchTasks_Filtering(t *testing.T) {
	r := newResolver()
	tasks := []types.TaskItem{
		{ID: "1", Title: "Buy milk"},
		{ID: "2", Title: "Call the dentist about the crown"},
		{ID: "3", Title: "Pay electricity bill"},
		{ID: "4", Title: "Renew passport"},
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"milk", []string{"1"}},
		{"buy milk today", []string{"1"}},          // candidate title inside the query
		{"dentist", []string{"2"}},                 // containment
		{"call dentist crown appt", []string{"2"}}, // 3 of 4 tokens
		{"electric bill", []string{"3"}},           // prefix tolerant
		{"passports renewal", []string{"4"}},
		{"groceries", nil},
	}
	for _, tt := range tests {
		d := r.MatchTasks(TaskQuery{Title: tt.query}, tasks)
		var got []string
		for _, m := range d.Matches {
			got = append(got, m.Task.ID)
		}
		assert.Equal(t, tt.want, got, "query %q", tt.query)
	}
}

func TestMatchTasks_Ranking(t *testing.T) {
	r := newResolver()
	due := at(20, 9, 0)
	tasks := []types.TaskItem{
		{ID: "a", Title: "Report draft", Notes: "outline"},
		{ID: "b", Title: "Report", Due: &due},
		{ID: "c", Title: "Report final"},
	}

	d := r.MatchTasks(TaskQuery{Title: "report", Date: day(20)}, tasks)
	best, ok := d.Best()
	require.True(t, ok)
	assert.Equal(t, "b", best.Task.ID)
	assert.False(t, d.Ambiguous())

	d = r.MatchTasks(TaskQuery{Title: "report", NoDescription: true}, tasks)
	best, _ = d.Best()
	assert.Equal(t, "b", best.Task.ID, "exact title plus empty notes")

	d = r.MatchTasks(TaskQuery{Title: "reports"}, []types.TaskItem{tasks[0], tasks[2]})
	assert.Len(t, d.Matches, 2, "prefix tolerant token match")
}

func TestMatchTasks_TieBreakAndAmbiguity(t *testing.T) {
	r := newResolver()
	tasks := []types.TaskItem{
		{ID: "2", Title: "Water plants upstairs"},
		{ID: "1", Title: "Water plants downstairs"},
	}
	d := r.MatchTasks(TaskQuery{Title: "water plants"}, tasks)
	require.Len(t, d.Matches, 2)
	assert.True(t, d.Ambiguous())
	assert.Equal(t, "1", d.Matches[0].Task.ID, "lexical tiebreak on title")
	assert.Len(t, d.Tied(), 2)
}

func TestScoreEvent_Components(t *testing.T) {
	r := newResolver()
	ev := types.CalendarEvent{ID: "e", Title: "Team sync", Start: at(20, 10, 0), End: at(20, 10, 30)}

	s := r.ScoreEvent(EventQuery{Title: "team sync", Date: day(20), Minutes: 10 * 60, HasTime: true}, ev)
	assert.Equal(t, 95, s.Title)
	assert.Equal(t, 40, s.Time)
	assert.Equal(t, 40, s.Date)

	s = r.ScoreEvent(EventQuery{Title: "sync", Date: day(21), Minutes: 10*60 + 30, HasTime: true}, ev)
	assert.Equal(t, 75, s.Title)
	assert.Equal(t, 20, s.Time)
	assert.Equal(t, 25, s.Date)

	s = r.ScoreEvent(EventQuery{Title: "sync review", Date: day(22), Minutes: 12 * 60, HasTime: true}, ev)
	assert.Equal(t, 35, s.Title)
	assert.Equal(t, 0, s.Time)
	assert.Equal(t, 10, s.Date)

	s = r.ScoreEvent(EventQuery{Date: day(25)}, ev)
	assert.Equal(t, 0, s.Total)
}

func TestDecideEvent(t *testing.T) {
	r := newResolver()
	events := []types.CalendarEvent{
		{ID: "s1", Title: "Sync", Start: at(20, 10, 0), End: at(20, 10, 30)},
		{ID: "s2", Title: "Sync", Start: at(20, 15, 0), End: at(20, 15, 30)},
		{ID: "d", Title: "Dentist", Start: at(21, 9, 0), End: at(21, 10, 0)},
	}

	t.Run("tie escalates", func(t *testing.T) {
		d := r.DecideEvent(EventQuery{Title: "Sync"}, events)
		assert.Nil(t, d.Pick)
		require.Len(t, d.Tied, 2)
		assert.Equal(t, "s1", d.Tied[0].Event.ID)
		assert.Equal(t, "s2", d.Tied[1].Event.ID)
	})

	t.Run("time breaks the tie", func(t *testing.T) {
		d := r.DecideEvent(EventQuery{Title: "Sync", Minutes: 15 * 60, HasTime: true}, events)
		require.NotNil(t, d.Pick)
		assert.Equal(t, "s2", d.Pick.Event.ID)
	})

	t.Run("fallback to nearest", func(t *testing.T) {
		d := r.DecideEvent(EventQuery{Title: "yoga", Reference: at(21, 8, 0)}, events)
		assert.True(t, d.Fallback)
		require.NotNil(t, d.Pick)
		assert.Equal(t, "d", d.Pick.Event.ID)
	})

	t.Run("no events", func(t *testing.T) {
		d := r.DecideEvent(EventQuery{Title: "x"}, nil)
		assert.Empty(t, d.Scores)
		assert.Nil(t, d.Pick)
	})
}

func TestResolveEvent_EscalatesThroughBridge(t *testing.T) {
	pick := bridge.New[bridge.CalendarPickRequest, bridge.CalendarPickDecision]("pick", bridge.Skip(), time.Second)
	requests, unsubscribe := pick.Subscribe(1)
	defer unsubscribe()
	r := New(DefaultVocabulary(), pick)

	events := []types.CalendarEvent{
		{ID: "s1", Title: "Sync", Start: at(20, 10, 0), End: at(20, 10, 30)},
		{ID: "s2", Title: "Sync", Start: at(20, 15, 0), End: at(20, 15, 30)},
	}

	go func() {
		req := <-requests
		_ = req.Resolve(bridge.Pick(req.Payload.Candidates[1].ID))
	}()

	ref, err := r.ResolveEvent(context.Background(), EventQuery{Title: "Sync"}, events, "Which Sync?", false)
	require.NoError(t, err)
	assert.Equal(t, "s2", ref.ID)
	assert.Equal(t, "user", ref.MatchedBy)
	require.NotNil(t, ref.Event)
}

func TestResolveEvent_SkipAndNoBridge(t *testing.T) {
	events := []types.CalendarEvent{
		{ID: "s1", Title: "Sync", Start: at(20, 10, 0)},
		{ID: "s2", Title: "Sync", Start: at(20, 15, 0)},
	}

	pick := bridge.New[bridge.CalendarPickRequest, bridge.CalendarPickDecision]("pick", bridge.Skip(), 10*time.Millisecond)
	_, err := New(DefaultVocabulary(), pick).ResolveEvent(context.Background(), EventQuery{Title: "Sync"}, events, "", false)
	assert.ErrorIs(t, err, ErrSkipped, "timeout falls back to skip")

	_, err = newResolver().ResolveEvent(context.Background(), EventQuery{Title: "Sync"}, events, "", false)
	var amb *AmbiguousError
	require.True(t, errors.As(err, &amb))
	assert.Len(t, amb.Labels, 2)
	assert.ErrorIs(t, err, ErrAmbiguous)

	_, err = newResolver().ResolveEvent(context.Background(), EventQuery{Title: "Sync"}, nil, "", false)
	assert.ErrorIs(t, err, ErrNotFound)
}
