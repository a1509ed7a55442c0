package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/steward/internal/actions"
	"github.com/vthunder/steward/internal/resolve"
	"github.com/vthunder/steward/internal/retry"
	"github.com/vthunder/steward/internal/timewin"
	"github.com/vthunder/steward/internal/types"
)

const maxListDays = 31

func (e *Engine) addEvent(ctx context.Context, t *turn, p *actions.AddCalendarEvent) step {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return invalid("I need a title for the event.")
	}
	if strings.TrimSpace(p.Date) == "" {
		return invalid(fmt.Sprintf("Which day should I put %q on?", title))
	}
	day, err := timewin.ParseDate(p.Date, e.now())
	if err != nil {
		return invalid(fmt.Sprintf("I couldn't understand the date %q. Please use YYYY-MM-DD.", p.Date))
	}
	if strings.TrimSpace(p.StartTime) == "" {
		return invalid(fmt.Sprintf("What time should %q start?", title))
	}
	w, err := timewin.Derive(p.StartTime, p.EndTime, int(p.DurationMinutes))
	if err != nil {
		return invalidClock(err)
	}

	if e.deps.Calendar == nil {
		return failed(ErrUnavailable, "Your calendar isn't connected, so I couldn't add that event.")
	}
	token, err := e.token(ctx, types.ServiceCalendar)
	if err != nil {
		return failed(err, describe("calendar", err))
	}

	draft := types.EventDraft{
		Title:    title,
		Start:    timewin.At(day, w.StartMinutes),
		End:      timewin.At(day, w.EndMinutes),
		Location: p.Location,
		Notes:    p.Notes,
	}
	id, err := mutate(ctx, e, t, "create_event", func(ctx context.Context, key string) (string, error) {
		return e.deps.Calendar.CreateEvent(ctx, token, draft, key)
	})
	if err != nil {
		return failed(err, fmt.Sprintf("I couldn't add %q to your calendar. %s", title, describe("calendar", err)))
	}

	start, end := dayRange(day)
	events, err := read(ctx, e, "verify_event", func(ctx context.Context) ([]types.CalendarEvent, error) {
		return e.deps.Calendar.ListEvents(ctx, token, start, end, "")
	})
	if err != nil || findEvent(events, id, draft) == nil {
		return e.unverified(types.ServiceCalendar, err,
			fmt.Sprintf("I tried to add %q but couldn't find it on your calendar afterwards. Please check before trying again.", title))
	}

	return changed(types.ServiceCalendar, fmt.Sprintf("Added %q on %s, %s-%s.%s",
		title, day.Format("Mon Jan 2"), w.StartLabel, w.EndLabel, assumptions(w)))
}

func (e *Engine) updateEvent(ctx context.Context, t *turn, p *actions.UpdateCalendarEvent) step {
	if p.EventID == "" && p.MatchTitle == "" && p.MatchDate == "" && p.MatchTime == "" {
		return invalid("Which event should I change?")
	}
	if e.deps.Calendar == nil {
		return failed(ErrUnavailable, "Your calendar isn't connected, so I couldn't change that event.")
	}
	token, err := e.token(ctx, types.ServiceCalendar)
	if err != nil {
		return failed(err, describe("calendar", err))
	}

	ref, stop := e.lookupEvent(ctx, token, eventLookup{
		ID: p.EventID, Title: p.MatchTitle, Date: p.MatchDate, Time: p.MatchTime,
		Reason: "Which event should I update?",
	})
	if stop != nil {
		return *stop
	}
	snap := ref.Event

	var patch types.EventPatch
	if v := strings.TrimSpace(p.NewTitle); v != "" {
		patch.Title = &v
	}
	patch.Location = p.NewLocation
	patch.Notes = p.NewNotes

	var window *timewin.Window
	if p.NewDate != "" || p.NewStartTime != "" || p.NewEndTime != "" || p.NewDurationMinutes > 0 {
		var day time.Time
		switch {
		case p.NewDate != "":
			if day, err = timewin.ParseDate(p.NewDate, e.now()); err != nil {
				return invalid(fmt.Sprintf("I couldn't understand the date %q. Please use YYYY-MM-DD.", p.NewDate))
			}
		case snap != nil:
			day = snap.Start.In(e.cfg.Location)
		default:
			return invalid("I need the new date and start time to move that event.")
		}

		startLabel := p.NewStartTime
		if startLabel == "" {
			if snap == nil {
				return invalid("I need the new start time to move that event.")
			}
			startLabel = timewin.Label(timewin.MinutesOf(snap.Start.In(e.cfg.Location)))
		}
		duration := int(p.NewDurationMinutes)
		if p.NewEndTime == "" && duration <= 0 && snap != nil {
			duration = int(snap.End.Sub(snap.Start) / time.Minute)
		}
		w, err := timewin.Derive(startLabel, p.NewEndTime, duration)
		if err != nil {
			return invalidClock(err)
		}
		window = &w
		start, end := timewin.At(day, w.StartMinutes), timewin.At(day, w.EndMinutes)
		patch.Start, patch.End = &start, &end
	}

	title := eventTitle(patch.Title, snap, p.MatchTitle)
	if patch.Empty() {
		return invalid(fmt.Sprintf("You didn't say what to change about %q.", title))
	}

	if _, err := mutate(ctx, e, t, "update_event", func(ctx context.Context, key string) (struct{}, error) {
		return struct{}{}, e.deps.Calendar.UpdateEvent(ctx, token, ref.ID, patch, key)
	}); err != nil {
		return failed(err, fmt.Sprintf("I couldn't update %q. %s", title, describe("calendar", err)))
	}

	start, end := e.verifyRange(patch.Start, snap)
	events, err := read(ctx, e, "verify_event", func(ctx context.Context) ([]types.CalendarEvent, error) {
		return e.deps.Calendar.ListEvents(ctx, token, start, end, "")
	})
	if err != nil || !eventMatchesPatch(findEventByID(events, ref.ID), patch) {
		return e.unverified(types.ServiceCalendar, err,
			fmt.Sprintf("I sent the change for %q but your calendar doesn't show it yet. Please check it.", title))
	}

	msg := fmt.Sprintf("Updated %q.", title)
	if window != nil {
		msg = fmt.Sprintf("Updated %q: now %s, %s-%s.%s", title,
			patch.Start.Format("Mon Jan 2"), window.StartLabel, window.EndLabel, assumptions(*window))
	}
	return changed(types.ServiceCalendar, msg)
}

func (e *Engine) deleteEvent(ctx context.Context, t *turn, p *actions.DeleteCalendarEvent) step {
	title := strings.TrimSpace(p.MatchTitle)
	bulk := false
	if f := strings.TrimSpace(p.Filter); f != "" {
		if e.deps.Resolver.IsBulkDelete(f, resolve.DomainCalendar) {
			bulk = true
		} else if title == "" {
			title = f
		}
	}
	// A range alone never widens a delete. It scopes a bulk delete only when
	// the wording asked for one or an explicit title narrows it.
	hasRange := p.RangeStart != "" || p.RangeEnd != ""
	if p.EventID == "" && hasRange && !bulk && strings.TrimSpace(p.MatchTitle) != "" {
		bulk = true
	}
	date := p.MatchDate
	if date == "" && hasRange && (p.RangeStart == "" || p.RangeEnd == "" || p.RangeStart == p.RangeEnd) {
		date = p.RangeStart
		if date == "" {
			date = p.RangeEnd
		}
	}
	if !bulk && p.EventID == "" && title == "" && date == "" && p.MatchTime == "" {
		return invalid("Which event should I delete?")
	}

	if e.deps.Calendar == nil {
		return failed(ErrUnavailable, "Your calendar isn't connected, so I couldn't delete anything.")
	}
	token, err := e.token(ctx, types.ServiceCalendar)
	if err != nil {
		return failed(err, describe("calendar", err))
	}
	if bulk {
		return e.deleteEventRange(ctx, t, token, p, p.MatchTitle)
	}

	ref, stop := e.lookupEvent(ctx, token, eventLookup{
		ID: p.EventID, Title: title, Date: date, Time: p.MatchTime,
		Reason:          "Which event should I delete?",
		ConfirmFallback: true,
	})
	if stop != nil {
		return *stop
	}
	name := eventTitle(nil, ref.Event, title)

	if _, err := mutate(ctx, e, t, "delete_event", func(ctx context.Context, key string) (struct{}, error) {
		return struct{}{}, e.deps.Calendar.DeleteEvent(ctx, token, ref.ID, key)
	}); err != nil && !retry.IsNotFound(err) {
		return failed(err, fmt.Sprintf("I couldn't delete %q. %s", name, describe("calendar", err)))
	}

	start, end := e.verifyRange(nil, ref.Event)
	events, err := read(ctx, e, "verify_event", func(ctx context.Context) ([]types.CalendarEvent, error) {
		return e.deps.Calendar.ListEvents(ctx, token, start, end, "")
	})
	if err != nil || findEventByID(events, ref.ID) != nil {
		return e.unverified(types.ServiceCalendar, err,
			fmt.Sprintf("I tried to delete %q but it still seems to be on your calendar.", name))
	}
	return changed(types.ServiceCalendar, fmt.Sprintf("Deleted %q from your calendar.", name))
}

func (e *Engine) deleteEventRange(ctx context.Context, t *turn, token string, p *actions.DeleteCalendarEvent, titleFilter string) step {
	now := e.now()
	var first, last time.Time
	var err error
	switch {
	case p.RangeStart != "" || p.RangeEnd != "":
		startText, endText := p.RangeStart, p.RangeEnd
		if startText == "" {
			startText = endText
		}
		if endText == "" {
			endText = startText
		}
		if first, err = timewin.ParseDate(startText, now); err != nil {
			return invalid(fmt.Sprintf("I couldn't understand the date %q. Please use YYYY-MM-DD.", startText))
		}
		if last, err = timewin.ParseDate(endText, now); err != nil {
			return invalid(fmt.Sprintf("I couldn't understand the date %q. Please use YYYY-MM-DD.", endText))
		}
		if last.Before(first) {
			return invalid("The end of that date range is before its start.")
		}
	case p.MatchDate != "":
		if first, err = timewin.ParseDate(p.MatchDate, now); err != nil {
			return invalid(fmt.Sprintf("I couldn't understand the date %q. Please use YYYY-MM-DD.", p.MatchDate))
		}
		last = first
	default:
		first, _ = timewin.ParseDate("today", now)
		last = first
	}
	start := first
	_, end := dayRange(last)

	timeFilter := ""
	if p.MatchTime != "" {
		m, err := timewin.ParseClock(p.MatchTime)
		if err != nil {
			return invalidClock(err)
		}
		timeFilter = timewin.Label(m)
	}

	label := first.Format("Mon Jan 2")
	if !last.Equal(first) {
		label += " to " + last.Format("Mon Jan 2")
	}

	count, err := mutate(ctx, e, t, "delete_events_in_range", func(ctx context.Context, key string) (int, error) {
		return e.deps.Calendar.DeleteEventsInRange(ctx, token, start, end, titleFilter, timeFilter, key)
	})
	if err != nil {
		return failed(err, fmt.Sprintf("I couldn't clear your calendar for %s. %s", label, describe("calendar", err)))
	}

	remaining, err := read(ctx, e, "verify_events", func(ctx context.Context) ([]types.CalendarEvent, error) {
		return e.deps.Calendar.ListEvents(ctx, token, start, end, titleFilter)
	})
	left := 0
	for _, ev := range remaining {
		if timeFilter == "" || timewin.Label(timewin.MinutesOf(ev.Start.In(e.cfg.Location))) == timeFilter {
			left++
		}
	}
	if err != nil || left > 0 {
		return e.unverified(types.ServiceCalendar, err,
			fmt.Sprintf("I deleted %d event(s) for %s, but %d still show on your calendar.", count, label, left))
	}
	if count == 0 {
		return done(fmt.Sprintf("There was nothing on your calendar to delete for %s.", label))
	}
	return changed(types.ServiceCalendar, fmt.Sprintf("Deleted %d event(s) from your calendar for %s.", count, label))
}

func (e *Engine) listEvents(ctx context.Context, p *actions.ListCalendarEvents) step {
	if e.deps.Calendar == nil {
		return failed(ErrUnavailable, "Your calendar isn't connected.")
	}
	now := e.now()
	dateText := p.Date
	if strings.TrimSpace(dateText) == "" {
		dateText = "today"
	}
	day, err := timewin.ParseDate(dateText, now)
	if err != nil {
		return invalid(fmt.Sprintf("I couldn't understand the date %q. Please use YYYY-MM-DD.", p.Date))
	}
	days := int(p.Days)
	if days < 1 {
		days = 1
	}
	if days > maxListDays {
		days = maxListDays
	}

	token, err := e.token(ctx, types.ServiceCalendar)
	if err != nil {
		return failed(err, describe("calendar", err))
	}
	start := day
	end := day.AddDate(0, 0, days)
	events, err := read(ctx, e, "list_events", func(ctx context.Context) ([]types.CalendarEvent, error) {
		return e.deps.Calendar.ListEvents(ctx, token, start, end, p.Query)
	})
	if err != nil {
		return failed(err, "I couldn't read your calendar. "+describe("calendar", err))
	}

	period := day.Format("Mon Jan 2")
	if days > 1 {
		period = fmt.Sprintf("%s to %s", day.Format("Mon Jan 2"), end.AddDate(0, 0, -1).Format("Mon Jan 2"))
	}
	if len(events) == 0 {
		return done(fmt.Sprintf("Nothing on your calendar for %s.", period))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your calendar for %s:", period)
	for _, ev := range events {
		s, en := ev.Start.In(e.cfg.Location), ev.End.In(e.cfg.Location)
		fmt.Fprintf(&b, "\n- %s %s-%s %s", s.Format("Mon Jan 2"), s.Format("15:04"), en.Format("15:04"), ev.Title)
		if ev.Location != "" {
			fmt.Fprintf(&b, " (%s)", ev.Location)
		}
	}
	return done(b.String())
}

type eventLookup struct {
	ID, Title, Date, Time string
	Reason                string
	ConfirmFallback       bool
}

// lookupEvent resolves an event reference. A non-nil step means the action
// ends there.
func (e *Engine) lookupEvent(ctx context.Context, token string, l eventLookup) (*types.ResolvedReference, *step) {
	now := e.now()
	q := resolve.EventQuery{Title: l.Title, Reference: now}
	start, end := now.AddDate(0, 0, -e.cfg.LookbackDays), now.AddDate(0, 0, e.cfg.LookaheadDays)
	if l.Date != "" {
		day, err := timewin.ParseDate(l.Date, now)
		if err != nil {
			s := invalid(fmt.Sprintf("I couldn't understand the date %q. Please use YYYY-MM-DD.", l.Date))
			return nil, &s
		}
		q.Date = day
		start, end = dayRange(day)
	}
	if l.Time != "" {
		m, err := timewin.ParseClock(l.Time)
		if err != nil {
			s := invalidClock(err)
			return nil, &s
		}
		q.Minutes, q.HasTime = m, true
	}

	events, err := read(ctx, e, "list_events", func(ctx context.Context) ([]types.CalendarEvent, error) {
		return e.deps.Calendar.ListEvents(ctx, token, start, end, "")
	})
	if err != nil {
		s := failed(err, "I couldn't read your calendar. "+describe("calendar", err))
		return nil, &s
	}

	if l.ID != "" {
		if ev := findEventByID(events, l.ID); ev != nil {
			return &types.ResolvedReference{ID: ev.ID, Event: ev, MatchedBy: "id"}, nil
		}
		return &types.ResolvedReference{ID: l.ID, MatchedBy: "id"}, nil
	}

	ref, err := e.deps.Resolver.ResolveEvent(ctx, q, events, l.Reason, l.ConfirmFallback)
	if err == nil {
		return ref, nil
	}

	what := l.Title
	if what == "" {
		what = "that description"
	}
	var amb *resolve.AmbiguousError
	var s step
	switch {
	case errors.Is(err, resolve.ErrNotFound):
		s = failed(err, fmt.Sprintf("I couldn't find an event matching %q.", what))
	case errors.Is(err, resolve.ErrSkipped):
		s = cancelled("Okay, I left your calendar as it is.")
	case errors.As(err, &amb):
		s = failed(err, fmt.Sprintf("I found several events matching %q: %s. Which one do you mean?", what, strings.Join(amb.Labels, "; ")))
	default:
		s = failed(err, describe("calendar", err))
	}
	return nil, &s
}

// verifyRange picks the window to re-read after a change
func (e *Engine) verifyRange(newStart *time.Time, snap *types.CalendarEvent) (time.Time, time.Time) {
	switch {
	case newStart != nil:
		return dayRange(newStart.In(e.cfg.Location))
	case snap != nil:
		return dayRange(snap.Start.In(e.cfg.Location))
	}
	now := e.now()
	return now.AddDate(0, 0, -e.cfg.LookbackDays), now.AddDate(0, 0, e.cfg.LookaheadDays)
}

func dayRange(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}

func findEventByID(events []types.CalendarEvent, id string) *types.CalendarEvent {
	for i := range events {
		if events[i].ID == id {
			return &events[i]
		}
	}
	return nil
}

// findEvent locates a created event by id, or by title and start when the
// backend did not return an id
func findEvent(events []types.CalendarEvent, id string, draft types.EventDraft) *types.CalendarEvent {
	if id != "" {
		return findEventByID(events, id)
	}
	for i := range events {
		if events[i].Title == draft.Title && events[i].Start.Equal(draft.Start) {
			return &events[i]
		}
	}
	return nil
}

func eventMatchesPatch(ev *types.CalendarEvent, patch types.EventPatch) bool {
	if ev == nil {
		return false
	}
	switch {
	case patch.Title != nil && ev.Title != *patch.Title:
		return false
	case patch.Start != nil && !ev.Start.Equal(*patch.Start):
		return false
	case patch.End != nil && !ev.End.Equal(*patch.End):
		return false
	case patch.Location != nil && ev.Location != *patch.Location:
		return false
	case patch.Notes != nil && ev.Notes != *patch.Notes:
		return false
	}
	return true
}

func eventTitle(newTitle *string, snap *types.CalendarEvent, hint string) string {
	switch {
	case snap != nil:
		return snap.Title
	case newTitle != nil:
		return *newTitle
	case hint != "":
		return hint
	}
	return "the event"
}

// assumptions explains rounding and defaults back to the user
func assumptions(w timewin.Window) string {
	if len(w.Adjustments) == 0 {
		return ""
	}
	return " Note: " + strings.Join(w.Adjustments, "; ") + "."
}

func invalid(msg string) step {
	return failed(fmt.Errorf("%w: %s", ErrInvalid, msg), msg)
}

func invalidClock(err error) step {
	var ce *timewin.ClockError
	if errors.As(err, &ce) {
		msg := fmt.Sprintf("I couldn't understand the time %q. Please use HH:MM.", ce.Input)
		return failed(fmt.Errorf("%w: %w", ErrInvalid, err), msg)
	}
	return failed(fmt.Errorf("%w: %w", ErrInvalid, err), "I couldn't understand that time. Please use HH:MM.")
}
