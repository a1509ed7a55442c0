package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vthunder/steward/internal/actions"
	"github.com/vthunder/steward/internal/bridge"
	"github.com/vthunder/steward/internal/pending"
	"github.com/vthunder/steward/internal/retry"
	"github.com/vthunder/steward/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newEngine(d Deps) *Engine {
	if d.Tokens == nil {
		d.Tokens = allTokens()
	}
	d.Now = func() time.Time { return testNow }
	n := 0
	d.NewKey = func() string {
		n++
		return fmt.Sprintf("key-%d", n)
	}
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	cfg.Retry = retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond}
	return New(d, cfg)
}

func statuses(r *TurnResult) []Status {
	out := make([]Status, len(r.Outcomes))
	for i, o := range r.Outcomes {
		out[i] = o.Status
	}
	return out
}

func TestRunTurn_OrderAndStopAtClarification(t *testing.T) {
	tasks := newFakeTasks()
	store := pending.NewMemoryStore()
	e := newEngine(Deps{Tasks: tasks, Pending: store})

	res := e.RunTurn(context.Background(), `[
		{"add_task": {"title": "Pack"}},
		{"await_user": {"question": "Which airport?"}},
		{"add_task": {"title": "Book taxi"}}
	]`)

	require.NoError(t, res.ParseError)
	assert.Equal(t, []string{"create:Pack"}, tasks.Calls(), "nothing after the clarification executes")
	assert.Equal(t, StatePaused, res.State)
	assert.Equal(t, []Status{StatusExecuted, StatusPaused, StatusSkipped}, statuses(res))
	assert.Equal(t, []string{`Added task "Pack".`, "Which airport?"}, res.Messages)
	assert.Equal(t, 1, res.Summary.Skipped)

	plan, err := store.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, plan, "a paused turn keeps its plan even after a mutation")
	assert.Equal(t, pending.StatusAwaitUser, plan.Status)
	assert.Equal(t, "Which airport?", plan.Question)

	var resumed actions.Action
	require.NoError(t, resumed.UnmarshalJSON(plan.Action))
	assert.Equal(t, actions.KindAwaitUser, resumed.Kind)
}

func TestAddEvent_WriteAcceptedButReadFails(t *testing.T) {
	raw := `[{"add_calendar_event": {"title": "Dentist", "date": "2026-10-20", "start_time": "09:00"}}]`

	t.Run("read returns 404", func(t *testing.T) {
		cal := newFakeCalendar()
		cal.listErr = &retry.StatusError{Service: "calendar", Code: 404}
		res := newEngine(Deps{Calendar: cal}).RunTurn(context.Background(), raw)

		require.Len(t, res.Outcomes, 1)
		assert.Equal(t, StatusFailed, res.Outcomes[0].Status)
		assert.ErrorIs(t, res.Outcomes[0].Err, ErrUnverified)
		assert.False(t, res.Refresh.Calendar)
		assert.False(t, res.Refresh.Summary)
		assert.Equal(t, []string{"create", "list"}, cal.Calls())
		assert.Contains(t, res.Messages[0], "couldn't find it")
	})

	t.Run("write silently dropped", func(t *testing.T) {
		cal := newFakeCalendar()
		cal.dropWrites = true
		res := newEngine(Deps{Calendar: cal}).RunTurn(context.Background(), raw)

		assert.ErrorIs(t, res.Outcomes[0].Err, ErrUnverified)
		assert.False(t, res.Refresh.Calendar)
	})

	t.Run("verified", func(t *testing.T) {
		cal := newFakeCalendar()
		res := newEngine(Deps{Calendar: cal}).RunTurn(context.Background(), raw)

		assert.Equal(t, StatusExecuted, res.Outcomes[0].Status)
		assert.True(t, res.Refresh.Calendar)
		assert.True(t, res.Refresh.Summary)
		assert.Equal(t, `Added "Dentist" on Tue Oct 20, 09:00-10:00. Note: no end time given, assumed 60 min.`, res.Messages[0])
	})
}

func TestAddEvent_ExplainsRounding(t *testing.T) {
	cal := newFakeCalendar()
	res := newEngine(Deps{Calendar: cal}).RunTurn(context.Background(),
		`[{"add_calendar_event": {"title": "Run", "date": "tomorrow", "start_time": "07:07", "end_time": "07:52"}}]`)

	require.Equal(t, StatusExecuted, res.Outcomes[0].Status)
	assert.Contains(t, res.Messages[0], "07:05-07:50")
	assert.Contains(t, res.Messages[0], "start 07:07 rounded to 07:05")

	for _, ev := range cal.events {
		assert.Equal(t, at(20, 7, 5), ev.Start)
		assert.Equal(t, at(20, 7, 50), ev.End)
	}
}

func TestAddEvent_InvalidTimeContinuesWithNextAction(t *testing.T) {
	tasks := newFakeTasks()
	res := newEngine(Deps{Calendar: newFakeCalendar(), Tasks: tasks}).RunTurn(context.Background(), `[
		{"add_calendar_event": {"title": "Call", "date": "2026-10-20", "start_time": "25:00"}},
		{"add_task": {"title": "Call Ana"}}
	]`)

	assert.Equal(t, []Status{StatusFailed, StatusExecuted}, statuses(res))
	assert.ErrorIs(t, res.Outcomes[0].Err, ErrInvalid)
	assert.Contains(t, res.Messages[0], `"25:00"`)
	assert.Equal(t, []string{"create:Call Ana"}, tasks.Calls())
}

func TestRetry_SameIdempotencyKeyAcrossAttempts(t *testing.T) {
	cal := newFakeCalendar()
	cal.createErrs = []error{&retry.StatusError{Service: "calendar", Code: 503}, nil}
	res := newEngine(Deps{Calendar: cal}).RunTurn(context.Background(),
		`[{"add_calendar_event": {"title": "Gym", "date": "2026-10-21", "start_time": "18:00", "duration_minutes": 45}}]`)

	assert.Equal(t, StatusExecuted, res.Outcomes[0].Status)
	assert.Equal(t, []string{"key-1", "key-1"}, cal.keys)
	assert.Equal(t, []string{"create", "create", "list"}, cal.Calls())
}

func TestUpdateEvent_AmbiguousPublishesBothCandidates(t *testing.T) {
	raw := `[{"update_calendar_event": {"match_title": "Sync", "new_title": "Sync (moved)"}}]`
	events := func() *fakeCalendar {
		return newFakeCalendar(
			types.CalendarEvent{ID: "s1", Title: "Sync", Start: at(20, 10, 0), End: at(20, 10, 30)},
			types.CalendarEvent{ID: "s2", Title: "Sync", Start: at(20, 15, 0), End: at(20, 15, 30)},
		)
	}

	run := func(t *testing.T, cal *fakeCalendar, answer func([]types.CalendarEvent) bridge.CalendarPickDecision) (*TurnResult, []types.CalendarEvent) {
		bridges := bridge.NewBridges(time.Second)
		requests, unsubscribe := bridges.CalendarPick.Subscribe(1)
		defer unsubscribe()

		seen := make(chan []types.CalendarEvent, 1)
		go func() {
			req := <-requests
			seen <- req.Payload.Candidates
			_ = req.Resolve(answer(req.Payload.Candidates))
		}()

		res := newEngine(Deps{Calendar: cal, Bridges: bridges}).RunTurn(context.Background(), raw)
		return res, <-seen
	}

	t.Run("skip leaves both untouched", func(t *testing.T) {
		cal := events()
		res, candidates := run(t, cal, func([]types.CalendarEvent) bridge.CalendarPickDecision { return bridge.Skip() })

		require.Len(t, candidates, 2)
		assert.Equal(t, "s1", candidates[0].ID)
		assert.Equal(t, "s2", candidates[1].ID)
		assert.Equal(t, StatusCancelled, res.Outcomes[0].Status)
		assert.Equal(t, []string{"list"}, cal.Calls())
		assert.False(t, res.Refresh.Calendar)
	})

	t.Run("picked candidate is updated", func(t *testing.T) {
		cal := events()
		res, _ := run(t, cal, func(c []types.CalendarEvent) bridge.CalendarPickDecision { return bridge.Pick(c[1].ID) })

		assert.Equal(t, StatusExecuted, res.Outcomes[0].Status)
		assert.Contains(t, cal.Calls(), "update:s2")
		assert.Equal(t, "Sync (moved)", cal.events["s2"].Title)
		assert.Equal(t, "Sync", cal.events["s1"].Title)
		assert.True(t, res.Refresh.Calendar)
	})

	t.Run("no bridge asks in the reply", func(t *testing.T) {
		cal := events()
		res := newEngine(Deps{Calendar: cal}).RunTurn(context.Background(), raw)

		assert.Equal(t, StatusFailed, res.Outcomes[0].Status)
		assert.Contains(t, res.Messages[0], "Which one do you mean?")
		assert.Equal(t, []string{"list"}, cal.Calls())
	})
}

func TestUpdateEvent_MoveKeepsDuration(t *testing.T) {
	cal := newFakeCalendar(types.CalendarEvent{ID: "d", Title: "Dentist", Start: at(20, 9, 0), End: at(20, 9, 45)})
	res := newEngine(Deps{Calendar: cal}).RunTurn(context.Background(),
		`[{"update_calendar_event": {"match_title": "dentist", "match_date": "2026-10-20", "new_start_time": "11:00"}}]`)

	require.Equal(t, StatusExecuted, res.Outcomes[0].Status, res.Messages)
	assert.Equal(t, at(20, 11, 0), cal.events["d"].Start)
	assert.Equal(t, at(20, 11, 45), cal.events["d"].End)
}

func TestDeleteEvent_BulkGuard(t *testing.T) {
	seed := func() *fakeCalendar {
		return newFakeCalendar(
			types.CalendarEvent{ID: "a1", Title: "Alarm", Start: at(19, 6, 30), End: at(19, 6, 35)},
			types.CalendarEvent{ID: "a2", Title: "Standup", Start: at(19, 9, 30), End: at(19, 9, 45)},
			types.CalendarEvent{ID: "a3", Title: "Lunch", Start: at(20, 12, 0), End: at(20, 13, 0)},
		)
	}

	t.Run("loose wording deletes one event", func(t *testing.T) {
		cal := seed()
		res := newEngine(Deps{Calendar: cal}).RunTurn(context.Background(),
			`[{"delete_calendar_event": {"filter": "delete my alarm"}}]`)

		assert.NotContains(t, cal.Calls(), "delete_range")
		assert.Contains(t, cal.Calls(), "delete:a1")
		assert.Len(t, cal.events, 2)
		assert.Equal(t, `Deleted "Alarm" from your calendar.`, res.Messages[0])
	})

	t.Run("explicit bulk clears the day", func(t *testing.T) {
		cal := seed()
		res := newEngine(Deps{Calendar: cal}).RunTurn(context.Background(),
			`[{"delete_calendar_event": {"filter": "delete all my calendar events"}}]`)

		assert.Contains(t, cal.Calls(), "delete_range")
		assert.Len(t, cal.events, 1)
		assert.Contains(t, cal.events, "a3")
		assert.Equal(t, "Deleted 2 event(s) from your calendar for Mon Oct 19.", res.Messages[0])
		assert.True(t, res.Refresh.Calendar)
	})

	t.Run("range with loose wording deletes one event", func(t *testing.T) {
		cal := seed()
		res := newEngine(Deps{Calendar: cal}).RunTurn(context.Background(),
			`[{"delete_calendar_event": {"filter": "delete my alarm", "range_start": "2026-10-19"}}]`)

		assert.NotContains(t, cal.Calls(), "delete_range")
		assert.Contains(t, cal.Calls(), "delete:a1")
		assert.Len(t, cal.events, 2)
		assert.Contains(t, cal.events, "a2")
		assert.Equal(t, `Deleted "Alarm" from your calendar.`, res.Messages[0])
	})

	t.Run("range with a title clears only that title", func(t *testing.T) {
		cal := seed()
		newEngine(Deps{Calendar: cal}).RunTurn(context.Background(),
			`[{"delete_calendar_event": {"match_title": "Standup", "range_start": "2026-10-19", "range_end": "2026-10-20"}}]`)

		assert.Contains(t, cal.Calls(), "delete_range")
		assert.Len(t, cal.events, 2)
		assert.NotContains(t, cal.events, "a2")
	})
}

func TestDeleteTask_Confirmation(t *testing.T) {
	seed := func() *fakeTasks {
		return newFakeTasks(
			types.TaskItem{ID: "1", Title: "Water plants upstairs"},
			types.TaskItem{ID: "2", Title: "Water plants downstairs"},
		)
	}
	ask := func(t *testing.T, tasks *fakeTasks, raw string, answer bridge.TaskDeleteDecision) (*TurnResult, bridge.TaskDeleteRequest) {
		bridges := bridge.NewBridges(time.Second)
		requests, unsubscribe := bridges.TaskDelete.Subscribe(1)
		defer unsubscribe()

		seen := make(chan bridge.TaskDeleteRequest, 1)
		go func() {
			req := <-requests
			seen <- req.Payload
			_ = req.Resolve(answer)
		}()
		res := newEngine(Deps{Tasks: tasks, Bridges: bridges}).RunTurn(context.Background(), raw)
		return res, <-seen
	}

	t.Run("tie is confirmed by id", func(t *testing.T) {
		tasks := seed()
		res, req := ask(t, tasks, `[{"delete_task": {"match_title": "water plants"}}]`, bridge.Confirm("1"))

		assert.False(t, req.Bulk)
		assert.Len(t, req.Candidates, 2)
		assert.Equal(t, []string{"delete:1"}, tasks.Calls())
		assert.Equal(t, `Deleted the task "Water plants upstairs".`, res.Messages[0])
	})

	t.Run("bulk cancelled", func(t *testing.T) {
		tasks := seed()
		res, req := ask(t, tasks, `[{"delete_task": {"filter": "delete all my tasks"}}]`, bridge.Cancel())

		assert.True(t, req.Bulk)
		assert.Empty(t, tasks.Calls())
		assert.Equal(t, StatusCancelled, res.Outcomes[0].Status)
	})

	t.Run("bulk confirmed", func(t *testing.T) {
		tasks := seed()
		res, _ := ask(t, tasks, `[{"delete_task": {"filter": "delete all my tasks"}}]`, bridge.Confirm())

		assert.Len(t, tasks.Calls(), 2)
		assert.Equal(t, "Deleted 2 tasks.", res.Messages[0])
		assert.True(t, res.Refresh.Tasks)
	})
}

func TestUpdateTask_CompleteAndVerify(t *testing.T) {
	tasks := newFakeTasks(types.TaskItem{ID: "7", Title: "Renew passport"})
	res := newEngine(Deps{Tasks: tasks}).RunTurn(context.Background(),
		`[{"update_task": {"match_title": "passport", "completed": true}}]`)

	require.Equal(t, StatusExecuted, res.Outcomes[0].Status)
	assert.Equal(t, `Marked "Renew passport" as done.`, res.Messages[0])
	assert.True(t, tasks.tasks[0].Completed)
}

func TestPendingPlanLifecycle(t *testing.T) {
	ctx := context.Background()
	store := pending.NewMemoryStore()
	e := newEngine(Deps{Tasks: newFakeTasks(), Pending: store})

	res := e.RunTurn(ctx, `[{"await_user": {"question": "Which list should I use?"}}]`)
	assert.Equal(t, []string{"Which list should I use?"}, res.Messages)
	plan, _ := store.Get(ctx)
	require.NotNil(t, plan)

	e.RunTurn(ctx, `[{"list_tasks": {}}]`)
	plan, _ = store.Get(ctx)
	assert.NotNil(t, plan, "informational actions keep the plan")

	e.RunTurn(ctx, `[{"add_task": {"title": "Groceries"}}]`)
	plan, _ = store.Get(ctx)
	assert.Nil(t, plan, "a mutation clears the plan")
}

func TestExternalAction_SavesResumablePlan(t *testing.T) {
	ctx := context.Background()
	store := pending.NewMemoryStore()
	res := newEngine(Deps{Pending: store}).RunTurn(ctx,
		`[{"external_action": {"question": "Connect your bank?", "integration": "plaid"}}]`)

	assert.Equal(t, StatePaused, res.State)
	plan, _ := store.Get(ctx)
	require.NotNil(t, plan)
	assert.Equal(t, pending.StatusExternalAction, plan.Status)
	assert.Contains(t, string(plan.Action), `"external_action"`)
}

func TestRespond_SuppressedAfterInformational(t *testing.T) {
	tasks := newFakeTasks(types.TaskItem{ID: "1", Title: "Buy milk"})
	e := newEngine(Deps{Tasks: tasks, Memory: &fakeMemory{}})

	res := e.RunTurn(context.Background(), `[{"list_tasks": {}}, {"respond": "You have one thing to do: buy milk."}]`)
	assert.Equal(t, []string{"You have one thing to do: buy milk."}, res.Messages)

	res = e.RunTurn(context.Background(), `[{"respond": "Hi."}, {"respond": "Anything else?"}]`)
	assert.Equal(t, []string{"Hi.", "Anything else?"}, res.Messages)

	res = e.RunTurn(context.Background(), `[{"remember": {"fact": "Ana likes tea"}}, {"add_task": {"title": "Buy tea"}}, {"respond": "Done."}]`)
	assert.Len(t, res.Messages, 3, "a mutation between resets the suppression")
	assert.Equal(t, "Done.", res.Messages[2])
}

func TestRespond_KeepsFailedInformationalMessage(t *testing.T) {
	res := newEngine(Deps{}).RunTurn(context.Background(),
		`[{"list_tasks": {}}, {"respond": "Here is everything on your list."}]`)

	require.Len(t, res.Outcomes, 2)
	assert.Equal(t, StatusFailed, res.Outcomes[0].Status)
	assert.Equal(t, []string{"Your task list isn't connected.", "Here is everything on your list."}, res.Messages)
}

func TestMissingToken(t *testing.T) {
	tasks := newFakeTasks()
	res := newEngine(Deps{Tasks: tasks, Tokens: staticTokens{}}).RunTurn(context.Background(),
		`[{"add_task": {"title": "Call mom"}}, {"respond": "Added."}]`)

	assert.Equal(t, []Status{StatusFailed, StatusExecuted}, statuses(res))
	assert.ErrorIs(t, res.Outcomes[0].Err, ErrUnauthenticated)
	assert.Contains(t, res.Messages[0], "not signed in")
	assert.Empty(t, tasks.Calls())
}

func TestSendEmail(t *testing.T) {
	raw := `[{"send_email": {"to": "ana@example.com", "subject": "Lunch", "body": "Friday?"}}]`

	t.Run("sent and verified", func(t *testing.T) {
		mail := newFakeMail()
		res := newEngine(Deps{Mail: mail}).RunTurn(context.Background(), raw)
		assert.Equal(t, 1, res.Summary.EmailsSent)
		assert.True(t, res.Refresh.Mail)
		assert.Equal(t, "Email sent to ana@example.com.", res.Messages[0])
	})

	t.Run("not in sent folder", func(t *testing.T) {
		mail := newFakeMail()
		mail.hideAll = true
		res := newEngine(Deps{Mail: mail}).RunTurn(context.Background(), raw)
		assert.Equal(t, 1, res.Summary.EmailsFailed)
		assert.ErrorIs(t, res.Outcomes[0].Err, ErrUnverified)
		assert.False(t, res.Refresh.Mail)
	})

	t.Run("no recipients", func(t *testing.T) {
		res := newEngine(Deps{Mail: newFakeMail()}).RunTurn(context.Background(),
			`[{"send_email": {"to": [], "subject": "x", "body": "y"}}]`)
		assert.ErrorIs(t, res.Outcomes[0].Err, ErrInvalid)
		assert.Equal(t, 0, res.Summary.EmailsFailed)
	})

	t.Run("edited in preview", func(t *testing.T) {
		mail := newFakeMail()
		bridges := bridge.NewBridges(time.Second)
		requests, unsubscribe := bridges.Mail.Subscribe(1)
		defer unsubscribe()
		go func() {
			req := <-requests
			edited := req.Payload.Email
			edited.Subject = "Lunch on Friday"
			_ = req.Resolve(bridge.SendEdited(edited))
		}()

		res := newEngine(Deps{Mail: mail, Bridges: bridges}).RunTurn(context.Background(),
			`[{"send_email": {"to": "ana@example.com", "subject": "Lunch", "body": "Friday?", "preview": true}}]`)
		require.Equal(t, 1, res.Summary.EmailsSent)
		for _, sent := range mail.sent {
			assert.Equal(t, "Lunch on Friday", sent.Subject)
		}
	})

	t.Run("declined in preview", func(t *testing.T) {
		mail := newFakeMail()
		bridges := bridge.NewBridges(time.Second)
		requests, unsubscribe := bridges.Mail.Subscribe(1)
		defer unsubscribe()
		go func() {
			req := <-requests
			_ = req.Resolve(bridge.DontSend())
		}()

		e := newEngine(Deps{Mail: mail, Bridges: bridges})
		e.cfg.PreviewMail = true
		res := e.RunTurn(context.Background(), raw)
		assert.Equal(t, StatusCancelled, res.Outcomes[0].Status)
		assert.Empty(t, mail.sent)
		assert.Equal(t, 0, res.Summary.EmailsFailed)
	})
}

func TestRunTurn_ParseFailure(t *testing.T) {
	res := newEngine(Deps{}).RunTurn(context.Background(), "Sure, I'll do that!")
	assert.True(t, errors.Is(res.ParseError, actions.ErrNoArray))
	assert.Empty(t, res.Messages)
	assert.Empty(t, res.Outcomes)
}

func TestExecute_CancelledContextSkipsEverything(t *testing.T) {
	tasks := newFakeTasks()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newEngine(Deps{Tasks: tasks}).RunTurn(ctx, `[{"add_task": {"title": "a"}}, {"add_task": {"title": "b"}}]`)
	assert.Equal(t, []Status{StatusSkipped, StatusSkipped}, statuses(res))
	assert.Empty(t, tasks.Calls())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)
	e := newEngine(Deps{Tasks: newFakeTasks(), Metrics: m})

	e.RunTurn(context.Background(), `[{"add_task": {"title": "a"}}]`)
	e.RunTurn(context.Background(), `not json`)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("add_task", "executed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parseFailures))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.action("x", StatusFailed) })
}

func TestAddTask_VerifiesWithoutID(t *testing.T) {
	t.Run("new task found by title", func(t *testing.T) {
		tasks := newFakeTasks()
		tasks.omitIDs = true
		res := newEngine(Deps{Tasks: tasks}).RunTurn(context.Background(), `[{"add_task": {"title": "Buy milk"}}]`)

		assert.Equal(t, StatusExecuted, res.Outcomes[0].Status)
		assert.True(t, res.Refresh.Tasks)
	})

	t.Run("older task with the same title does not count", func(t *testing.T) {
		tasks := newFakeTasks(types.TaskItem{ID: "1", Title: "Buy milk"})
		tasks.omitIDs = true
		tasks.dropCreates = true
		res := newEngine(Deps{Tasks: tasks}).RunTurn(context.Background(), `[{"add_task": {"title": "Buy milk"}}]`)

		assert.Equal(t, StatusFailed, res.Outcomes[0].Status)
		assert.ErrorIs(t, res.Outcomes[0].Err, ErrUnverified)
		assert.Equal(t, []string{`I tried to add the task "Buy milk" but couldn't find it on your list afterwards.`}, res.Messages)
	})
}

func TestDeleteTask_UnknownID(t *testing.T) {
	tasks := newFakeTasks(types.TaskItem{ID: "1", Title: "Buy milk"})
	res := newEngine(Deps{Tasks: tasks}).RunTurn(context.Background(), `[{"delete_task": {"task_id": "missing"}}]`)

	assert.Empty(t, tasks.Calls())
	assert.Equal(t, StatusFailed, res.Outcomes[0].Status)
	assert.Equal(t, []string{"I couldn't find that task on your list."}, res.Messages)
	assert.False(t, res.Refresh.Tasks)
	assert.Len(t, tasks.tasks, 1)
}
