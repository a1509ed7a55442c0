package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/steward/internal/actions"
	"github.com/vthunder/steward/internal/bridge"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/resolve"
	"github.com/vthunder/steward/internal/retry"
	"github.com/vthunder/steward/internal/timewin"
	"github.com/vthunder/steward/internal/types"
)

func (e *Engine) addTask(ctx context.Context, t *turn, p *actions.AddTask) step {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return invalid("I need a title for the task.")
	}
	due, stop := e.parseDue(p.DueDate, p.DueTime, nil)
	if stop != nil {
		return *stop
	}
	if e.deps.Tasks == nil {
		return failed(ErrUnavailable, "Your task list isn't connected, so I couldn't add that task.")
	}
	token, err := e.token(ctx, types.ServiceTasks)
	if err != nil {
		return failed(err, describe("task list", err))
	}

	// without an id from the backend, only a new same-titled task proves the create
	before, err := e.fetchTasks(ctx, token)
	if err != nil {
		logging.Debug("dispatch", "task list unreadable before create: %v", err)
		before = nil
	}

	draft := types.TaskDraft{Title: title, Notes: p.Notes, Due: due, List: p.List}
	id, err := mutate(ctx, e, t, "create_task", func(ctx context.Context, key string) (string, error) {
		return e.deps.Tasks.CreateTask(ctx, token, draft, key)
	})
	if err != nil {
		return failed(err, fmt.Sprintf("I couldn't add the task %q. %s", title, describe("task list", err)))
	}

	tasks, err := e.fetchTasks(ctx, token)
	if err != nil || !taskCreated(before, tasks, id, title) {
		return e.unverified(types.ServiceTasks, err,
			fmt.Sprintf("I tried to add the task %q but couldn't find it on your list afterwards.", title))
	}
	return changed(types.ServiceTasks, fmt.Sprintf("Added task %q%s.", title, dueSuffix(due, p.DueTime != "")))
}

func (e *Engine) updateTask(ctx context.Context, t *turn, p *actions.UpdateTask) step {
	if p.TaskID == "" && p.MatchTitle == "" && p.MatchDate == "" && p.MatchTime == "" {
		return invalid("Which task should I change?")
	}
	if e.deps.Tasks == nil {
		return failed(ErrUnavailable, "Your task list isn't connected, so I couldn't change that task.")
	}
	token, err := e.token(ctx, types.ServiceTasks)
	if err != nil {
		return failed(err, describe("task list", err))
	}
	all, err := e.fetchTasks(ctx, token)
	if err != nil {
		return failed(err, "I couldn't read your task list. "+describe("task list", err))
	}

	q, stop := e.taskQuery(p.MatchTitle, p.MatchDate, p.MatchTime, false)
	if stop != nil {
		return *stop
	}
	ref, stop := e.lookupTask(all, p.TaskID, q)
	if stop != nil {
		return *stop
	}
	snap := ref.Task

	var patch types.TaskPatch
	if v := strings.TrimSpace(p.NewTitle); v != "" {
		patch.Title = &v
	}
	patch.Notes = p.NewNotes
	patch.Completed = p.Completed
	if p.NewDueDate != "" || p.NewDueTime != "" {
		var current *time.Time
		if snap != nil {
			current = snap.Due
		}
		due, stop := e.parseDue(p.NewDueDate, p.NewDueTime, current)
		if stop != nil {
			return *stop
		}
		patch.Due = due
	}

	name := taskTitle(snap, p.MatchTitle)
	if patch.Empty() {
		return invalid(fmt.Sprintf("You didn't say what to change about %q.", name))
	}

	if _, err := mutate(ctx, e, t, "update_task", func(ctx context.Context, key string) (struct{}, error) {
		return struct{}{}, e.deps.Tasks.PushTaskChanges(ctx, token, ref.ID, patch, key)
	}); err != nil {
		return failed(err, fmt.Sprintf("I couldn't update the task %q. %s", name, describe("task list", err)))
	}

	after, err := e.fetchTasks(ctx, token)
	if err != nil || !taskMatchesPatch(findTask(after, ref.ID), patch) {
		return e.unverified(types.ServiceTasks, err,
			fmt.Sprintf("I sent the change for %q but your task list doesn't show it yet.", name))
	}

	if patch.Completed != nil && *patch.Completed && patch.Title == nil && patch.Notes == nil && patch.Due == nil {
		return changed(types.ServiceTasks, fmt.Sprintf("Marked %q as done.", name))
	}
	return changed(types.ServiceTasks, fmt.Sprintf("Updated the task %q.", name))
}

func (e *Engine) deleteTask(ctx context.Context, t *turn, p *actions.DeleteTask) step {
	title := strings.TrimSpace(p.MatchTitle)
	bulk := false
	if f := strings.TrimSpace(p.Filter); f != "" {
		if e.deps.Resolver.IsBulkDelete(f, resolve.DomainTasks) {
			bulk = true
		} else if title == "" {
			title = f
		}
	}
	if !bulk && p.TaskID == "" && title == "" && p.MatchDate == "" && p.MatchTime == "" && !p.NoDescription {
		return invalid("Which task should I delete?")
	}
	if e.deps.Tasks == nil {
		return failed(ErrUnavailable, "Your task list isn't connected, so I couldn't delete anything.")
	}
	token, err := e.token(ctx, types.ServiceTasks)
	if err != nil {
		return failed(err, describe("task list", err))
	}
	all, err := e.fetchTasks(ctx, token)
	if err != nil {
		return failed(err, "I couldn't read your task list. "+describe("task list", err))
	}

	if bulk {
		if len(all) == 0 {
			return done("Your task list is already empty.")
		}
		targets, s := e.confirmTaskDelete(ctx, all, true, fmt.Sprintf("Delete all %d tasks?", len(all)))
		if s != nil {
			return *s
		}
		return e.removeTasks(ctx, t, token, targets)
	}

	if p.TaskID != "" {
		found := findTask(all, p.TaskID)
		if found == nil {
			return failed(resolve.ErrNotFound, "I couldn't find that task on your list.")
		}
		return e.removeTasks(ctx, t, token, []types.TaskItem{*found})
	}

	q, stop := e.taskQuery(title, p.MatchDate, p.MatchTime, p.NoDescription)
	if stop != nil {
		return *stop
	}
	decision := e.deps.Resolver.MatchTasks(q, all)
	best, ok := decision.Best()
	switch {
	case !ok:
		return failed(resolve.ErrNotFound, fmt.Sprintf("I couldn't find a task matching %q.", orDefault(title, "that description")))
	case !decision.Ambiguous():
		return e.removeTasks(ctx, t, token, []types.TaskItem{best.Task})
	}

	tied := decision.Tied()
	candidates := make([]types.TaskItem, len(tied))
	for i, m := range tied {
		candidates[i] = m.Task
	}
	if e.deps.Bridges == nil {
		return failed(resolve.ErrAmbiguous, fmt.Sprintf("Several tasks match %q: %s. Which one should I delete?",
			orDefault(title, "that description"), taskLabels(candidates)))
	}
	targets, s := e.confirmTaskDelete(ctx, candidates, false, "Which task should I delete?")
	if s != nil {
		return *s
	}
	return e.removeTasks(ctx, t, token, targets)
}

// confirmTaskDelete asks the task-delete bridge. It returns the tasks to
// delete, or a step when the action ends without deleting.
func (e *Engine) confirmTaskDelete(ctx context.Context, candidates []types.TaskItem, bulk bool, reason string) ([]types.TaskItem, *step) {
	if e.deps.Bridges == nil {
		s := failed(ErrUnavailable, "Deleting several tasks needs your confirmation, and I can't ask for it here.")
		return nil, &s
	}
	confirm := "Delete"
	if bulk {
		confirm = "Delete all"
	}
	decision, err := e.deps.Bridges.TaskDelete.Ask(ctx, bridge.TaskDeleteRequest{
		Candidates:   candidates,
		Bulk:         bulk,
		Reason:       reason,
		ConfirmLabel: confirm,
		CancelLabel:  "Keep",
	})
	var s step
	switch {
	case errors.Is(err, bridge.ErrTimeout):
		s = cancelled("I didn't hear back, so I kept your tasks.")
	case err != nil:
		s = failed(err, describe("task list", err))
	case !decision.Confirmed:
		s = cancelled("Okay, I kept your tasks.")
	default:
		return selectTasks(candidates, decision, bulk), nil
	}
	return nil, &s
}

// selectTasks applies a confirmation: explicit ids narrow the candidates,
// otherwise a bulk request takes all and a single request takes the first
func selectTasks(candidates []types.TaskItem, d bridge.TaskDeleteDecision, bulk bool) []types.TaskItem {
	if len(d.TaskIDs) > 0 {
		want := make(map[string]bool, len(d.TaskIDs))
		for _, id := range d.TaskIDs {
			want[id] = true
		}
		var out []types.TaskItem
		for _, c := range candidates {
			if want[c.ID] {
				out = append(out, c)
			}
		}
		return out
	}
	if bulk {
		return candidates
	}
	return candidates[:1]
}

func (e *Engine) removeTasks(ctx context.Context, t *turn, token string, targets []types.TaskItem) step {
	if len(targets) == 0 {
		return cancelled("Okay, I didn't delete anything.")
	}

	var firstErr error
	for _, task := range targets {
		_, err := mutate(ctx, e, t, "delete_task", func(ctx context.Context, key string) (struct{}, error) {
			return struct{}{}, e.deps.Tasks.DeleteTask(ctx, token, task.ID, key)
		})
		if err != nil && !retry.IsNotFound(err) && firstErr == nil {
			firstErr = err
		}
	}

	after, err := e.fetchTasks(ctx, token)
	remaining := 0
	for _, task := range targets {
		if findTask(after, task.ID) != nil {
			remaining++
		}
	}
	name := fmt.Sprintf("%d tasks", len(targets))
	if len(targets) == 1 {
		name = fmt.Sprintf("the task %q", targets[0].Title)
	}
	switch {
	case err != nil:
		return e.unverified(types.ServiceTasks, err, fmt.Sprintf("I tried to delete %s but couldn't check your list afterwards.", name))
	case remaining > 0 && firstErr != nil:
		return failed(firstErr, fmt.Sprintf("I couldn't delete %s. %s", name, describe("task list", firstErr)))
	case remaining > 0:
		return e.unverified(types.ServiceTasks, nil, fmt.Sprintf("I tried to delete %s but %d still show on your list.", name, remaining))
	}
	return changed(types.ServiceTasks, fmt.Sprintf("Deleted %s.", name))
}

func (e *Engine) listTasks(ctx context.Context, p *actions.ListTasks) step {
	if e.deps.Tasks == nil {
		return failed(ErrUnavailable, "Your task list isn't connected.")
	}
	token, err := e.token(ctx, types.ServiceTasks)
	if err != nil {
		return failed(err, describe("task list", err))
	}
	all, err := e.fetchTasks(ctx, token)
	if err != nil {
		return failed(err, "I couldn't read your task list. "+describe("task list", err))
	}

	var b strings.Builder
	count := 0
	for _, task := range all {
		if task.Completed && !p.IncludeCompleted {
			continue
		}
		mark := "[ ]"
		if task.Completed {
			mark = "[x]"
		}
		fmt.Fprintf(&b, "\n- %s %s%s", mark, task.Title, dueSuffix(task.Due, false))
		count++
	}
	if count == 0 {
		return done("Your task list is empty.")
	}
	return done(fmt.Sprintf("You have %d task(s):%s", count, b.String()))
}

func (e *Engine) fetchTasks(ctx context.Context, token string) ([]types.TaskItem, error) {
	return read(ctx, e, "fetch_tasks", func(ctx context.Context) ([]types.TaskItem, error) {
		return e.deps.Tasks.FetchTopTasks(ctx, token)
	})
}

// lookupTask resolves a task for update. Ties are asked about in the reply
// rather than guessed.
func (e *Engine) lookupTask(all []types.TaskItem, id string, q resolve.TaskQuery) (*types.ResolvedReference, *step) {
	if id != "" {
		if found := findTask(all, id); found != nil {
			return &types.ResolvedReference{ID: id, Task: found, MatchedBy: "id"}, nil
		}
		return &types.ResolvedReference{ID: id, MatchedBy: "id"}, nil
	}

	decision := e.deps.Resolver.MatchTasks(q, all)
	best, ok := decision.Best()
	var s step
	switch {
	case !ok:
		s = failed(resolve.ErrNotFound, fmt.Sprintf("I couldn't find a task matching %q.", orDefault(q.Title, "that description")))
	case decision.Ambiguous():
		tied := decision.Tied()
		candidates := make([]types.TaskItem, len(tied))
		for i, m := range tied {
			candidates[i] = m.Task
		}
		s = failed(resolve.ErrAmbiguous, fmt.Sprintf("Several tasks match %q: %s. Which one do you mean?",
			orDefault(q.Title, "that description"), taskLabels(candidates)))
	default:
		task := best.Task
		return &types.ResolvedReference{ID: task.ID, Task: &task, MatchedBy: "title"}, nil
	}
	return nil, &s
}

func (e *Engine) taskQuery(title, date, clock string, noDescription bool) (resolve.TaskQuery, *step) {
	q := resolve.TaskQuery{Title: title, NoDescription: noDescription}
	if date != "" {
		day, err := timewin.ParseDate(date, e.now())
		if err != nil {
			s := invalid(fmt.Sprintf("I couldn't understand the date %q. Please use YYYY-MM-DD.", date))
			return q, &s
		}
		q.Date = day
	}
	if clock != "" {
		m, err := timewin.ParseClock(clock)
		if err != nil {
			s := invalidClock(err)
			return q, &s
		}
		q.Minutes, q.HasTime = m, true
	}
	return q, nil
}

// parseDue combines a due date and time. A time without a date applies to
// current's day, or today.
func (e *Engine) parseDue(date, clock string, current *time.Time) (*time.Time, *step) {
	if date == "" && clock == "" {
		return nil, nil
	}
	var day time.Time
	switch {
	case date != "":
		d, err := timewin.ParseDate(date, e.now())
		if err != nil {
			s := invalid(fmt.Sprintf("I couldn't understand the date %q. Please use YYYY-MM-DD.", date))
			return nil, &s
		}
		day = d
	case current != nil:
		day = current.In(e.cfg.Location)
	default:
		day, _ = timewin.ParseDate("today", e.now())
	}
	minutes := 0
	if clock != "" {
		m, err := timewin.ParseClock(clock)
		if err != nil {
			s := invalidClock(err)
			return nil, &s
		}
		minutes = timewin.Round5(m)
	}
	due := timewin.At(day, minutes)
	return &due, nil
}

func findTask(tasks []types.TaskItem, id string) *types.TaskItem {
	if id == "" {
		return nil
	}
	for i := range tasks {
		if tasks[i].ID == id {
			return &tasks[i]
		}
	}
	return nil
}

// taskCreated reports whether after holds the new task: by id when the
// backend returned one, else by one more task titled title than before
func taskCreated(before, after []types.TaskItem, id, title string) bool {
	if id != "" {
		return findTask(after, id) != nil
	}
	return countTitle(after, title) > countTitle(before, title)
}

func countTitle(tasks []types.TaskItem, title string) int {
	n := 0
	for _, t := range tasks {
		if t.Title == title {
			n++
		}
	}
	return n
}

func taskMatchesPatch(task *types.TaskItem, patch types.TaskPatch) bool {
	if task == nil {
		return false
	}
	switch {
	case patch.Title != nil && task.Title != *patch.Title:
		return false
	case patch.Notes != nil && task.Notes != *patch.Notes:
		return false
	case patch.Completed != nil && task.Completed != *patch.Completed:
		return false
	case patch.Due != nil && (task.Due == nil || !sameDate(*task.Due, *patch.Due)):
		// Task backends keep only the due date
		return false
	}
	return true
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func taskTitle(snap *types.TaskItem, hint string) string {
	if snap != nil {
		return snap.Title
	}
	return orDefault(hint, "that task")
}

func taskLabels(tasks []types.TaskItem) string {
	labels := make([]string, len(tasks))
	for i, t := range tasks {
		labels[i] = resolve.TaskLabel(t)
	}
	return strings.Join(labels, "; ")
}

func dueSuffix(due *time.Time, withTime bool) string {
	if due == nil {
		return ""
	}
	if withTime {
		return " (due " + due.Format("Mon Jan 2 15:04") + ")"
	}
	return " (due " + due.Format("Mon Jan 2") + ")"
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
