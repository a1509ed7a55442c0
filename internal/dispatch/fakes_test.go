package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vthunder/steward/internal/retry"
	"github.com/vthunder/steward/internal/types"
)

var testNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

type staticTokens map[string]string

func (s staticTokens) AccessToken(ctx context.Context, service string) (string, error) {
	return s[service], nil
}

func allTokens() staticTokens {
	return staticTokens{types.ServiceMail: "m", types.ServiceCalendar: "c", types.ServiceTasks: "t"}
}

type fakeCalendar struct {
	mu     sync.Mutex
	events map[string]types.CalendarEvent
	nextID int
	calls  []string
	keys   []string

	// listErr is returned by every ListEvents call
	listErr error
	// createErrs are returned by successive CreateEvent calls
	createErrs []error
	// dropWrites accepts mutations without applying them
	dropWrites bool
}

func newFakeCalendar(events ...types.CalendarEvent) *fakeCalendar {
	c := &fakeCalendar{events: make(map[string]types.CalendarEvent)}
	for _, ev := range events {
		c.events[ev.ID] = ev
	}
	return c
}

func (c *fakeCalendar) record(call string) {
	c.calls = append(c.calls, call)
}

func (c *fakeCalendar) ListEvents(ctx context.Context, token string, start, end time.Time, titleFilter string) ([]types.CalendarEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("list")
	if c.listErr != nil {
		return nil, c.listErr
	}
	var out []types.CalendarEvent
	for _, ev := range c.events {
		if ev.Start.Before(start) || !ev.Start.Before(end) {
			continue
		}
		if titleFilter != "" && !strings.Contains(strings.ToLower(ev.Title), strings.ToLower(titleFilter)) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (c *fakeCalendar) CreateEvent(ctx context.Context, token string, draft types.EventDraft, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("create")
	c.keys = append(c.keys, key)
	if len(c.createErrs) > 0 {
		err := c.createErrs[0]
		c.createErrs = c.createErrs[1:]
		if err != nil {
			return "", err
		}
	}
	c.nextID++
	id := fmt.Sprintf("ev-%d", c.nextID)
	if !c.dropWrites {
		c.events[id] = types.CalendarEvent{ID: id, Title: draft.Title, Start: draft.Start, End: draft.End, Location: draft.Location, Notes: draft.Notes}
	}
	return id, nil
}

func (c *fakeCalendar) UpdateEvent(ctx context.Context, token, eventID string, patch types.EventPatch, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("update:" + eventID)
	ev, ok := c.events[eventID]
	if !ok {
		return &retry.StatusError{Service: "calendar", Code: 404}
	}
	if c.dropWrites {
		return nil
	}
	if patch.Title != nil {
		ev.Title = *patch.Title
	}
	if patch.Start != nil {
		ev.Start = *patch.Start
	}
	if patch.End != nil {
		ev.End = *patch.End
	}
	if patch.Location != nil {
		ev.Location = *patch.Location
	}
	if patch.Notes != nil {
		ev.Notes = *patch.Notes
	}
	c.events[eventID] = ev
	return nil
}

func (c *fakeCalendar) DeleteEvent(ctx context.Context, token, eventID, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("delete:" + eventID)
	if _, ok := c.events[eventID]; !ok {
		return &retry.StatusError{Service: "calendar", Code: 404}
	}
	if !c.dropWrites {
		delete(c.events, eventID)
	}
	return nil
}

func (c *fakeCalendar) DeleteEventsInRange(ctx context.Context, token string, start, end time.Time, titleFilter, startTimeFilter, key string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("delete_range")
	n := 0
	for id, ev := range c.events {
		if ev.Start.Before(start) || !ev.Start.Before(end) {
			continue
		}
		if titleFilter != "" && !strings.Contains(strings.ToLower(ev.Title), strings.ToLower(titleFilter)) {
			continue
		}
		if startTimeFilter != "" && ev.Start.Format("15:04") != startTimeFilter {
			continue
		}
		if !c.dropWrites {
			delete(c.events, id)
		}
		n++
	}
	return n, nil
}

func (c *fakeCalendar) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

type fakeTasks struct {
	mu     sync.Mutex
	tasks  []types.TaskItem
	nextID int
	calls  []string

	omitIDs     bool // CreateTask returns no id
	dropCreates bool // CreateTask acknowledges without storing
}

func newFakeTasks(tasks ...types.TaskItem) *fakeTasks {
	return &fakeTasks{tasks: tasks}
}

func (f *fakeTasks) FetchTopTasks(ctx context.Context, token string) ([]types.TaskItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.TaskItem(nil), f.tasks...), nil
}

func (f *fakeTasks) CreateTask(ctx context.Context, token string, draft types.TaskDraft, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create:"+draft.Title)
	f.nextID++
	id := fmt.Sprintf("task-%d", f.nextID)
	if !f.dropCreates {
		f.tasks = append(f.tasks, types.TaskItem{ID: id, Title: draft.Title, Notes: draft.Notes, Due: draft.Due, List: draft.List})
	}
	if f.omitIDs {
		return "", nil
	}
	return id, nil
}

func (f *fakeTasks) PushTaskChanges(ctx context.Context, token, taskID string, patch types.TaskPatch, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update:"+taskID)
	for i := range f.tasks {
		if f.tasks[i].ID != taskID {
			continue
		}
		if patch.Title != nil {
			f.tasks[i].Title = *patch.Title
		}
		if patch.Notes != nil {
			f.tasks[i].Notes = *patch.Notes
		}
		if patch.Due != nil {
			due := *patch.Due
			f.tasks[i].Due = &due
		}
		if patch.Completed != nil {
			f.tasks[i].Completed = *patch.Completed
		}
		return nil
	}
	return &retry.StatusError{Service: "tasks", Code: 404}
}

func (f *fakeTasks) DeleteTask(ctx context.Context, token, taskID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete:"+taskID)
	for i := range f.tasks {
		if f.tasks[i].ID == taskID {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return &retry.StatusError{Service: "tasks", Code: 404}
}

func (f *fakeTasks) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeMail struct {
	mu      sync.Mutex
	sent    map[string]types.Email
	hideAll bool
}

func newFakeMail() *fakeMail {
	return &fakeMail{sent: make(map[string]types.Email)}
}

func (m *fakeMail) SendEmail(ctx context.Context, token string, email types.Email, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := "msg-" + key
	m.sent[id] = email
	return id, nil
}

func (m *fakeMail) IsSent(ctx context.Context, token, messageID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sent[messageID]
	return ok && !m.hideAll, nil
}

type fakeMemory struct {
	notes []types.Note
}

func (f *fakeMemory) Remember(ctx context.Context, text, topic string) (types.Note, error) {
	n := types.Note{ID: int64(len(f.notes) + 1), Text: text, Topic: topic, CreatedAt: testNow}
	f.notes = append(f.notes, n)
	return n, nil
}

func (f *fakeMemory) Recall(ctx context.Context, query string, limit int) ([]types.Note, error) {
	var out []types.Note
	for _, n := range f.notes {
		if strings.Contains(strings.ToLower(n.Text), strings.ToLower(query)) {
			out = append(out, n)
		}
	}
	return out, nil
}

func at(d, h, m int) time.Time {
	return time.Date(2026, 10, d, h, m, 0, 0, time.UTC)
}
