package types

import "time"

// Service names used for access tokens, refresh signals and metrics labels
const (
	ServiceMail     = "mail"
	ServiceCalendar = "calendar"
	ServiceTasks    = "tasks"
)

// CalendarEvent is a transient copy of a remote calendar event
type CalendarEvent struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Location string    `json:"location,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

// EventDraft holds the fields for creating an event
type EventDraft struct {
	Title    string
	Start    time.Time
	End      time.Time
	Location string
	Notes    string
}

// EventPatch holds the fields to change on an event (nil = leave unchanged)
type EventPatch struct {
	Title    *string
	Start    *time.Time
	End      *time.Time
	Location *string
	Notes    *string
}

// Empty reports whether the patch changes nothing
func (p EventPatch) Empty() bool {
	return p.Title == nil && p.Start == nil && p.End == nil && p.Location == nil && p.Notes == nil
}

// TaskItem is a transient copy of a remote task
type TaskItem struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Due       *time.Time `json:"due,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Completed bool       `json:"completed"`
	List      string     `json:"list,omitempty"`
}

// TaskDraft holds the fields for creating a task
type TaskDraft struct {
	Title string
	Notes string
	Due   *time.Time
	List  string
}

// TaskPatch holds the fields to change on a task (nil = leave unchanged)
type TaskPatch struct {
	Title     *string
	Notes     *string
	Due       *time.Time
	Completed *bool
}

// Empty reports whether the patch changes nothing
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Notes == nil && p.Due == nil && p.Completed == nil
}

// Email is an outgoing message
type Email struct {
	To      []string
	Cc      []string
	Subject string
	Body    string
}

// ResolvedReference is a concrete identity plus the snapshot it was resolved from.
// Task and Event are nil when only an id was supplied and no lookup happened.
type ResolvedReference struct {
	ID        string
	Task      *TaskItem
	Event     *CalendarEvent
	MatchedBy string // "id", "title", "score", "fallback", "user"
}

// Note is a remembered fact
type Note struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	Topic     string    `json:"topic,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchResult is one web search hit
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// WebPage is the readable text of a fetched page
type WebPage struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// RefreshSignals tells the caller which views changed during a turn
type RefreshSignals struct {
	Mail     bool `json:"mail"`
	Calendar bool `json:"calendar"`
	Tasks    bool `json:"tasks"`
	Summary  bool `json:"summary"`
}

// ExecutionSummary counts what happened during a turn
type ExecutionSummary struct {
	EmailsSent   int `json:"emails_sent"`
	EmailsFailed int `json:"emails_failed"`
	Executed     int `json:"executed"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
}
