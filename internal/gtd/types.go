package gtd

import "time"

// Task statuses
const (
	StatusOpen      = "open"
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
)

// Task is one entry in the local task list
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes,omitempty"`
	When        string     `json:"when"`             // inbox, today, anytime, someday, or YYYY-MM-DD
	List        string     `json:"list,omitempty"`   // free-form list label
	Repeat      string     `json:"repeat,omitempty"` // daily, weekly, monthly, etc.
	Status      string     `json:"status"`           // open, completed, canceled
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Order       float64    `json:"order"`
}

// storeData is the on-disk document
type storeData struct {
	Tasks []Task `json:"tasks"`
	// Keys maps idempotency keys of applied creates to the task they made
	Keys map[string]string `json:"keys,omitempty"`
}
