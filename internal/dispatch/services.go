package dispatch

import (
	"context"
	"time"

	"github.com/vthunder/steward/internal/types"
)

// CalendarService is the remote calendar. Every mutation carries an
// idempotency key that stays the same across retries of one logical call.
type CalendarService interface {
	ListEvents(ctx context.Context, token string, start, end time.Time, titleFilter string) ([]types.CalendarEvent, error)
	CreateEvent(ctx context.Context, token string, draft types.EventDraft, key string) (string, error)
	UpdateEvent(ctx context.Context, token, eventID string, patch types.EventPatch, key string) error
	DeleteEvent(ctx context.Context, token, eventID, key string) error
	// DeleteEventsInRange deletes events starting in [start, end) whose title
	// matches titleFilter and whose start time is startTimeFilter ("HH:MM"),
	// when those filters are non-empty
	DeleteEventsInRange(ctx context.Context, token string, start, end time.Time, titleFilter, startTimeFilter, key string) (int, error)
}

// TasksService is the remote task list. FetchTopTasks must include
// completed tasks so completion can be verified.
type TasksService interface {
	FetchTopTasks(ctx context.Context, token string) ([]types.TaskItem, error)
	CreateTask(ctx context.Context, token string, draft types.TaskDraft, key string) (string, error)
	PushTaskChanges(ctx context.Context, token, taskID string, patch types.TaskPatch, key string) error
	DeleteTask(ctx context.Context, token, taskID, key string) error
}

// MailService sends mail and confirms it reached the sent folder
type MailService interface {
	SendEmail(ctx context.Context, token string, email types.Email, key string) (string, error)
	IsSent(ctx context.Context, token, messageID string) (bool, error)
}

// TokenSource supplies access tokens per service. An empty token means the
// user is not signed in.
type TokenSource interface {
	AccessToken(ctx context.Context, service string) (string, error)
}

// MemoryStore keeps remembered facts
type MemoryStore interface {
	Remember(ctx context.Context, text, topic string) (types.Note, error)
	Recall(ctx context.Context, query string, limit int) ([]types.Note, error)
}

// WebClient searches and fetches pages
type WebClient interface {
	Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error)
	Fetch(ctx context.Context, url string) (types.WebPage, error)
}
