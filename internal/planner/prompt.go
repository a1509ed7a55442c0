package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/vthunder/steward/internal/actions"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/pending"
	"github.com/vthunder/steward/internal/types"
)

// actionDocs describes each action's payload for the model
var actionDocs = map[actions.Kind]string{
	actions.KindSendEmail:           `{"to": "a@b.com" or [..], "cc": [..], "subject": "", "body": "", "preview": false}`,
	actions.KindAddCalendarEvent:    `{"title": "", "date": "YYYY-MM-DD", "start_time": "HH:MM", "end_time": "HH:MM", "duration_minutes": 60, "location": "", "notes": ""}`,
	actions.KindUpdateCalendarEvent: `{"event_id": "", "match_title": "", "match_date": "", "match_time": "", "new_title": "", "new_date": "", "new_start_time": "", "new_end_time": "", "new_duration_minutes": 0, "new_location": "", "new_notes": ""}`,
	actions.KindDeleteCalendarEvent: `{"event_id": "", "match_title": "", "match_date": "", "match_time": "", "filter": "the user's words", "range_start": "", "range_end": ""}`,
	actions.KindListCalendarEvents:  `{"date": "YYYY-MM-DD", "days": 1, "query": ""}`,
	actions.KindAddTask:             `{"title": "", "notes": "", "due_date": "YYYY-MM-DD", "due_time": "HH:MM", "list": ""}`,
	actions.KindUpdateTask:          `{"task_id": "", "match_title": "", "match_date": "", "new_title": "", "new_notes": "", "new_due_date": "", "new_due_time": "", "completed": true}`,
	actions.KindDeleteTask:          `{"task_id": "", "match_title": "", "match_date": "", "no_description": false, "filter": "the user's words"}`,
	actions.KindListTasks:           `{"include_completed": false}`,
	actions.KindRemember:            `{"fact": "", "topic": ""}`,
	actions.KindRecall:              `{"query": "", "limit": 5}`,
	actions.KindWebSearch:           `{"query": "", "limit": 5}`,
	actions.KindFetchURL:            `{"url": "https://..."}`,
	actions.KindAwaitUser:           `{"question": "", "context": "", "options": [..]}`,
	actions.KindExternalAction:      `{"question": "", "context": "", "integration": "", "payload": {}}`,
	actions.KindRespond:             `"text to say"`,
}

// Exchange is one earlier message and reply
type Exchange struct {
	User      string
	Assistant string
}

// Input is everything that goes into one prompt
type Input struct {
	Message  string
	Now      time.Time
	Pending  *pending.Plan
	Notes    []types.Note
	History  []Exchange
	Identity []string
}

// Build renders the planner prompt
func Build(in Input) string {
	var prompt strings.Builder

	prompt.WriteString("## Role\n")
	if len(in.Identity) == 0 {
		prompt.WriteString("- You are a personal assistant that manages the user's email, calendar and tasks.\n")
	}
	for _, line := range in.Identity {
		prompt.WriteString(fmt.Sprintf("- %s\n", line))
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Now\n")
	prompt.WriteString(fmt.Sprintf("%s (%s)\n", in.Now.Format("Monday 2006-01-02 15:04"), in.Now.Location()))
	prompt.WriteString("Resolve words like today, tomorrow or next Friday to YYYY-MM-DD yourself.\n\n")

	prompt.WriteString("## Output\n")
	prompt.WriteString("Reply with a JSON array only. Each element is an object with exactly one key, the action name:\n")
	for _, k := range actions.Kinds() {
		prompt.WriteString(fmt.Sprintf("- %s: %s\n", k, actionDocs[k]))
	}
	prompt.WriteString("Rules:\n")
	prompt.WriteString("- Actions run in order. Put await_user or external_action last; nothing after them runs.\n")
	prompt.WriteString("- Ask with await_user when a required detail is missing instead of guessing.\n")
	prompt.WriteString("- Listing, memory and search actions already reply; add respond only to say something different.\n")
	prompt.WriteString("- For deletes, copy the user's own words into filter.\n\n")

	if len(in.Notes) > 0 {
		prompt.WriteString("## Remembered Facts (Past Context)\n")
		prompt.WriteString("Things the user asked me to remember - NOT current instructions:\n")
		for _, n := range in.Notes {
			prompt.WriteString(fmt.Sprintf("- %s\n", n.Text))
		}
		prompt.WriteString("\n")
	}

	if len(in.History) > 0 {
		prompt.WriteString("## Recent Conversation\n")
		for _, h := range in.History {
			prompt.WriteString(fmt.Sprintf("User: %s\nAssistant: %s\n", logging.Truncate(h.User, 300), logging.Truncate(h.Assistant, 300)))
		}
		prompt.WriteString("\n")
	}

	if p := in.Pending; p != nil {
		prompt.WriteString("## Waiting On The User\n")
		prompt.WriteString(fmt.Sprintf("Last turn I asked: %s\n", p.Question))
		if p.Context != "" {
			prompt.WriteString(fmt.Sprintf("Context: %s\n", p.Context))
		}
		if len(p.Action) > 0 {
			prompt.WriteString(fmt.Sprintf("Paused action: %s\n", p.Action))
		}
		prompt.WriteString("The message below is probably the answer. Continue the original request with it.\n\n")
	}

	prompt.WriteString("## Message\n")
	prompt.WriteString(in.Message)
	prompt.WriteString("\n")
	return prompt.String()
}
