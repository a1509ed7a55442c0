// Package actions defines the planner's action vocabulary and decodes model
// output into an ordered list of typed actions.
package actions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the tag key that identifies an action variant
type Kind string

const (
	KindSendEmail           Kind = "send_email"
	KindAddCalendarEvent    Kind = "add_calendar_event"
	KindUpdateCalendarEvent Kind = "update_calendar_event"
	KindDeleteCalendarEvent Kind = "delete_calendar_event"
	KindListCalendarEvents  Kind = "list_calendar_events"
	KindAddTask             Kind = "add_task"
	KindUpdateTask          Kind = "update_task"
	KindDeleteTask          Kind = "delete_task"
	KindListTasks           Kind = "list_tasks"
	KindRemember            Kind = "remember"
	KindRecall              Kind = "recall"
	KindWebSearch           Kind = "web_search"
	KindFetchURL            Kind = "fetch_url"
	KindAwaitUser           Kind = "await_user"
	KindExternalAction      Kind = "external_action"
	KindRespond             Kind = "respond"
)

// Payload is implemented by every action payload struct
type Payload interface {
	Kind() Kind
}

// registry maps each recognized tag to a constructor for its payload
var registry = map[Kind]func() Payload{
	KindSendEmail:           func() Payload { return &SendEmail{} },
	KindAddCalendarEvent:    func() Payload { return &AddCalendarEvent{} },
	KindUpdateCalendarEvent: func() Payload { return &UpdateCalendarEvent{} },
	KindDeleteCalendarEvent: func() Payload { return &DeleteCalendarEvent{} },
	KindListCalendarEvents:  func() Payload { return &ListCalendarEvents{} },
	KindAddTask:             func() Payload { return &AddTask{} },
	KindUpdateTask:          func() Payload { return &UpdateTask{} },
	KindDeleteTask:          func() Payload { return &DeleteTask{} },
	KindListTasks:           func() Payload { return &ListTasks{} },
	KindRemember:            func() Payload { return &Remember{} },
	KindRecall:              func() Payload { return &Recall{} },
	KindWebSearch:           func() Payload { return &WebSearch{} },
	KindFetchURL:            func() Payload { return &FetchURL{} },
	KindAwaitUser:           func() Payload { return &AwaitUser{} },
	KindExternalAction:      func() Payload { return &ExternalAction{} },
	KindRespond:             func() Payload { return &Respond{} },
}

// Known reports whether k is part of the vocabulary
func Known(k Kind) bool {
	_, ok := registry[k]
	return ok
}

// Kinds returns the full vocabulary in declaration order
func Kinds() []Kind {
	return []Kind{
		KindSendEmail,
		KindAddCalendarEvent, KindUpdateCalendarEvent, KindDeleteCalendarEvent, KindListCalendarEvents,
		KindAddTask, KindUpdateTask, KindDeleteTask, KindListTasks,
		KindRemember, KindRecall,
		KindWebSearch, KindFetchURL,
		KindAwaitUser, KindExternalAction, KindRespond,
	}
}

// Mutates reports whether the kind changes remote state
func (k Kind) Mutates() bool {
	switch k {
	case KindSendEmail,
		KindAddCalendarEvent, KindUpdateCalendarEvent, KindDeleteCalendarEvent,
		KindAddTask, KindUpdateTask, KindDeleteTask:
		return true
	}
	return false
}

// Pauses reports whether the kind halts the turn awaiting the user
func (k Kind) Pauses() bool {
	return k == KindAwaitUser || k == KindExternalAction
}

// Informational reports whether the kind produces a complete reply on its own
// (memory, search, fetch and listing kinds)
func (k Kind) Informational() bool {
	switch k {
	case KindListCalendarEvents, KindListTasks, KindRemember, KindRecall, KindWebSearch, KindFetchURL:
		return true
	}
	return false
}

// Action is one decoded instruction from the planner
type Action struct {
	Kind    Kind
	Payload Payload
}

// MarshalJSON writes the single-key object form
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]Payload{string(a.Kind): a.Payload})
}

// UnmarshalJSON decodes the single-key object form
func (a *Action) UnmarshalJSON(data []byte) error {
	decoded, err := decodeAction(0, data)
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// Mail

type SendEmail struct {
	To      Recipients `json:"to"`
	Cc      Recipients `json:"cc,omitempty"`
	Subject string     `json:"subject"`
	Body    string     `json:"body"`
	Preview bool       `json:"preview,omitempty"`
}

func (*SendEmail) Kind() Kind { return KindSendEmail }

// Calendar

type AddCalendarEvent struct {
	Title           string  `json:"title"`
	Date            string  `json:"date"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time,omitempty"`
	DurationMinutes FlexInt `json:"duration_minutes,omitempty"`
	Location        string  `json:"location,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

func (*AddCalendarEvent) Kind() Kind { return KindAddCalendarEvent }

type UpdateCalendarEvent struct {
	EventID            string  `json:"event_id,omitempty"`
	MatchTitle         string  `json:"match_title,omitempty"`
	MatchDate          string  `json:"match_date,omitempty"`
	MatchTime          string  `json:"match_time,omitempty"`
	Details            bool    `json:"details,omitempty"`
	NewTitle           string  `json:"new_title,omitempty"`
	NewDate            string  `json:"new_date,omitempty"`
	NewStartTime       string  `json:"new_start_time,omitempty"`
	NewEndTime         string  `json:"new_end_time,omitempty"`
	NewDurationMinutes FlexInt `json:"new_duration_minutes,omitempty"`
	NewLocation        *string `json:"new_location,omitempty"`
	NewNotes           *string `json:"new_notes,omitempty"`
}

func (*UpdateCalendarEvent) Kind() Kind { return KindUpdateCalendarEvent }

type DeleteCalendarEvent struct {
	EventID    string `json:"event_id,omitempty"`
	MatchTitle string `json:"match_title,omitempty"`
	MatchDate  string `json:"match_date,omitempty"`
	MatchTime  string `json:"match_time,omitempty"`
	Details    bool   `json:"details,omitempty"`
	Filter     string `json:"filter,omitempty"`
	RangeStart string `json:"range_start,omitempty"`
	RangeEnd   string `json:"range_end,omitempty"`
}

func (*DeleteCalendarEvent) Kind() Kind { return KindDeleteCalendarEvent }

type ListCalendarEvents struct {
	Date  string  `json:"date,omitempty"`
	Days  FlexInt `json:"days,omitempty"`
	Query string  `json:"query,omitempty"`
}

func (*ListCalendarEvents) Kind() Kind { return KindListCalendarEvents }

// Tasks

type AddTask struct {
	Title   string `json:"title"`
	Notes   string `json:"notes,omitempty"`
	DueDate string `json:"due_date,omitempty"`
	DueTime string `json:"due_time,omitempty"`
	List    string `json:"list,omitempty"`
}

func (*AddTask) Kind() Kind { return KindAddTask }

type UpdateTask struct {
	TaskID     string  `json:"task_id,omitempty"`
	MatchTitle string  `json:"match_title,omitempty"`
	MatchDate  string  `json:"match_date,omitempty"`
	MatchTime  string  `json:"match_time,omitempty"`
	Details    bool    `json:"details,omitempty"`
	NewTitle   string  `json:"new_title,omitempty"`
	NewNotes   *string `json:"new_notes,omitempty"`
	NewDueDate string  `json:"new_due_date,omitempty"`
	NewDueTime string  `json:"new_due_time,omitempty"`
	Completed  *bool   `json:"completed,omitempty"`
}

func (*UpdateTask) Kind() Kind { return KindUpdateTask }

type DeleteTask struct {
	TaskID        string `json:"task_id,omitempty"`
	MatchTitle    string `json:"match_title,omitempty"`
	MatchDate     string `json:"match_date,omitempty"`
	MatchTime     string `json:"match_time,omitempty"`
	NoDescription bool   `json:"no_description,omitempty"`
	Filter        string `json:"filter,omitempty"`
}

func (*DeleteTask) Kind() Kind { return KindDeleteTask }

type ListTasks struct {
	IncludeCompleted bool `json:"include_completed,omitempty"`
}

func (*ListTasks) Kind() Kind { return KindListTasks }

// Memory

type Remember struct {
	Fact  string `json:"fact"`
	Topic string `json:"topic,omitempty"`
}

func (*Remember) Kind() Kind { return KindRemember }

type Recall struct {
	Query string  `json:"query"`
	Limit FlexInt `json:"limit,omitempty"`
}

func (*Recall) Kind() Kind { return KindRecall }

// Web

type WebSearch struct {
	Query string  `json:"query"`
	Limit FlexInt `json:"limit,omitempty"`
}

func (*WebSearch) Kind() Kind { return KindWebSearch }

type FetchURL struct {
	URL string `json:"url"`
}

func (*FetchURL) Kind() Kind { return KindFetchURL }

// Control

type AwaitUser struct {
	Question string   `json:"question"`
	Context  string   `json:"context,omitempty"`
	Options  []string `json:"options,omitempty"`
}

func (*AwaitUser) Kind() Kind { return KindAwaitUser }

type ExternalAction struct {
	Question    string          `json:"question"`
	Context     string          `json:"context,omitempty"`
	Integration string          `json:"integration,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func (*ExternalAction) Kind() Kind { return KindExternalAction }

type Respond struct {
	Text string `json:"text"`
}

func (*Respond) Kind() Kind { return KindRespond }

// UnmarshalJSON accepts either {"text": "..."} or a bare string
func (r *Respond) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Text = s
		return nil
	}
	type plain Respond
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = Respond(p)
	return nil
}

// Recipients accepts a single address string (comma or semicolon separated)
// or a list of addresses
type Recipients []string

func (r *Recipients) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*r = splitAddresses(one)
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("recipients must be a string or a list of strings")
	}
	out := make(Recipients, 0, len(many))
	for _, m := range many {
		out = append(out, splitAddresses(m)...)
	}
	*r = out
	return nil
}

func splitAddresses(s string) Recipients {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make(Recipients, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// FlexInt accepts a JSON number or a numeric string ("60")
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexInt(int(n))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected a number")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*f = 0
		return nil
	}
	n2, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("expected a number, got %q", s)
	}
	*f = FlexInt(n2)
	return nil
}
