package bridge

import (
	"time"

	"github.com/vthunder/steward/internal/types"
)

// Bridge names
const (
	NameMail         = "mail_preview"
	NameTaskDelete   = "task_delete"
	NameCalendarPick = "calendar_pick"
)

// MailPreview asks the user to review an email before it is sent
type MailPreview struct {
	Email       types.Email
	Reason      string
	SendLabel   string
	CancelLabel string
}

// MailDecision is the answer to a MailPreview. Edited replaces the draft when set.
type MailDecision struct {
	Send   bool
	Edited *types.Email
}

// TaskDeleteRequest asks the user to confirm deleting the listed tasks.
// For a bulk request confirming deletes every candidate; otherwise it
// deletes the first (best ranked) candidate unless TaskIDs narrows it.
type TaskDeleteRequest struct {
	Candidates   []types.TaskItem
	Bulk         bool
	Reason       string
	ConfirmLabel string
	CancelLabel  string
}

// TaskDeleteDecision is the answer to a TaskDeleteRequest
type TaskDeleteDecision struct {
	Confirmed bool
	TaskIDs   []string
}

// CalendarPickRequest asks the user to pick one of several events
type CalendarPickRequest struct {
	Candidates []types.CalendarEvent
	Reason     string
	Labels     []string
	SkipLabel  string
}

// CalendarPickDecision is the answer to a CalendarPickRequest
type CalendarPickDecision struct {
	EventID string
	Skip    bool
}

// Send approves the draft as shown
func Send() MailDecision { return MailDecision{Send: true} }

// SendEdited approves an edited draft
func SendEdited(e types.Email) MailDecision { return MailDecision{Send: true, Edited: &e} }

// DontSend rejects the draft
func DontSend() MailDecision { return MailDecision{} }

// Confirm approves a task deletion, optionally narrowed to specific ids
func Confirm(taskIDs ...string) TaskDeleteDecision {
	return TaskDeleteDecision{Confirmed: true, TaskIDs: taskIDs}
}

// Cancel rejects a task deletion
func Cancel() TaskDeleteDecision { return TaskDeleteDecision{} }

// Pick selects one calendar candidate
func Pick(eventID string) CalendarPickDecision { return CalendarPickDecision{EventID: eventID} }

// Skip declines to pick any calendar candidate
func Skip() CalendarPickDecision { return CalendarPickDecision{Skip: true} }

// Bridges groups the three confirmation channels the engine uses
type Bridges struct {
	Mail         *Bridge[MailPreview, MailDecision]
	TaskDelete   *Bridge[TaskDeleteRequest, TaskDeleteDecision]
	CalendarPick *Bridge[CalendarPickRequest, CalendarPickDecision]
}

// NewBridges creates all bridges with the same timeout policy
// (timeout <= 0 waits indefinitely). Fallbacks never mutate anything.
func NewBridges(timeout time.Duration) *Bridges {
	return &Bridges{
		Mail:         New[MailPreview, MailDecision](NameMail, DontSend(), timeout),
		TaskDelete:   New[TaskDeleteRequest, TaskDeleteDecision](NameTaskDelete, Cancel(), timeout),
		CalendarPick: New[CalendarPickRequest, CalendarPickDecision](NameCalendarPick, Skip(), timeout),
	}
}

// SetObserver registers fn on every bridge
func (b *Bridges) SetObserver(fn func(bridge, outcome string)) {
	b.Mail.SetObserver(fn)
	b.TaskDelete.SetObserver(fn)
	b.CalendarPick.SetObserver(fn)
}
