// Package executive runs one user turn: quick replies to a pending question,
// then prompt, planner and engine.
package executive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vthunder/steward/internal/actions"
	"github.com/vthunder/steward/internal/activity"
	"github.com/vthunder/steward/internal/dispatch"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/pending"
	"github.com/vthunder/steward/internal/planner"
	"github.com/vthunder/steward/internal/reflex"
	"github.com/vthunder/steward/internal/retry"
	"github.com/vthunder/steward/internal/types"
)

const (
	msgDropped            = "Okay, I've dropped that."
	msgPlannerUnavailable = "I couldn't reach my planner just now. Please try again in a moment."
	msgNotUnderstood      = "Sorry, I got confused working out what to do. Could you rephrase that?"

	historyUsers = 256
)

// Planner turns a prompt into raw action-list text
type Planner interface {
	SendPrompt(ctx context.Context, prompt string, attachment []byte) (string, error)
}

// Integration carries out a confirmed external_action
type Integration interface {
	Run(ctx context.Context, payload json.RawMessage) (string, error)
}

// TurnIntegration is implemented by integrations that run actions on the
// engine. Their result carries refresh signals and the execution summary.
type TurnIntegration interface {
	RunTurn(ctx context.Context, payload json.RawMessage) (*dispatch.TurnResult, error)
}

// Message is one inbound user message
type Message struct {
	UserID     string
	Text       string
	Attachment []byte // optional image for multimodal planners
}

// Config holds executive settings
type Config struct {
	Retry        retry.Config
	Location     *time.Location
	HistoryTurns int // exchanges kept per user for the prompt
	RecallLimit  int // remembered notes pulled into the prompt
	Identity     []string
	Now          func() time.Time
	// Activity receives an audit entry per input, reply and action; nil
	// disables it
	Activity *activity.Log
}

// Executive owns the turn loop
type Executive struct {
	engine  *dispatch.Engine
	planner Planner
	memory  dispatch.MemoryStore
	quick   *reflex.Engine
	locks   *TurnLocks
	history *lru.Cache[string, []planner.Exchange]
	cfg     Config

	mu           sync.RWMutex
	integrations map[string]Integration
}

// New creates an executive. memory and quick may be nil.
func New(engine *dispatch.Engine, p Planner, memory dispatch.MemoryStore, quick *reflex.Engine, cfg Config) *Executive {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.HistoryTurns == 0 {
		cfg.HistoryTurns = 6
	}
	if cfg.RecallLimit == 0 {
		cfg.RecallLimit = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if quick == nil {
		quick = reflex.NewEngine()
	}
	history, _ := lru.New[string, []planner.Exchange](historyUsers)
	x := &Executive{
		engine:       engine,
		planner:      p,
		memory:       memory,
		quick:        quick,
		locks:        NewTurnLocks(0),
		history:      history,
		cfg:          cfg,
		integrations: make(map[string]Integration),
	}
	x.RegisterIntegration(ActionsIntegrationName, ActionsIntegration{Engine: engine})
	return x
}

// RegisterIntegration makes an integration available to external_action
func (x *Executive) RegisterIntegration(name string, in Integration) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.integrations[name] = in
}

func (x *Executive) integration(name string) (Integration, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	in, ok := x.integrations[name]
	return in, ok
}

// Engine returns the engine turns run on
func (x *Executive) Engine() *dispatch.Engine {
	return x.engine
}

// HandleMessage runs one turn for msg. Turns for the same user never overlap.
// Planner failures become a reply rather than an error; the error return is
// only for a cancelled wait on the user's lock.
func (x *Executive) HandleMessage(ctx context.Context, msg Message) (*dispatch.TurnResult, error) {
	release, err := x.locks.Acquire(ctx, msg.UserID)
	if err != nil {
		return nil, fmt.Errorf("waiting for previous turn: %w", err)
	}
	defer release()

	started := time.Now()
	logging.Info("executive", "turn for %s: %s", msg.UserID, logging.Truncate(msg.Text, 80))

	x.audit(func(l *activity.Log) error { return l.LogInput(msg.UserID, msg.Text) })

	plan, err := x.engine.Pending().Get(ctx)
	if err != nil {
		logging.Warn("executive", "failed to read pending plan: %v", err)
		plan = nil
	}

	if plan != nil && len(msg.Attachment) == 0 {
		if res, ok := x.quickReply(ctx, msg.UserID, plan, msg.Text); ok {
			x.record(msg, res)
			return res, nil
		}
	}

	prompt := planner.Build(planner.Input{
		Message:  msg.Text,
		Now:      x.cfg.Now().In(x.cfg.Location),
		Pending:  plan,
		Notes:    x.recall(ctx, msg.Text),
		History:  x.recent(msg.UserID),
		Identity: x.cfg.Identity,
	})

	raw, err := retry.Do(ctx, x.cfg.Retry, "planner", func(ctx context.Context) (string, error) {
		return x.planner.SendPrompt(ctx, prompt, msg.Attachment)
	})
	if err != nil {
		logging.Error("executive", "planner failed: %v", err)
		x.audit(func(l *activity.Log) error { return l.LogError(msg.UserID, "planner failed", err) })
		return reply(msgPlannerUnavailable), nil
	}
	planned := time.Since(started)

	res := x.engine.RunTurn(ctx, raw)
	if res.ParseError != nil {
		res.Messages = []string{msgNotUnderstood}
		x.audit(func(l *activity.Log) error { return l.LogError(msg.UserID, "unparseable planner output", res.ParseError) })
	} else {
		x.audit(func(l *activity.Log) error { return l.LogPlanner(msg.UserID, len(res.Outcomes), planned) })
	}
	for _, o := range res.Outcomes {
		x.audit(func(l *activity.Log) error {
			return l.LogAction(msg.UserID, string(o.Kind), string(o.Status), o.Message, o.Err)
		})
	}
	x.record(msg, res)
	logging.Debug("executive", "turn for %s took %s", msg.UserID, time.Since(started).Round(time.Millisecond))
	return res, nil
}

// quickReply handles a bare yes or no to the pending question. Anything
// else goes to the planner with the pending context.
func (x *Executive) quickReply(ctx context.Context, user string, plan *pending.Plan, text string) (*dispatch.TurnResult, bool) {
	switch x.quick.Classify(text) {
	case reflex.IntentDeny:
		x.clearPending(ctx)
		logging.Info("executive", "pending %s declined", plan.Status)
		x.audit(func(l *activity.Log) error { return l.LogQuickReply(user, "deny", msgDropped) })
		return reply(msgDropped), true
	case reflex.IntentAffirm:
		if plan.Status != pending.StatusExternalAction {
			return nil, false
		}
		x.audit(func(l *activity.Log) error { return l.LogQuickReply(user, "affirm", plan.Question) })
		return x.resume(ctx, user, plan), true
	}
	return nil, false
}

// resume runs a confirmed external_action through its integration
func (x *Executive) resume(ctx context.Context, user string, plan *pending.Plan) *dispatch.TurnResult {
	var a actions.Action
	if err := json.Unmarshal(plan.Action, &a); err != nil {
		logging.Warn("executive", "pending action unreadable: %v", err)
		x.clearPending(ctx)
		return reply("I lost track of what I was going to do. Could you ask again?")
	}
	ext, ok := a.Payload.(*actions.ExternalAction)
	if !ok {
		x.clearPending(ctx)
		return reply("I lost track of what I was going to do. Could you ask again?")
	}

	name := ext.Integration
	if name == "" {
		name = ActionsIntegrationName
	}
	in, ok := x.integration(name)
	if !ok {
		x.clearPending(ctx)
		return reply(fmt.Sprintf("I can't do that here: %s isn't connected.", name))
	}

	// A resumed plan may pause again and save its own question
	x.clearPending(ctx)
	var res *dispatch.TurnResult
	var out string
	var err error
	if ti, ok := in.(TurnIntegration); ok {
		res, err = ti.RunTurn(ctx, ext.Payload)
	} else {
		out, err = in.Run(ctx, ext.Payload)
	}
	x.audit(func(l *activity.Log) error { return l.LogResume(user, name, err) })
	if err != nil {
		logging.Error("executive", "integration %s failed: %v", name, err)
		if saveErr := x.engine.Pending().Save(ctx, *plan); saveErr != nil {
			logging.Warn("executive", "failed to restore pending plan: %v", saveErr)
		}
		return reply("That didn't work. Say yes to try again, or no to drop it.")
	}
	logging.Info("executive", "integration %s completed", name)
	if res != nil {
		out = strings.Join(res.Messages, "\n")
	}
	if out == "" {
		out = "Done."
	}
	r := reply(out)
	if res != nil {
		r.Refresh, r.Summary, r.Outcomes, r.State = res.Refresh, res.Summary, res.Outcomes, res.State
	}
	return r
}

func (x *Executive) clearPending(ctx context.Context) {
	if err := x.engine.Pending().Clear(ctx); err != nil {
		logging.Warn("executive", "failed to clear pending plan: %v", err)
	}
}

func (x *Executive) recall(ctx context.Context, text string) []types.Note {
	if x.memory == nil {
		return nil
	}
	notes, err := x.memory.Recall(ctx, text, x.cfg.RecallLimit)
	if err != nil {
		logging.Warn("executive", "recall failed: %v", err)
		return nil
	}
	return notes
}

func (x *Executive) recent(user string) []planner.Exchange {
	h, _ := x.history.Get(user)
	return h
}

func (x *Executive) record(msg Message, res *dispatch.TurnResult) {
	h, _ := x.history.Get(msg.UserID)
	h = append(h, planner.Exchange{User: msg.Text, Assistant: strings.Join(res.Messages, "\n")})
	if len(h) > x.cfg.HistoryTurns {
		h = h[len(h)-x.cfg.HistoryTurns:]
	}
	x.history.Add(msg.UserID, h)
}

func (x *Executive) audit(write func(*activity.Log) error) {
	if x.cfg.Activity == nil {
		return
	}
	if err := write(x.cfg.Activity); err != nil {
		logging.Warn("executive", "activity log: %v", err)
	}
}

func reply(msg string) *dispatch.TurnResult {
	return &dispatch.TurnResult{State: dispatch.StateDone, Messages: []string{msg}}
}
