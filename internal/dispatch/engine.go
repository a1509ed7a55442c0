// Package dispatch executes parsed actions against the mail, calendar and
// task services, verifying every mutation by reading remote state back.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vthunder/steward/internal/actions"
	"github.com/vthunder/steward/internal/bridge"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/pending"
	"github.com/vthunder/steward/internal/resolve"
	"github.com/vthunder/steward/internal/retry"
	"github.com/vthunder/steward/internal/types"
)

var (
	// ErrUnauthenticated means no access token is available for a service
	ErrUnauthenticated = errors.New("not signed in")
	// ErrUnverified means a mutation was accepted but a re-read did not confirm it
	ErrUnverified = errors.New("change could not be confirmed")
	// ErrInvalid marks a validation failure on one action
	ErrInvalid = errors.New("invalid action")
	// ErrUnavailable means the collaborator needed by an action is not configured
	ErrUnavailable = errors.New("service not available")
)

// State of a turn
type State int

const (
	StateRunning State = iota
	StatePaused
	StateDone
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Status of one action
type Status string

const (
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusSkipped   Status = "skipped"
	StatusPaused    Status = "paused"
)

// Outcome records what happened to one action
type Outcome struct {
	Index   int
	Kind    actions.Kind
	Status  Status
	Message string
	Err     error
}

// TurnResult is everything the caller needs after a turn
type TurnResult struct {
	Messages []string
	Refresh  types.RefreshSignals
	Summary  types.ExecutionSummary
	State    State
	Outcomes []Outcome
	// ParseError is set when the planner output could not be parsed; the
	// rest of the result is empty
	ParseError error
}

// Deps are the collaborators the engine talks to. Nil services make the
// corresponding actions fail with a message.
type Deps struct {
	Calendar CalendarService
	Tasks    TasksService
	Mail     MailService
	Tokens   TokenSource
	Memory   MemoryStore
	Web      WebClient
	Pending  pending.Store
	Bridges  *bridge.Bridges
	Resolver *resolve.Resolver
	Metrics  *Metrics

	// Now and NewKey default to time.Now and uuid.NewString
	Now    func() time.Time
	NewKey func() string
}

// Config tunes engine behavior
type Config struct {
	Location *time.Location
	// PreviewMail routes every email through the mail bridge before sending
	PreviewMail bool
	Retry       retry.Config
	// Search window for references without a date hint
	LookbackDays  int
	LookaheadDays int
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{
		Location:      time.Local,
		Retry:         retry.DefaultConfig(),
		LookbackDays:  7,
		LookaheadDays: 30,
	}
}

// Engine runs turns. It is safe for concurrent use, but turns for the same
// user should be serialized by the caller.
type Engine struct {
	deps Deps
	cfg  Config
}

// New creates an engine
func New(deps Deps, cfg Config) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewKey == nil {
		deps.NewKey = uuid.NewString
	}
	if deps.Pending == nil {
		deps.Pending = pending.NewMemoryStore()
	}
	if deps.Resolver == nil {
		var pick *bridge.Bridge[bridge.CalendarPickRequest, bridge.CalendarPickDecision]
		if deps.Bridges != nil {
			pick = deps.Bridges.CalendarPick
		}
		deps.Resolver = resolve.New(resolve.DefaultVocabulary(), pick)
	}
	if deps.Bridges != nil && deps.Metrics != nil {
		deps.Bridges.SetObserver(deps.Metrics.BridgeOutcome)
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	if deps.Metrics != nil && cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = deps.Metrics.retry
	}
	return &Engine{deps: deps, cfg: cfg}
}

// Pending returns the pending-plan store the engine writes to
func (e *Engine) Pending() pending.Store {
	return e.deps.Pending
}

// RunTurn parses raw planner output and executes it. Parse failures return
// an empty result with ParseError set.
func (e *Engine) RunTurn(ctx context.Context, raw string) *TurnResult {
	acts, err := actions.Parse(raw)
	if err != nil {
		e.deps.Metrics.parseFailure()
		logging.Warn("dispatch", "parse failed: %v (raw: %s)", err, logging.Truncate(raw, 200))
		return &TurnResult{State: StateDone, ParseError: err}
	}
	return e.Execute(ctx, acts)
}

// turn is the mutable state of one Execute call
type turn struct {
	result   *TurnResult
	suppress bool
	// mutated is set once any mutating action reached its remote call
	mutated bool
	paused  bool
}

func (t *turn) say(msg string) {
	if msg != "" {
		t.result.Messages = append(t.result.Messages, msg)
	}
}

// step is what a handler reports for one action
type step struct {
	status  Status
	message string
	err     error
	// changed names the service with a verified mutation
	changed string
}

func done(msg string) step { return step{status: StatusExecuted, message: msg} }

func changed(service, msg string) step {
	return step{status: StatusExecuted, message: msg, changed: service}
}

func failed(err error, msg string) step { return step{status: StatusFailed, message: msg, err: err} }

func cancelled(msg string) step { return step{status: StatusCancelled, message: msg} }

// Execute runs actions strictly in order. A clarification action pauses the
// turn and every later action is skipped.
func (e *Engine) Execute(ctx context.Context, acts []actions.Action) *TurnResult {
	started := time.Now()
	t := &turn{result: &TurnResult{State: StateRunning}}

	for i, a := range acts {
		outcome := Outcome{Index: i, Kind: a.Kind}

		switch {
		case t.paused:
			outcome.Status = StatusSkipped
			logging.Info("dispatch", "skipping %s after clarification", a.Kind)
		case ctx.Err() != nil:
			outcome.Status = StatusSkipped
			outcome.Err = ctx.Err()
		default:
			s := e.dispatch(ctx, t, a)
			outcome.Status, outcome.Message, outcome.Err = s.status, s.message, s.err
			e.record(t, a.Kind, s)
		}

		switch outcome.Status {
		case StatusExecuted:
			t.result.Summary.Executed++
		case StatusFailed:
			t.result.Summary.Failed++
		case StatusSkipped:
			t.result.Summary.Skipped++
		}
		if outcome.Err != nil {
			logging.Warn("dispatch", "%s #%d %s: %v", a.Kind, i, outcome.Status, outcome.Err)
		}
		e.deps.Metrics.action(string(a.Kind), outcome.Status)
		t.result.Outcomes = append(t.result.Outcomes, outcome)
	}

	if t.mutated && !t.paused {
		if err := e.deps.Pending.Clear(ctx); err != nil {
			logging.Error("dispatch", "failed to clear pending plan: %v", err)
		}
	}

	r := t.result
	r.Refresh.Summary = r.Refresh.Mail || r.Refresh.Calendar || r.Refresh.Tasks
	r.State = StateDone
	if t.paused {
		r.State = StatePaused
	}
	e.deps.Metrics.turn(r.State, time.Since(started))
	logging.Info("dispatch", "turn %s: %d executed, %d failed, %d skipped", r.State,
		r.Summary.Executed, r.Summary.Failed, r.Summary.Skipped)
	return r
}

// record applies a handler's step to the turn's messages and refresh signals
func (e *Engine) record(t *turn, kind actions.Kind, s step) {
	switch {
	case kind == actions.KindRespond:
		// handled in respond
	case kind.Informational():
		t.say(s.message)
		// a failure message must survive the planner's follow-up text
		t.suppress = s.status == StatusExecuted && s.message != ""
	default:
		t.say(s.message)
		t.suppress = false
	}

	switch s.changed {
	case types.ServiceMail:
		t.result.Refresh.Mail = true
	case types.ServiceCalendar:
		t.result.Refresh.Calendar = true
	case types.ServiceTasks:
		t.result.Refresh.Tasks = true
	}
}

func (e *Engine) dispatch(ctx context.Context, t *turn, a actions.Action) step {
	logging.Debug("dispatch", "executing %s", a.Kind)
	switch p := a.Payload.(type) {
	case *actions.SendEmail:
		return e.sendEmail(ctx, t, p)
	case *actions.AddCalendarEvent:
		return e.addEvent(ctx, t, p)
	case *actions.UpdateCalendarEvent:
		return e.updateEvent(ctx, t, p)
	case *actions.DeleteCalendarEvent:
		return e.deleteEvent(ctx, t, p)
	case *actions.ListCalendarEvents:
		return e.listEvents(ctx, p)
	case *actions.AddTask:
		return e.addTask(ctx, t, p)
	case *actions.UpdateTask:
		return e.updateTask(ctx, t, p)
	case *actions.DeleteTask:
		return e.deleteTask(ctx, t, p)
	case *actions.ListTasks:
		return e.listTasks(ctx, p)
	case *actions.Remember:
		return e.remember(ctx, p)
	case *actions.Recall:
		return e.recall(ctx, p)
	case *actions.WebSearch:
		return e.webSearch(ctx, p)
	case *actions.FetchURL:
		return e.fetchURL(ctx, p)
	case *actions.AwaitUser:
		return e.pause(ctx, t, a, pending.StatusAwaitUser, p.Question, p.Context, p.Options)
	case *actions.ExternalAction:
		return e.pause(ctx, t, a, pending.StatusExternalAction, p.Question, p.Context, nil)
	case *actions.Respond:
		return e.respond(t, p)
	}
	return failed(fmt.Errorf("%w: no handler for %s", ErrInvalid, a.Kind), "")
}

// token fetches the access token for service
func (e *Engine) token(ctx context.Context, service string) (string, error) {
	if e.deps.Tokens == nil {
		return "", fmt.Errorf("%s: %w", service, ErrUnauthenticated)
	}
	tok, err := e.deps.Tokens.AccessToken(ctx, service)
	if err != nil {
		return "", fmt.Errorf("%s token: %w", service, err)
	}
	if tok == "" {
		return "", fmt.Errorf("%s: %w", service, ErrUnauthenticated)
	}
	return tok, nil
}

// mutate marks the turn as having executed a mutation and runs fn through
// the retry wrapper with a fresh idempotency key
func mutate[T any](ctx context.Context, e *Engine, t *turn, op string, fn func(ctx context.Context, key string) (T, error)) (T, error) {
	t.mutated = true
	key := e.deps.NewKey()
	logging.Debug("dispatch", "%s idempotency key %s", op, key)
	return retry.Do(ctx, e.cfg.Retry, op, func(ctx context.Context) (T, error) {
		return fn(ctx, key)
	})
}

// read runs a read-only remote call through the retry wrapper
func read[T any](ctx context.Context, e *Engine, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	return retry.Do(ctx, e.cfg.Retry, op, fn)
}

// unverified builds the failure step for a mutation that was not confirmed
func (e *Engine) unverified(service string, cause error, msg string) step {
	e.deps.Metrics.verifyFailure(service)
	err := ErrUnverified
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrUnverified, cause)
	}
	return failed(err, msg)
}

// now returns the current time in the configured location
func (e *Engine) now() time.Time {
	return e.deps.Now().In(e.cfg.Location)
}

// describe converts an error into user-facing text
func describe(service string, err error) string {
	var se *retry.StatusError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return fmt.Sprintf("I'm not signed in to your %s. Please reconnect it and try again.", service)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "I stopped before finishing because the request was cancelled."
	case errors.As(err, &se) && se.Code == 429:
		return fmt.Sprintf("Your %s is rate limiting me right now. Please try again in a minute.", service)
	case errors.As(err, &se) && se.Code >= 500:
		return fmt.Sprintf("Your %s service is having trouble (HTTP %d). Please try again later.", service, se.Code)
	case errors.As(err, &se) && (se.Code == 401 || se.Code == 403):
		return fmt.Sprintf("Your %s rejected my access. Please reconnect it.", service)
	}
	return fmt.Sprintf("Something went wrong with your %s: %v", service, err)
}
