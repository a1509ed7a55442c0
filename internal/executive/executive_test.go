package executive

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vthunder/steward/internal/activity"
	"github.com/vthunder/steward/internal/dispatch"
	"github.com/vthunder/steward/internal/gtd"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/pending"
	"github.com/vthunder/steward/internal/retry"
	"github.com/vthunder/steward/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticTokens string

func (s staticTokens) AccessToken(ctx context.Context, service string) (string, error) {
	return string(s), nil
}

// scriptedPlanner returns replies in order and records prompts
type scriptedPlanner struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string

	inflight    atomic.Int32
	maxInflight atomic.Int32
	gate        chan struct{}
}

func (p *scriptedPlanner) SendPrompt(ctx context.Context, prompt string, attachment []byte) (string, error) {
	n := p.inflight.Add(1)
	defer p.inflight.Add(-1)
	for {
		peak := p.maxInflight.Load()
		if n <= peak || p.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}
	if p.gate != nil {
		<-p.gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	if p.err != nil {
		return "", p.err
	}
	if len(p.replies) == 0 {
		return `[{"respond":"ok"}]`, nil
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	return r, nil
}

func (p *scriptedPlanner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

func (p *scriptedPlanner) lastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts[len(p.prompts)-1]
}

type fakeMemory struct {
	notes []types.Note
}

func (m *fakeMemory) Remember(ctx context.Context, text, topic string) (types.Note, error) {
	n := types.Note{ID: int64(len(m.notes) + 1), Text: text, Topic: topic}
	m.notes = append(m.notes, n)
	return n, nil
}

func (m *fakeMemory) Recall(ctx context.Context, query string, limit int) ([]types.Note, error) {
	return m.notes, nil
}

type fixture struct {
	exec    *Executive
	planner *scriptedPlanner
	tasks   *gtd.Store
	pending pending.Store
}

func newFixture(t *testing.T, replies ...string) *fixture {
	t.Helper()
	store := gtd.NewStore(t.TempDir(), time.UTC)
	plans := pending.NewMemoryStore()
	cfg := dispatch.DefaultConfig()
	cfg.Location = time.UTC
	cfg.Retry = retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond}
	engine := dispatch.New(dispatch.Deps{
		Tasks:   store,
		Tokens:  staticTokens("local"),
		Pending: plans,
	}, cfg)
	p := &scriptedPlanner{replies: replies}
	x := New(engine, p, nil, nil, Config{
		Retry:    retry.Config{MaxAttempts: 2, BaseDelay: time.Millisecond},
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC) },
	})
	return &fixture{exec: x, planner: p, tasks: store, pending: plans}
}

func (f *fixture) send(t *testing.T, text string) *dispatch.TurnResult {
	t.Helper()
	res, err := f.exec.HandleMessage(context.Background(), Message{UserID: "u1", Text: text})
	require.NoError(t, err)
	return res
}

func (f *fixture) plan(t *testing.T) *pending.Plan {
	t.Helper()
	p, err := f.pending.Get(context.Background())
	require.NoError(t, err)
	return p
}

func TestHandleMessage_RunsPlannerOutput(t *testing.T) {
	f := newFixture(t, `[{"add_task":{"title":"Buy milk"}}]`)

	res := f.send(t, "add buy milk to my list")
	assert.Equal(t, []string{`Added task "Buy milk".`}, res.Messages)
	assert.True(t, res.Refresh.Tasks)
	assert.Contains(t, f.planner.lastPrompt(), "## Message\nadd buy milk to my list\n")
	assert.Contains(t, f.planner.lastPrompt(), "Monday 2026-10-19 09:00 (UTC)")
	require.Len(t, f.tasks.Tasks(), 1)
}

func TestHandleMessage_DenyDropsPendingQuestion(t *testing.T) {
	f := newFixture(t, `[{"await_user":{"question":"Which day?"}}]`)

	res := f.send(t, "book the dentist")
	assert.Equal(t, dispatch.StatePaused, res.State)
	require.NotNil(t, f.plan(t))

	res = f.send(t, "nevermind")
	assert.Equal(t, []string{msgDropped}, res.Messages)
	assert.Nil(t, f.plan(t))
	assert.Equal(t, 1, f.planner.calls())
}

func TestHandleMessage_AffirmToQuestionGoesToPlanner(t *testing.T) {
	f := newFixture(t,
		`[{"await_user":{"question":"Should I add it for Friday?"}}]`,
		`[{"add_task":{"title":"Dentist","due_date":"2026-10-23"}}]`,
	)

	f.send(t, "remind me about the dentist")
	res := f.send(t, "yes")
	assert.Equal(t, 2, f.planner.calls())
	assert.Contains(t, f.planner.lastPrompt(), "Last turn I asked: Should I add it for Friday?")
	assert.Contains(t, f.planner.lastPrompt(), "User: remind me about the dentist\nAssistant: Should I add it for Friday?")
	assert.Len(t, res.Messages, 1)
	assert.Nil(t, f.plan(t), "executed mutation clears the question")
}

func TestHandleMessage_ResumesExternalAction(t *testing.T) {
	f := newFixture(t, `[{"external_action":{"question":"Add both tasks?","payload":[{"add_task":{"title":"A"}},{"add_task":{"title":"B"}}]}}]`)

	res := f.send(t, "add A and B but check with me first")
	assert.Equal(t, []string{"Add both tasks?"}, res.Messages)
	require.NotNil(t, f.plan(t))
	assert.Empty(t, f.tasks.Tasks())

	res = f.send(t, "go ahead")
	assert.Equal(t, []string{"Added task \"A\".\nAdded task \"B\"."}, res.Messages)
	assert.True(t, res.Refresh.Tasks)
	assert.True(t, res.Refresh.Summary)
	assert.Equal(t, 2, res.Summary.Executed)
	assert.Len(t, res.Outcomes, 2)
	assert.Equal(t, dispatch.StateDone, res.State)
	assert.Len(t, f.tasks.Tasks(), 2)
	assert.Nil(t, f.plan(t))
	assert.Equal(t, 1, f.planner.calls())
}

func TestHandleMessage_WritesActivity(t *testing.T) {
	f := newFixture(t, `[{"external_action":{"question":"Add it?","payload":[{"add_task":{"title":"A"}}]}}]`)
	log := activity.New(t.TempDir())
	f.exec.cfg.Activity = log

	f.send(t, "add A once I confirm")
	f.send(t, "yes")

	entries, err := log.Recent(0)
	require.NoError(t, err)
	var got []string
	for _, e := range entries {
		got = append(got, string(e.Type)+":"+e.Kind+":"+e.Status)
	}
	assert.Equal(t, []string{
		"input::",
		"planner::",
		"action:external_action:paused",
		"input::",
		"quick_reply::affirm",
		"resume:steward:done",
	}, got)
	assert.Equal(t, "add A once I confirm", entries[0].Summary)
}

type failingIntegration struct{ calls int }

func (f *failingIntegration) Run(ctx context.Context, payload json.RawMessage) (string, error) {
	f.calls++
	return "", errors.New("remote down")
}

func TestHandleMessage_ExternalActionIntegrations(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		f := newFixture(t, `[{"external_action":{"question":"Post it?","integration":"zapier","payload":{}}}]`)
		f.send(t, "post to zapier")
		res := f.send(t, "yes")
		assert.Equal(t, []string{"I can't do that here: zapier isn't connected."}, res.Messages)
		assert.Nil(t, f.plan(t))
	})

	t.Run("failure keeps the question", func(t *testing.T) {
		f := newFixture(t, `[{"external_action":{"question":"Sync now?","integration":"flaky","payload":{}}}]`)
		flaky := &failingIntegration{}
		f.exec.RegisterIntegration("flaky", flaky)

		f.send(t, "sync it")
		res := f.send(t, "yes")
		assert.Contains(t, res.Messages[0], "didn't work")
		assert.Equal(t, 1, flaky.calls)
		plan := f.plan(t)
		require.NotNil(t, plan)
		assert.Equal(t, "Sync now?", plan.Question)

		f.send(t, "yes")
		assert.Equal(t, 2, flaky.calls)
	})
}

func TestHandleMessage_PlannerFailure(t *testing.T) {
	f := newFixture(t)
	f.planner.err = &retry.StatusError{Service: "planner", Code: 503}

	res := f.send(t, "hello")
	assert.Equal(t, []string{msgPlannerUnavailable}, res.Messages)
	assert.Equal(t, 2, f.planner.calls())
}

func TestHandleMessage_ParseFailure(t *testing.T) {
	f := newFixture(t, "I think you should add milk")

	res := f.send(t, "add milk")
	require.Error(t, res.ParseError)
	assert.Equal(t, []string{msgNotUnderstood}, res.Messages)
}

func TestHandleMessage_RecallsNotes(t *testing.T) {
	f := newFixture(t)
	f.exec.memory = &fakeMemory{notes: []types.Note{{Text: "Gym is on Tuesdays"}}}

	f.send(t, "when is gym")
	assert.Contains(t, f.planner.lastPrompt(), "- Gym is on Tuesdays")
}

func TestHandleMessage_HistoryIsBounded(t *testing.T) {
	f := newFixture(t)
	f.exec.cfg.HistoryTurns = 2

	for _, text := range []string{"one", "two", "three"} {
		f.send(t, text)
	}
	assert.Len(t, f.exec.recent("u1"), 2)
	assert.Equal(t, "three", f.exec.recent("u1")[1].User)
	assert.Empty(t, f.exec.recent("u2"))
}

func TestHandleMessage_SerializesPerUser(t *testing.T) {
	f := newFixture(t)
	f.planner.gate = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.exec.HandleMessage(context.Background(), Message{UserID: "u1", Text: "hi"})
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 3; i++ {
		f.planner.gate <- struct{}{}
	}
	wg.Wait()

	assert.EqualValues(t, 1, f.planner.maxInflight.Load())
	assert.Equal(t, 3, f.planner.calls())
}

// stuckStore keeps its plan because Clear always fails
type stuckStore struct {
	*pending.MemoryStore
}

func (s stuckStore) Clear(ctx context.Context) error {
	return errors.New("disk full")
}

func TestResume_LogsClearFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logging.SetLogger(zap.New(core))
	defer logging.SetLogger(zap.NewNop())

	plans := stuckStore{pending.NewMemoryStore()}
	require.NoError(t, plans.Save(context.Background(), pending.Plan{
		Status:   pending.StatusExternalAction,
		Question: "Run it?",
		Action:   json.RawMessage(`{not json`),
	}))
	engine := dispatch.New(dispatch.Deps{Tokens: staticTokens("local"), Pending: plans}, dispatch.DefaultConfig())
	x := New(engine, &scriptedPlanner{}, nil, nil, Config{Location: time.UTC})

	res, err := x.HandleMessage(context.Background(), Message{UserID: "u1", Text: "yes"})
	require.NoError(t, err)
	assert.Equal(t, []string{"I lost track of what I was going to do. Could you ask again?"}, res.Messages)
	assert.Equal(t, 1, logs.FilterMessage("failed to clear pending plan: disk full").Len())
}
