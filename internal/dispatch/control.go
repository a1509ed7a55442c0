package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vthunder/steward/internal/actions"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/pending"
)

const defaultQuestion = "Could you tell me a bit more about what you'd like me to do?"

// pause halts the turn and records the question so the next message can
// resume it
func (e *Engine) pause(ctx context.Context, t *turn, a actions.Action, status, question, detail string, options []string) step {
	t.paused = true

	question = strings.TrimSpace(question)
	if question == "" {
		question = defaultQuestion
	}
	raw, err := json.Marshal(a)
	if err != nil {
		logging.Warn("dispatch", "could not serialize %s for resumption: %v", a.Kind, err)
		raw = nil
	}
	plan := pending.Plan{
		Status:    status,
		Question:  question,
		Context:   detail,
		Action:    raw,
		CreatedAt: e.now(),
	}
	if err := e.deps.Pending.Save(ctx, plan); err != nil {
		logging.Error("dispatch", "failed to save pending plan: %v", err)
	}

	msg := question
	for i, opt := range options {
		msg += fmt.Sprintf("\n%d. %s", i+1, opt)
	}
	return step{status: StatusPaused, message: msg}
}

// respond appends conversational text. After an informational action the
// text replaces that action's message instead of adding a second reply.
func (e *Engine) respond(t *turn, p *actions.Respond) step {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return done("")
	}
	msgs := t.result.Messages
	if t.suppress && len(msgs) > 0 {
		msgs[len(msgs)-1] = text
		t.suppress = false
		return done(text)
	}
	t.say(text)
	return done(text)
}
