package executive

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vthunder/steward/internal/actions"
	"github.com/vthunder/steward/internal/dispatch"
)

// ActionsIntegrationName is the default integration. Its payload is an
// action list held back until the user confirms.
const ActionsIntegrationName = "steward"

// ActionsIntegration runs a confirmed action list on the engine
type ActionsIntegration struct {
	Engine *dispatch.Engine
}

func (a ActionsIntegration) Run(ctx context.Context, payload json.RawMessage) (string, error) {
	res, err := a.RunTurn(ctx, payload)
	if err != nil {
		return "", err
	}
	return strings.Join(res.Messages, "\n"), nil
}

// RunTurn executes the confirmed actions and returns the whole turn, so the
// caller sees what changed
func (a ActionsIntegration) RunTurn(ctx context.Context, payload json.RawMessage) (*dispatch.TurnResult, error) {
	acts, err := actions.Parse(string(payload))
	if err != nil {
		return nil, fmt.Errorf("confirmed actions: %w", err)
	}
	res := a.Engine.Execute(ctx, acts)
	if res.Summary.Executed == 0 && res.Summary.Failed > 0 {
		return nil, fmt.Errorf("all %d confirmed action(s) failed: %s", res.Summary.Failed, strings.Join(res.Messages, "; "))
	}
	return res, nil
}
