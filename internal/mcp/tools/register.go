package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vthunder/steward/internal/dispatch"
	"github.com/vthunder/steward/internal/executive"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/pending"
	"github.com/vthunder/steward/internal/timewin"
)

// RegisterAll registers all MCP tools with the given server and dependencies.
func RegisterAll(s *server.MCPServer, deps *Dependencies) {
	s.AddTools(Toolset(deps)...)
}

// Toolset returns the tools deps can support
func Toolset(deps *Dependencies) []server.ServerTool {
	var ts toolset
	registerEngineTools(&ts, deps)
	registerPendingTools(&ts, deps)
	registerTimeTools(&ts, deps)

	if deps.Executive != nil {
		registerConversationTools(&ts, deps)
	}
	return ts
}

type toolset []server.ServerTool

func (ts *toolset) AddTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	*ts = append(*ts, server.ServerTool{Tool: tool, Handler: handler})
}

func registerEngineTools(s *toolset, deps *Dependencies) {
	s.AddTool(mcp.NewTool("execute_actions",
		mcp.WithDescription("Run a list of assistant actions (calendar, tasks, email, notes, web) and report what happened. Input is a JSON array where each action is a single-key object like {\"add_task\": {\"title\": \"Milk\"}}. Actions run in order; a clarification or external action pauses the rest."),
		mcp.WithString("actions",
			mcp.Required(),
			mcp.Description("JSON action list as produced by the planner"),
		),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		raw, _ := args["actions"].(string)
		if strings.TrimSpace(raw) == "" {
			return mcp.NewToolResultError("actions is required"), nil
		}
		deps.called("execute_actions")

		res := deps.Engine.RunTurn(ctx, raw)
		if res.ParseError != nil {
			return mcp.NewToolResultError(fmt.Sprintf("could not parse actions: %v", res.ParseError)), nil
		}
		return mcp.NewToolResultText(FormatTurn(res)), nil
	})
}

func registerConversationTools(s *toolset, deps *Dependencies) {
	s.AddTool(mcp.NewTool("handle_message",
		mcp.WithDescription("Handle a chat message the way the assistant would: quick yes/no replies to a pending question, otherwise plan with the language model and run the resulting actions."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The user's message"),
		),
		mcp.WithString("user_id",
			mcp.Description("Who sent it. Turns for the same user never overlap. Default: the configured owner"),
		),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		text, _ := args["text"].(string)
		if strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("text is required"), nil
		}
		user, _ := args["user_id"].(string)
		if user == "" {
			user = deps.DefaultUser
		}
		deps.called("handle_message")

		res, err := deps.Executive.HandleMessage(ctx, executive.Message{UserID: user, Text: text})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(FormatTurn(res)), nil
	})
}

func registerPendingTools(s *toolset, deps *Dependencies) {
	s.AddTool(mcp.NewTool("pending_plan",
		mcp.WithDescription("Show the question the assistant is waiting on, if any, with the paused action."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.called("pending_plan")
		plan, err := deps.Engine.Pending().Get(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read pending plan: %v", err)), nil
		}
		if plan == nil {
			return mcp.NewToolResultText("No pending question."), nil
		}
		return mcp.NewToolResultText(formatPlan(plan, deps.location())), nil
	})

	s.AddTool(mcp.NewTool("clear_pending_plan",
		mcp.WithDescription("Drop the pending question so the next message starts fresh."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		deps.called("clear_pending_plan")
		if err := deps.Engine.Pending().Clear(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to clear pending plan: %v", err)), nil
		}
		logging.Info("mcp", "pending plan cleared")
		return mcp.NewToolResultText("Pending question cleared."), nil
	})
}

func registerTimeTools(s *toolset, deps *Dependencies) {
	s.AddTool(mcp.NewTool("canonicalize_time",
		mcp.WithDescription("Round HH:MM times to five minutes the way event windows are stored. With only start, returns the rounded time. With end or duration_minutes, returns the full window and every adjustment made."),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start time as HH:MM (24-hour)"),
		),
		mcp.WithString("end",
			mcp.Description("End time as HH:MM. Takes precedence over duration_minutes"),
		),
		mcp.WithNumber("duration_minutes",
			mcp.Description("Window length in minutes, used when end is not given"),
		),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		start, _ := args["start"].(string)
		end, _ := args["end"].(string)
		duration := 0
		if d, ok := args["duration_minutes"].(float64); ok {
			duration = int(d)
		}
		deps.called("canonicalize_time")

		if _, hasDuration := args["duration_minutes"]; end == "" && !hasDuration {
			label, err := timewin.Canonicalize(start)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText(label), nil
		}

		w, err := timewin.Derive(start, end, duration)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out := fmt.Sprintf("%s-%s (%d min)", w.StartLabel, w.EndLabel, int(w.Duration().Minutes()))
		for _, adj := range w.Adjustments {
			out += "\n- " + adj
		}
		return mcp.NewToolResultText(out), nil
	})
}

// FormatTurn renders a turn result as plain text for tool output
func FormatTurn(res *dispatch.TurnResult) string {
	var b strings.Builder
	for _, m := range res.Messages {
		b.WriteString(m + "\n")
	}
	if len(res.Messages) > 0 {
		b.WriteString("\n")
	}
	sum := res.Summary
	fmt.Fprintf(&b, "state: %s, executed: %d, failed: %d, skipped: %d", res.State, sum.Executed, sum.Failed, sum.Skipped)
	if sum.EmailsSent > 0 || sum.EmailsFailed > 0 {
		fmt.Fprintf(&b, ", emails sent: %d, emails failed: %d", sum.EmailsSent, sum.EmailsFailed)
	}

	var refresh []string
	if res.Refresh.Calendar {
		refresh = append(refresh, "calendar")
	}
	if res.Refresh.Tasks {
		refresh = append(refresh, "tasks")
	}
	if res.Refresh.Mail {
		refresh = append(refresh, "mail")
	}
	if len(refresh) > 0 {
		b.WriteString("\nchanged: " + strings.Join(refresh, ", "))
	}
	return b.String()
}

func formatPlan(plan *pending.Plan, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Waiting on: %s\n", plan.Question)
	fmt.Fprintf(&b, "Status: %s\n", plan.Status)
	if !plan.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "Asked: %s\n", plan.CreatedAt.In(loc).Format("Mon Jan 2 15:04"))
	}
	if plan.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", plan.Context)
	}
	if len(plan.Action) > 0 {
		fmt.Fprintf(&b, "Action: %s\n", plan.Action)
	}
	return strings.TrimRight(b.String(), "\n")
}
