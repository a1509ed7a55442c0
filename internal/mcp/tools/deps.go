// Package tools provides MCP tool registration with dependency injection.
package tools

import (
	"time"

	"github.com/vthunder/steward/internal/dispatch"
	"github.com/vthunder/steward/internal/executive"
)

// Dependencies holds all services that MCP tools may need.
// Optional fields may be nil.
type Dependencies struct {
	// Core services (required)
	Engine *dispatch.Engine

	// Location renders times in tool output (default time.Local)
	Location *time.Location

	// Optional services
	// If set, handle_message runs full turns through the planner
	Executive *executive.Executive
	// DefaultUser is the user id for handle_message when none is given
	DefaultUser string

	// If set, MCP tools will call this to notify that they've been executed
	OnMCPToolCall func(toolName string)
}

func (d *Dependencies) location() *time.Location {
	if d.Location == nil {
		return time.Local
	}
	return d.Location
}

func (d *Dependencies) called(tool string) {
	if d.OnMCPToolCall != nil {
		d.OnMCPToolCall(tool)
	}
}
