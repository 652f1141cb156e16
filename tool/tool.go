// Package tool implements the structured invocation surface that exposes the
// delegation controller to an LLM: schema-described tools with validated
// arguments and consistent error handling.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/delegatemesh/internal/util"
	"github.com/hupe1980/delegatemesh/logging"
)

// Tool defines one structured capability offered to a calling agent.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be thread-safe if used concurrently
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for parameter validation and LLM function calling.
	Parameters() map[string]any

	// Call executes the tool with structured arguments. Arguments are parsed
	// from JSON and validated against the tool's schema before execution.
	Call(toolCtx *Context, args map[string]any) (any, error)
}

// Context carries per-invocation state into tool calls: the request context,
// the identity of the calling (delegator) agent and a logger.
type Context struct {
	ctx         context.Context
	delegatorID string
	logger      logging.Logger
}

// NewContext builds a tool invocation context for the given delegator.
func NewContext(ctx context.Context, delegatorID string, logger logging.Logger) *Context {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Context{ctx: ctx, delegatorID: delegatorID, logger: logger}
}

// Context returns the request context for cancellation and deadlines.
func (c *Context) Context() context.Context { return c.ctx }

// DelegatorID returns the id of the calling agent.
func (c *Context) DelegatorID() string { return c.delegatorID }

// Logger returns the invocation logger.
func (c *Context) Logger() logging.Logger { return c.logger }

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
