// Package tool implements the capability subsystem that lets participants
// invoke structured operations (messaging other participants, file access,
// computations) with schema validated arguments and consistent error
// handling. Every execution is routed through the Registry, which is where
// authorization is enforced.
package tool

import (
	"fmt"

	"github.com/clwillingham/legion/core"
	"github.com/clwillingham/legion/internal/util"
	"github.com/clwillingham/legion/logging"
)

// Tool defines the interface for extending participant capabilities.
//
// Tool implementations should:
//   - Provide clear, descriptive names (snake_case recommended)
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be thread-safe if used concurrently
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool
	// does, provided to models so they understand when to use it.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with structured arguments and a Context.
	Call(tc *Context, args map[string]any) (any, error)
}

// Context is what a tool sees while executing: the run scope of the send
// being serviced, the id of the participant making the call and the call id
// correlating model request and execution.
type Context struct {
	runCtx   *core.RunContext
	callerID string
	callID   string
}

// NewContext binds a tool execution to its run scope.
func NewContext(rc *core.RunContext, callerID, callID string) *Context {
	return &Context{runCtx: rc, callerID: callerID, callID: callID}
}

// Run returns the run scope of the send being serviced.
func (tc *Context) Run() *core.RunContext { return tc.runCtx }

// CallerID returns the id of the participant invoking the tool.
func (tc *Context) CallerID() string { return tc.callerID }

// CallID returns the function call identifier from the model response.
func (tc *Context) CallID() string { return tc.callID }

// Logger returns the run-scoped logger.
func (tc *Context) Logger() logging.Logger {
	if tc.runCtx == nil {
		return logging.NoOpLogger{}
	}
	return tc.runCtx.Logger()
}

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

// Unwrap exposes the underlying error when Details carries one, so sentinel
// checks with errors.Is survive tool wrapping across nested communicate hops.
func (e *ToolError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
