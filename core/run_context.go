package core

import (
	"context"

	"github.com/clwillingham/legion/logging"
)

// Decision is the outcome of authorizing a single tool call.
type Decision struct {
	Authorized bool
	Reason     string
}

// Authorizer gates tool invocations. Implementations resolve a policy for the
// (participant, tool) pair and, for approval-gated calls, suspend until an
// external decision arrives.
type Authorizer interface {
	Authorize(ctx context.Context, participantID, toolName string, args map[string]any) Decision
}

// RunContext carries the per-call execution scope for one send and all sends
// nested beneath it. It aggregates:
//
//   - The ambient cancellation Context
//   - Depth of nested communicate calls and the chain of participant ids that
//     led here (diagnostics)
//   - Immutable MaxDepth / MaxIterations limits fixed at the top-level call
//   - Shared references to the Session, EventBus and Authorizer (not owned)
//   - The Conversation currently being serviced, set by Conversation.Send
//
// A RunContext is created once per top-level send; nested communicate calls
// derive children via Child with depth incremented and the caller appended to
// the chain. Instances are discarded when their call returns.
type RunContext struct {
	Context       context.Context
	Depth         int
	Chain         []string
	MaxDepth      int
	MaxIterations int
	Session       *Session
	Conversation  *Conversation
	Bus           *EventBus
	Auth          Authorizer

	*loggerAdapter
}

// NewRunContext constructs the top-level context for a send at depth 0 with an
// empty chain.
func NewRunContext(
	ctx context.Context,
	sess *Session,
	bus *EventBus,
	auth Authorizer,
	maxDepth, maxIterations int,
	logger logging.Logger,
) *RunContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &RunContext{
		Context:       ctx,
		Chain:         []string{},
		MaxDepth:      maxDepth,
		MaxIterations: maxIterations,
		Session:       sess,
		Bus:           bus,
		Auth:          auth,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Child derives the context for a nested communicate call issued by callerID.
// It fails with ErrMaxDepth when the derived depth would reach the configured
// maximum, so the nested target behavior is never invoked. Values of MaxDepth
// at or below 1 disable nesting entirely.
func (rc *RunContext) Child(callerID string) (*RunContext, error) {
	if rc.Depth+1 >= rc.MaxDepth {
		return nil, MaxDepthError(rc.MaxDepth)
	}

	chain := make([]string, 0, len(rc.Chain)+1)
	chain = append(chain, rc.Chain...)
	chain = append(chain, callerID)

	return &RunContext{
		Context:       rc.Context,
		Depth:         rc.Depth + 1,
		Chain:         chain,
		MaxDepth:      rc.MaxDepth,
		MaxIterations: rc.MaxIterations,
		Session:       rc.Session,
		Bus:           rc.Bus,
		Auth:          rc.Auth,
		loggerAdapter: rc.loggerAdapter,
	}, nil
}

// WithConversation returns a shallow copy bound to c. Conversation.Send uses
// this so behaviors can read the history of the conversation they serve
// without mutating the caller's context.
func (rc *RunContext) WithConversation(c *Conversation) *RunContext {
	clone := *rc
	clone.Conversation = c
	return &clone
}

type runContextKey struct{}

// RunContextFrom recovers the RunContext an Authorizer or tool was invoked
// under, when the caller threaded one through Authorize.
func RunContextFrom(ctx context.Context) (*RunContext, bool) {
	rc, ok := ctx.Value(runContextKey{}).(*RunContext)
	return rc, ok
}

// Authorize gates a tool call through the shared Authorizer. With no
// authorizer configured the call is denied (fail closed). The RunContext is
// threaded through the context so the authorizer can attribute the request.
func (rc *RunContext) Authorize(participantID, toolName string, args map[string]any) Decision {
	if rc.Auth == nil {
		return Decision{Authorized: false, Reason: "no authorization engine configured"}
	}
	ctx := context.WithValue(rc.Context, runContextKey{}, rc)
	return rc.Auth.Authorize(ctx, participantID, toolName, args)
}

// Emit publishes ev on the shared bus. Safe when no bus is configured.
func (rc *RunContext) Emit(ev Event) { rc.Bus.Emit(ev) }

// Done mirrors context.Context's Done.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }
