package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clwillingham/legion/core"
	"github.com/clwillingham/legion/logging"
)

// Policy names the outcome class for a (participant, tool) pair.
type Policy string

const (
	// PolicyAuto allows the call without asking anyone.
	PolicyAuto Policy = "auto"
	// PolicyRequiresApproval suspends the call until a decision maker answers.
	PolicyRequiresApproval Policy = "requires_approval"
	// PolicyDeny rejects the call without consulting a decision maker.
	PolicyDeny Policy = "deny"
)

// ParsePolicy converts a config string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyAuto, PolicyRequiresApproval, PolicyDeny:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown tool policy %q", s)
	}
}

// ApprovalDecision is the answer an ApprovalHandler produces for a request.
type ApprovalDecision struct {
	Approved bool
	Reason   string
}

// ApprovalHandler delivers a pending request to a decision maker and blocks
// until it is answered or ctx is done. The Bridge provides one; callers can
// supply their own (a CLI prompt, an HTTP callout) instead.
type ApprovalHandler func(ctx context.Context, req *ApprovalRequest) (ApprovalDecision, error)

// DefaultPolicies returns the built-in per-tool defaults: read-style tools
// run automatically, tools with side effects require approval.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		"read_file":   PolicyAuto,
		"list_files":  PolicyAuto,
		"write_file":  PolicyRequiresApproval,
		"communicate": PolicyRequiresApproval,
	}
}

// Options configures an Engine.
type Options struct {
	// Handler answers requires_approval requests. Without one, every such
	// request is denied.
	Handler ApprovalHandler
	// Timeout bounds how long one approval may stay pending. Zero means
	// wait for ctx alone.
	Timeout time.Duration
	// Defaults replaces the built-in per-tool default policies.
	Defaults map[string]Policy
	// Bus receives approval lifecycle events when set.
	Bus *core.EventBus
	// Logger receives structured engine logs.
	Logger logging.Logger
}

// Engine resolves policies and enforces them, implementing core.Authorizer.
// Resolution order for a (participant, tool) pair: participant override,
// engine-wide override, per-tool default, then requires_approval for tools
// nothing names.
type Engine struct {
	mu           sync.RWMutex
	handler      ApprovalHandler
	timeout      time.Duration
	defaults     map[string]Policy
	overrides    map[string]Policy            // tool -> policy
	participants map[string]map[string]Policy // participant -> tool -> policy
	history      []*ApprovalRequest

	bus    *core.EventBus
	logger logging.Logger
}

// New creates an Engine with the built-in defaults.
func New(optFns ...func(*Options)) *Engine {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	defaults := opts.Defaults
	if defaults == nil {
		defaults = DefaultPolicies()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Engine{
		handler:      opts.Handler,
		timeout:      opts.Timeout,
		defaults:     defaults,
		overrides:    make(map[string]Policy),
		participants: make(map[string]map[string]Policy),
		bus:          opts.Bus,
		logger:       opts.Logger,
	}
}

// WithHandler sets the approval handler.
func WithHandler(h ApprovalHandler) func(*Options) {
	return func(o *Options) { o.Handler = h }
}

// WithTimeout bounds how long approvals may stay pending.
func WithTimeout(d time.Duration) func(*Options) {
	return func(o *Options) { o.Timeout = d }
}

// WithDefaults replaces the built-in per-tool default policies.
func WithDefaults(d map[string]Policy) func(*Options) {
	return func(o *Options) { o.Defaults = d }
}

// WithBus attaches an event bus for approval lifecycle events.
func WithBus(bus *core.EventBus) func(*Options) {
	return func(o *Options) { o.Bus = bus }
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// SetHandler replaces the approval handler at runtime.
func (e *Engine) SetHandler(h ApprovalHandler) {
	e.mu.Lock()
	e.handler = h
	e.mu.Unlock()
}

// SetOverride pins an engine-wide policy for a tool, beating the defaults.
func (e *Engine) SetOverride(toolName string, p Policy) {
	e.mu.Lock()
	e.overrides[toolName] = p
	e.mu.Unlock()
}

// SetParticipantPolicy pins a policy for one participant and tool, beating
// both overrides and defaults.
func (e *Engine) SetParticipantPolicy(participantID, toolName string, p Policy) {
	e.mu.Lock()
	m, ok := e.participants[participantID]
	if !ok {
		m = make(map[string]Policy)
		e.participants[participantID] = m
	}
	m[toolName] = p
	e.mu.Unlock()
}

// ResolvePolicy returns the effective policy for the pair.
func (e *Engine) ResolvePolicy(participantID, toolName string) Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if m, ok := e.participants[participantID]; ok {
		if p, ok := m[toolName]; ok {
			return p
		}
	}
	if p, ok := e.overrides[toolName]; ok {
		return p
	}
	if p, ok := e.defaults[toolName]; ok {
		return p
	}
	return PolicyRequiresApproval
}

// Requests returns a copy of the approval requests created so far, oldest
// first, including resolved ones.
func (e *Engine) Requests() []*ApprovalRequest {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*ApprovalRequest, len(e.history))
	copy(out, e.history)
	return out
}

// Authorize implements core.Authorizer. Deny policies never reach the
// handler; requires_approval without a handler denies as well.
func (e *Engine) Authorize(ctx context.Context, participantID, toolName string, args map[string]any) core.Decision {
	policy := e.ResolvePolicy(participantID, toolName)

	switch policy {
	case PolicyAuto:
		return core.Decision{Authorized: true, Reason: "policy allows automatic execution"}
	case PolicyDeny:
		e.logger.Info("auth.denied", "participant_id", participantID, "tool", toolName, "policy", string(policy))
		return core.Decision{Authorized: false, Reason: fmt.Sprintf("policy denies tool %s for participant %s", toolName, participantID)}
	}

	e.mu.RLock()
	handler := e.handler
	timeout := e.timeout
	e.mu.RUnlock()

	if handler == nil {
		e.logger.Warn("auth.no_handler", "participant_id", participantID, "tool", toolName)
		return core.Decision{Authorized: false, Reason: "approval required but no approval handler is configured"}
	}

	req := NewApprovalRequest("", participantID, toolName, args)
	if rc, ok := core.RunContextFrom(ctx); ok && rc.Session != nil {
		req.SessionID = rc.Session.ID()
	}

	e.mu.Lock()
	e.history = append(e.history, req)
	e.mu.Unlock()

	e.emitApproval(core.EventApprovalPending, req, "")
	e.logger.Info("auth.pending", "request_id", req.ID, "participant_id", participantID, "tool", toolName)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	decision, err := handler(ctx, req)
	if err != nil {
		req.Resolve(false, err.Error())
		e.emitApproval(core.EventApprovalResolved, req, string(StatusRejected))
		return core.Decision{Authorized: false, Reason: fmt.Sprintf("approval failed: %v", err)}
	}

	req.Resolve(decision.Approved, decision.Reason)
	e.emitApproval(core.EventApprovalResolved, req, string(req.Status()))
	e.logger.Info("auth.resolved", "request_id", req.ID, "approved", decision.Approved)

	reason := decision.Reason
	if reason == "" {
		if decision.Approved {
			reason = "approved"
		} else {
			reason = "rejected"
		}
	}
	return core.Decision{Authorized: decision.Approved, Reason: reason}
}

func (e *Engine) emitApproval(t core.EventType, req *ApprovalRequest, status string) {
	ev := core.NewEvent(t)
	ev.SessionID = req.SessionID
	ev.ParticipantID = req.ParticipantID
	ev.ToolName = req.ToolName
	ev.Payload = map[string]any{"requestId": req.ID}
	if status != "" {
		ev.Payload["status"] = status
	}
	e.bus.Emit(ev)
}
