package tool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/clwillingham/legion/core"
)

// Registry holds the tools available in an engine and is the single execution
// path for them. Execute resolves the tool, gates the call through the
// authorization engine, then invokes it, so no tool runs unauthorized no
// matter which runtime asked.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	r.tools[t.Name()] = t
	r.mu.Unlock()
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select returns the tools whose names appear in names, skipping unknown
// entries. With an empty names slice it returns every registered tool.
func (r *Registry) Select(names []string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 {
		out := make([]Tool, 0, len(r.tools))
		for _, t := range r.tools {
			out = append(out, t)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
		return out
	}

	out := make([]Tool, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Execute runs one tool call on behalf of callerID: unknown tools fail with
// ErrToolNotFound, denied calls with ErrToolDenied carrying the authorizer's
// reason, and only authorized calls reach the tool itself. Start and finish
// events are emitted around the call.
func (r *Registry) Execute(rc *core.RunContext, callerID, callID, name string, args map[string]any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrToolNotFound, name)
	}

	decision := rc.Authorize(callerID, name, args)
	if !decision.Authorized {
		rc.LogWarn("tool.execute.denied", "tool", name, "caller_id", callerID, "reason", decision.Reason)
		return nil, fmt.Errorf("%w: %s: %s", core.ErrToolDenied, name, decision.Reason)
	}

	emitToolEvent(rc, core.EventToolCallStarted, callerID, name, callID, nil)

	result, err := t.Call(NewContext(rc, callerID, callID), args)

	payload := map[string]any{"success": err == nil}
	if err != nil {
		payload["error"] = err.Error()
	}
	emitToolEvent(rc, core.EventToolCallFinished, callerID, name, callID, payload)

	return result, err
}

func emitToolEvent(rc *core.RunContext, t core.EventType, callerID, toolName, callID string, payload map[string]any) {
	ev := core.NewEvent(t)
	if rc.Session != nil {
		ev.SessionID = rc.Session.ID()
	}
	if rc.Conversation != nil {
		ev.ConversationKey = rc.Conversation.Key()
	}
	ev.ParticipantID = callerID
	ev.ToolName = toolName
	if payload == nil {
		payload = map[string]any{}
	}
	payload["callId"] = callID
	ev.Payload = payload
	rc.Emit(ev)
}
