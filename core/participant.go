package core

import (
	"fmt"
	"strings"
)

// ParticipantKind enumerates the closed set of participant variants. Dispatch
// over kinds happens by switch, not inheritance.
type ParticipantKind string

const (
	// KindAgent is an LLM-driven participant running a tool-calling loop.
	KindAgent ParticipantKind = "agent"
	// KindUser is a human operator reached through an injected prompt func.
	KindUser ParticipantKind = "user"
	// KindMock is a scripted participant used in tests and demos.
	KindMock ParticipantKind = "mock"
)

// Participant is an addressable entity that can receive and produce messages.
// The struct is a plain record; behavior is attached by the runtime dispatcher
// based on Kind.
type Participant struct {
	ID          string          `json:"id"`
	Kind        ParticipantKind `json:"kind"`
	Description string          `json:"description,omitempty"`

	// Agent fields.
	Provider     string   `json:"provider,omitempty"` // "anthropic", "openai", "mock"
	Model        string   `json:"model,omitempty"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	Tools        []string `json:"tools,omitempty"` // empty means all registered tools

	// Mock fields: canned responses keyed by inbound text.
	Responses map[string]string `json:"responses,omitempty"`

	// Per-participant tool policy overrides, values are auth policy names
	// ("auto", "requires_approval", "deny"). Interpreted by the authorization
	// engine during wiring.
	ToolPolicies map[string]string `json:"toolPolicies,omitempty"`
}

// Validate checks structural invariants: a non-empty id that is a safe path
// element and free of the conversation key separator, and a known kind.
func (p *Participant) Validate() error {
	if err := CheckPathComponent("participant id", p.ID); err != nil {
		return err
	}
	if strings.Contains(p.ID, KeySeparator) {
		return fmt.Errorf("participant id %q must not contain %q", p.ID, KeySeparator)
	}
	switch p.Kind {
	case KindAgent, KindUser, KindMock:
		return nil
	default:
		return fmt.Errorf("unknown participant kind %q", p.Kind)
	}
}

// Behavior processes one inbound message for a participant. Implementations
// may issue nested communicate calls through the RunContext's session. Errors
// are downgraded to typed error Results by Conversation.Send; they never
// propagate as panics across a turn boundary.
type Behavior interface {
	HandleMessage(rc *RunContext, message string) (string, error)
}

// BehaviorFunc adapts a plain function to the Behavior interface.
type BehaviorFunc func(rc *RunContext, message string) (string, error)

// HandleMessage implements Behavior.
func (f BehaviorFunc) HandleMessage(rc *RunContext, message string) (string, error) {
	return f(rc, message)
}

// BehaviorResolver maps a participant id to its behavior. Implementations
// return ErrParticipantNotFound for unknown ids and ErrRuntimeNotFound when
// the participant exists but no runtime can serve its kind.
type BehaviorResolver interface {
	Resolve(participantID string) (Behavior, error)
}
