package runtime

import (
	"fmt"
	"sync"

	"github.com/clwillingham/legion/core"
	"github.com/clwillingham/legion/logging"
	"github.com/clwillingham/legion/tool"
)

// ScriptedCall is one tool invocation a mock performs before answering.
type ScriptedCall struct {
	Tool string
	Args map[string]any
}

// MockBehavior answers turns deterministically from the participant's canned
// responses, optionally running scripted tool calls first. It exists so
// multi-participant flows (including nested communicate chains and approval
// rounds) can be exercised without a model provider.
type MockBehavior struct {
	participant core.Participant
	registry    *tool.Registry
	logger      logging.Logger

	mu      sync.Mutex
	scripts map[string][]ScriptedCall // inbound message -> calls to run first
}

// NewMockBehavior builds the scripted behavior for one mock participant. The
// participant's Responses map keys inbound messages to replies; unmatched
// messages get an echoing fallback.
func NewMockBehavior(p core.Participant, registry *tool.Registry, logger logging.Logger) *MockBehavior {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &MockBehavior{
		participant: p,
		registry:    registry,
		logger:      logger,
		scripts:     make(map[string][]ScriptedCall),
	}
}

// Script registers tool calls to run when the given message arrives, before
// the canned response is returned.
func (b *MockBehavior) Script(message string, calls ...ScriptedCall) {
	b.mu.Lock()
	b.scripts[message] = calls
	b.mu.Unlock()
}

// HandleMessage implements core.Behavior.
func (b *MockBehavior) HandleMessage(rc *core.RunContext, message string) (string, error) {
	b.mu.Lock()
	calls := b.scripts[message]
	b.mu.Unlock()

	for i, call := range calls {
		callID := fmt.Sprintf("%s-call-%d", b.participant.ID, i)
		if _, err := b.registry.Execute(rc, b.participant.ID, callID, call.Tool, call.Args); err != nil {
			return "", err
		}
	}

	if reply, ok := b.participant.Responses[message]; ok {
		return reply, nil
	}
	if reply, ok := b.participant.Responses["*"]; ok {
		return reply, nil
	}
	return fmt.Sprintf("%s received: %s", b.participant.ID, message), nil
}
