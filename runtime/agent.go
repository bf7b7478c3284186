package runtime

import (
	"encoding/json"
	"fmt"

	"github.com/clwillingham/legion/core"
	"github.com/clwillingham/legion/logging"
	"github.com/clwillingham/legion/model"
	"github.com/clwillingham/legion/tool"
)

// AgentBehavior answers turns by driving a model in a generate/execute loop:
// the model sees the conversation so far plus the tools its participant may
// use; when it asks for tool calls they are executed through the registry
// (which enforces authorization) and fed back; when it answers with plain
// text the turn is done. The loop is bounded by the run's iteration limit.
type AgentBehavior struct {
	participant core.Participant
	model       model.Model
	registry    *tool.Registry
	logger      logging.Logger
}

// NewAgentBehavior builds the model-driven behavior for one agent participant.
func NewAgentBehavior(p core.Participant, m model.Model, registry *tool.Registry, logger logging.Logger) *AgentBehavior {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &AgentBehavior{participant: p, model: m, registry: registry, logger: logger}
}

// HandleMessage implements core.Behavior.
func (b *AgentBehavior) HandleMessage(rc *core.RunContext, message string) (string, error) {
	limiter := core.NewIterationLimiter(rc.MaxIterations)
	messages := b.transcript(rc)

	req := model.Request{
		Instructions: b.participant.SystemPrompt,
		Messages:     messages,
		Tools:        b.toolDefinitions(),
	}

	for {
		if err := limiter.Increment(); err != nil {
			return "", err
		}

		resp, err := b.model.Generate(rc.Context, req)
		if err != nil {
			return "", fmt.Errorf("%w: %v", core.ErrProvider, err)
		}

		if len(resp.ToolCalls) == 0 {
			b.logger.Debug("agent.turn.done",
				"participant_id", b.participant.ID,
				"iterations", limiter.Count(),
			)
			return resp.Text, nil
		}

		results := b.executeToolCalls(rc, resp.ToolCalls)

		req.Messages = append(req.Messages,
			model.Message{Role: "assistant", Text: resp.Text, ToolCalls: resp.ToolCalls},
			model.Message{Role: "tool", ToolResults: results},
		)
	}
}

// transcript maps the conversation history into model messages from this
// participant's point of view: what the initiator said reads as user input,
// its own earlier replies as assistant output. The inbound message of the
// current turn is already in the history.
func (b *AgentBehavior) transcript(rc *core.RunContext) []model.Message {
	if rc.Conversation == nil {
		return nil
	}
	history := rc.Conversation.Messages()
	messages := make([]model.Message, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.Role == core.RoleTarget {
			role = "assistant"
		}
		messages = append(messages, model.Message{Role: role, Text: msg.Text})
	}
	return messages
}

func (b *AgentBehavior) toolDefinitions() []model.ToolDefinition {
	if b.registry == nil {
		return nil
	}
	tools := b.registry.Select(b.participant.Tools)
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// executeToolCalls runs each requested call and folds the outcome, success or
// failure, into a tool result. Failures go back to the model as results
// rather than aborting the turn, so it can recover or explain.
func (b *AgentBehavior) executeToolCalls(rc *core.RunContext, calls []core.ToolCall) []core.ToolResult {
	results := make([]core.ToolResult, 0, len(calls))
	for _, call := range calls {
		args := map[string]any{}
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				results = append(results, core.ToolResult{
					ID:    call.ID,
					Name:  call.Name,
					Error: fmt.Sprintf("invalid tool arguments: %v", err),
				})
				continue
			}
		}

		out, err := b.registry.Execute(rc, b.participant.ID, call.ID, call.Name, args)
		if err != nil {
			results = append(results, core.ToolResult{ID: call.ID, Name: call.Name, Error: err.Error()})
			continue
		}

		content := ""
		switch v := out.(type) {
		case string:
			content = v
		case nil:
		default:
			if data, merr := json.Marshal(v); merr == nil {
				content = string(data)
			} else {
				content = fmt.Sprintf("%v", v)
			}
		}
		results = append(results, core.ToolResult{ID: call.ID, Name: call.Name, Content: content})
	}
	return results
}
