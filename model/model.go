package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/clwillingham/legion/core"
)

// Message is one entry of the normalized transcript handed to a provider.
// Role is one of "system", "user", "assistant" or "tool".
type Message struct {
	Role        string            `json:"role"`
	Text        string            `json:"text,omitempty"`
	ToolCalls   []core.ToolCall   `json:"toolCalls,omitempty"`
	ToolResults []core.ToolResult `json:"toolResults,omitempty"`
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by agent runtimes.
type Request struct {
	Instructions string           `json:"instructions,omitempty"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the final output of one generation: assistant text and/or the
// tool calls the model wants executed before it can continue.
type Response struct {
	Text         string          `json:"text,omitempty"`
	ToolCalls    []core.ToolCall `json:"toolCalls,omitempty"`
	FinishReason string          `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage     `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agent runtimes to drive
// generation. Generate blocks until the provider answers or ctx ends.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests and mock
// participants. Queued responses (which may include tool calls) are consumed
// first, then canned prompt-keyed responses, then an echoing fallback.
type MockModel struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	queue     []*Response
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock", SupportsTools: true},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	m.responses[prompt] = response
	m.mu.Unlock()
}

// QueueResponse appends a scripted response consumed in FIFO order before any
// prompt matching happens. Use it to script tool-calling turns.
func (m *MockModel) QueueResponse(resp *Response) {
	m.mu.Lock()
	m.queue = append(m.queue, resp)
	m.mu.Unlock()
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) > 0 {
		resp := m.queue[0]
		m.queue = m.queue[1:]
		return resp, nil
	}

	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	prompt := req.Messages[len(req.Messages)-1].Text
	text, ok := m.responses[prompt]
	if !ok {
		text = fmt.Sprintf("Mock response to: %s", prompt)
	}
	return &Response{Text: text, FinishReason: "stop"}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
