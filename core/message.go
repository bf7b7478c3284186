package core

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies which side of a directional conversation authored a message.
// It is derived from the conversation's direction when a message is appended,
// never supplied by callers, so the persisted log is unambiguous.
type Role string

const (
	// RoleInitiator marks messages sent by the conversation's initiator.
	RoleInitiator Role = "initiator"
	// RoleTarget marks messages produced by the conversation's target.
	RoleTarget Role = "target"
)

// ToolCall records a tool invocation requested during a turn.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // serialized JSON argument payload
}

// ToolResult records the outcome of a previously issued ToolCall.
type ToolResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Message is the canonical unit of conversation content. Messages are
// immutable after being appended to a conversation.
type Message struct {
	ID            string       `json:"id"`
	Role          Role         `json:"role"`
	ParticipantID string       `json:"participantId"`
	Text          string       `json:"text"`
	ToolCalls     []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults   []ToolResult `json:"toolResults,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

// NewMessage constructs a message authored by participantID with a fresh id
// and a UTC timestamp.
func NewMessage(role Role, participantID, text string) Message {
	return Message{
		ID:            NewID(),
		Role:          role,
		ParticipantID: participantID,
		Text:          text,
		Timestamp:     time.Now().UTC(),
	}
}

// NewID generates a new unique identifier for messages, tool calls and
// approval requests.
func NewID() string { return uuid.NewString() }
