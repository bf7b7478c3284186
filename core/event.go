package core

import (
	"sync"
	"time"
)

// EventType categorizes engine events emitted on the EventBus.
type EventType string

const (
	// EventMessageAppended fires after a message is appended to a conversation.
	EventMessageAppended EventType = "message.appended"
	// EventConversationBusy fires when a send is refused because the
	// conversation's lock is held.
	EventConversationBusy EventType = "conversation.busy"
	// EventToolCallStarted fires before a tool call is executed.
	EventToolCallStarted EventType = "tool.call.started"
	// EventToolCallFinished fires after a tool call completes or fails.
	EventToolCallFinished EventType = "tool.call.finished"
	// EventApprovalPending fires when a tool call suspends awaiting approval.
	EventApprovalPending EventType = "approval.pending"
	// EventApprovalResolved fires when a pending approval is decided.
	EventApprovalResolved EventType = "approval.resolved"
)

// Event is a fire-and-forget notification fanned out synchronously to current
// subscribers. There is no delivery guarantee and no backpressure; subscribers
// must not block.
type Event struct {
	ID              string         `json:"id"`
	Type            EventType      `json:"type"`
	Timestamp       time.Time      `json:"timestamp"`
	SessionID       string         `json:"sessionId,omitempty"`
	ConversationKey string         `json:"conversationKey,omitempty"`
	ParticipantID   string         `json:"participantId,omitempty"`
	ToolName        string         `json:"toolName,omitempty"`
	Payload         map[string]any `json:"payload,omitempty"`
}

// NewEvent constructs an event of the given type with a fresh id and UTC
// timestamp. Callers fill in the correlation fields they know.
func NewEvent(t EventType) Event {
	return Event{ID: NewID(), Type: t, Timestamp: time.Now().UTC()}
}

// EventBus delivers events synchronously to all current subscribers. It is
// safe for concurrent use. A nil *EventBus is valid; Emit becomes a no-op.
type EventBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// NewEventBus constructs an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: map[int]func(Event){}}
}

// Subscribe registers fn for all future events and returns a cancel func that
// removes the subscription.
func (b *EventBus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Emit fans ev out to a snapshot of the current subscribers, in subscription
// order not guaranteed. Safe on a nil bus.
func (b *EventBus) Emit(ev Event) {
	if b == nil {
		return
	}

	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
