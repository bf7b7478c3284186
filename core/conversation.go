package core

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clwillingham/legion/logging"
)

// KeySeparator joins initiator id, target id and optional name into a
// conversation key. Participant ids and conversation names must not contain
// it; NewConversation and ConversationKey reject offenders at creation time.
const KeySeparator = "__"

// CheckPathComponent rejects values that cannot serve as one element of a
// storage path: empty, containing a path separator, or a dot element.
// Conversation keys and participant ids are joined into file paths, so an id
// like "../evil" would otherwise escape the storage root.
func CheckPathComponent(label, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must not be empty", label)
	}
	if strings.ContainsAny(value, `/\`) {
		return fmt.Errorf("%s %q must not contain path separators", label, value)
	}
	if value == "." || value == ".." {
		return fmt.Errorf("%s %q must not be a dot element", label, value)
	}
	return nil
}

// ConversationKey builds the storage/cache key for a conversation. It
// validates that no component contains the separator (preventing two distinct
// (initiator, target, name) triples from colliding on one key) and that every
// component is a safe path element.
func ConversationKey(initiatorID, targetID, name string) (string, error) {
	for _, part := range []struct{ label, value string }{
		{"initiator id", initiatorID},
		{"target id", targetID},
	} {
		if err := CheckPathComponent(part.label, part.value); err != nil {
			return "", err
		}
		if strings.Contains(part.value, KeySeparator) {
			return "", fmt.Errorf("%s %q must not contain %q", part.label, part.value, KeySeparator)
		}
	}
	if strings.Contains(name, KeySeparator) {
		return "", fmt.Errorf("conversation name %q must not contain %q", name, KeySeparator)
	}
	if name != "" {
		if err := CheckPathComponent("conversation name", name); err != nil {
			return "", err
		}
	}

	key := initiatorID + KeySeparator + targetID
	if name != "" {
		key += KeySeparator + name
	}
	return key, nil
}

// ConversationSnapshot is the persisted form of a conversation. It is the
// authoritative state after each completed turn.
type ConversationSnapshot struct {
	SessionID   string    `json:"sessionId"`
	InitiatorID string    `json:"initiatorId"`
	TargetID    string    `json:"targetId"`
	Name        string    `json:"name,omitempty"`
	Messages    []Message `json:"messages"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Key returns the snapshot's conversation key. The components were validated
// when the conversation was created, so reconstruction cannot fail.
func (s ConversationSnapshot) Key() string {
	key := s.InitiatorID + KeySeparator + s.TargetID
	if s.Name != "" {
		key += KeySeparator + s.Name
	}
	return key
}

// ConversationStore persists conversation snapshots. Implementations are
// keyed by (sessionID, conversation key).
type ConversationStore interface {
	SaveConversation(snap ConversationSnapshot) error
	// LoadConversation returns the snapshot and true when one exists; a
	// missing snapshot is (zero, false, nil). Corrupt snapshots surface as
	// errors so callers can decide whether to skip them.
	LoadConversation(sessionID, key string) (ConversationSnapshot, bool, error)
	ListConversationKeys(sessionID string) ([]string, error)
}

// Conversation is a directional, append-only message log between exactly one
// initiator and one target. At most one Send is in flight per instance; a
// second concurrent Send fails fast with ErrConversationBusy instead of
// queueing, so nested recursive calls that collide on the same conversation
// cannot deadlock.
type Conversation struct {
	sessionID   string
	initiatorID string
	targetID    string
	name        string
	createdAt   time.Time

	busy atomic.Bool // non-blocking send lock

	mu       sync.RWMutex // guards messages
	messages []Message

	store  ConversationStore
	bus    *EventBus
	logger logging.Logger
}

// NewConversation constructs an empty conversation after validating the key
// components. store and bus may be nil (no persistence / no events).
func NewConversation(sessionID, initiatorID, targetID, name string, store ConversationStore, bus *EventBus, logger logging.Logger) (*Conversation, error) {
	if _, err := ConversationKey(initiatorID, targetID, name); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Conversation{
		sessionID:   sessionID,
		initiatorID: initiatorID,
		targetID:    targetID,
		name:        name,
		createdAt:   time.Now().UTC(),
		store:       store,
		bus:         bus,
		logger:      logger,
	}, nil
}

// HydrateConversation rebuilds a conversation from a persisted snapshot.
func HydrateConversation(snap ConversationSnapshot, store ConversationStore, bus *EventBus, logger logging.Logger) *Conversation {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	messages := make([]Message, len(snap.Messages))
	copy(messages, snap.Messages)
	return &Conversation{
		sessionID:   snap.SessionID,
		initiatorID: snap.InitiatorID,
		targetID:    snap.TargetID,
		name:        snap.Name,
		createdAt:   snap.CreatedAt,
		messages:    messages,
		store:       store,
		bus:         bus,
		logger:      logger,
	}
}

// SessionID returns the owning session's id.
func (c *Conversation) SessionID() string { return c.sessionID }

// InitiatorID returns the id of the participant that opens turns.
func (c *Conversation) InitiatorID() string { return c.initiatorID }

// TargetID returns the id of the participant that answers turns.
func (c *Conversation) TargetID() string { return c.targetID }

// Name returns the optional disambiguating name, empty for the default
// conversation between a pair.
func (c *Conversation) Name() string { return c.name }

// CreatedAt returns the creation timestamp.
func (c *Conversation) CreatedAt() time.Time { return c.createdAt }

// Key returns the conversation's key within its session.
func (c *Conversation) Key() string {
	key := c.initiatorID + KeySeparator + c.targetID
	if c.name != "" {
		key += KeySeparator + c.name
	}
	return key
}

// Messages returns a defensive copy of the ordered message log.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	messages := make([]Message, len(c.messages))
	copy(messages, c.messages)
	return messages
}

// Len returns the number of messages in the log.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Snapshot captures the current state for persistence.
func (c *Conversation) Snapshot() ConversationSnapshot {
	return ConversationSnapshot{
		SessionID:   c.sessionID,
		InitiatorID: c.initiatorID,
		TargetID:    c.targetID,
		Name:        c.name,
		Messages:    c.Messages(),
		CreatedAt:   c.createdAt,
	}
}

// Send runs one turn: it acquires the conversation lock non-blockingly,
// appends the inbound message with the initiator role, invokes the target
// behavior, appends its textual result (if any) with the target role,
// persists the snapshot and releases the lock on every exit path.
//
// If the lock is already held the call returns a busy error immediately; it
// is never queued. Errors and panics inside the behavior are downgraded to a
// typed error Result so the lock release and snapshot persist still run. The
// pre-failure inbound message stays in the log; the snapshot is written only
// after the turn completes (success or handled failure), never mid-turn.
func (c *Conversation) Send(content string, behavior Behavior, rc *RunContext) Result {
	if strings.TrimSpace(content) == "" {
		return Failure(errors.New("message content must not be empty"))
	}
	if behavior == nil {
		return Failure(fmt.Errorf("%w: no behavior for participant %s", ErrRuntimeNotFound, c.targetID))
	}
	if rc == nil {
		return Failure(errors.New("run context must not be nil"))
	}

	if !c.busy.CompareAndSwap(false, true) {
		err := fmt.Errorf("%w: conversation %s already has a send in flight; use a different conversation name or retry", ErrConversationBusy, c.Key())
		c.emit(EventConversationBusy, c.initiatorID, nil)
		c.logger.Warn("conversation.send.busy", "session_id", c.sessionID, "conversation", c.Key())
		return Failure(err)
	}
	defer c.busy.Store(false)

	rc = rc.WithConversation(c)

	c.logger.Debug("conversation.send.start",
		"session_id", c.sessionID,
		"conversation", c.Key(),
		"depth", rc.Depth,
	)

	c.append(NewMessage(RoleInitiator, c.initiatorID, content))

	response, err := c.invoke(behavior, rc, content)
	if err == nil && response != "" {
		c.append(NewMessage(RoleTarget, c.targetID, response))
	}

	if perr := c.persist(); perr != nil {
		c.logger.Error("conversation.persist.failed",
			"session_id", c.sessionID,
			"conversation", c.Key(),
			"error", perr.Error(),
		)
		if err == nil {
			err = fmt.Errorf("persist conversation %s: %w", c.Key(), perr)
		}
	}

	if err != nil {
		c.logger.Warn("conversation.send.error",
			"session_id", c.sessionID,
			"conversation", c.Key(),
			"error", err.Error(),
		)
		return Failure(err)
	}

	return Success(response)
}

// invoke runs the behavior, converting panics into errors so the caller's
// cleanup path always runs.
func (c *Conversation) invoke(behavior Behavior, rc *RunContext, content string) (response string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("behavior for %s panicked: %v", c.targetID, r)
		}
	}()
	return behavior.HandleMessage(rc, content)
}

func (c *Conversation) append(msg Message) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	ev := NewEvent(EventMessageAppended)
	ev.SessionID = c.sessionID
	ev.ConversationKey = c.Key()
	ev.ParticipantID = msg.ParticipantID
	ev.Payload = map[string]any{"messageId": msg.ID, "role": string(msg.Role)}
	c.bus.Emit(ev)
}

func (c *Conversation) persist() error {
	if c.store == nil {
		return nil
	}
	return c.store.SaveConversation(c.Snapshot())
}

func (c *Conversation) emit(t EventType, participantID string, payload map[string]any) {
	ev := NewEvent(t)
	ev.SessionID = c.sessionID
	ev.ConversationKey = c.Key()
	ev.ParticipantID = participantID
	ev.Payload = payload
	c.bus.Emit(ev)
}
