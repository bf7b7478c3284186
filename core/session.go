package core

import (
	"fmt"
	"sync"

	"github.com/clwillingham/legion/logging"
)

// Session owns a namespace of conversations. Conversations are cached by key
// so that concurrent resolutions of the same (initiator, target, name) triple
// share one instance, which is what makes the per-conversation busy lock
// meaningful.
type Session struct {
	id string

	mu            sync.Mutex // guards conversations
	conversations map[string]*Conversation

	store    ConversationStore
	resolver BehaviorResolver
	bus      *EventBus
	logger   logging.Logger
}

// NewSession constructs an empty session. store and bus may be nil.
func NewSession(id string, store ConversationStore, resolver BehaviorResolver, bus *EventBus, logger logging.Logger) *Session {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Session{
		id:            id,
		conversations: make(map[string]*Conversation),
		store:         store,
		resolver:      resolver,
		bus:           bus,
		logger:        logger,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Send resolves the target's behavior and the conversation for the triple,
// then runs one turn through it. The behavior is resolved before the
// conversation is touched, so an unknown target never creates state.
func (s *Session) Send(rc *RunContext, initiatorID, targetID, message, name string) Result {
	if s.resolver == nil {
		return Failure(fmt.Errorf("%w: session %s has no behavior resolver", ErrRuntimeNotFound, s.id))
	}

	behavior, err := s.resolver.Resolve(targetID)
	if err != nil {
		return Failure(fmt.Errorf("resolve target %s: %w", targetID, err))
	}

	conv, err := s.ResolveConversation(initiatorID, targetID, name)
	if err != nil {
		return Failure(err)
	}

	return conv.Send(message, behavior, rc)
}

// ResolveConversation returns the cached conversation for the triple, loading
// a persisted snapshot or creating a fresh conversation when none is cached.
// Concurrent calls for the same triple return the same instance.
func (s *Session) ResolveConversation(initiatorID, targetID, name string) (*Conversation, error) {
	key, err := ConversationKey(initiatorID, targetID, name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[key]; ok {
		return conv, nil
	}

	if s.store != nil {
		snap, found, err := s.store.LoadConversation(s.id, key)
		if err != nil {
			return nil, fmt.Errorf("load conversation %s: %w", key, err)
		}
		if found {
			conv := HydrateConversation(snap, s.store, s.bus, s.logger)
			s.conversations[key] = conv
			return conv, nil
		}
	}

	conv, err := NewConversation(s.id, initiatorID, targetID, name, s.store, s.bus, s.logger)
	if err != nil {
		return nil, err
	}
	s.conversations[key] = conv
	s.logger.Debug("session.conversation.created", "session_id", s.id, "conversation", key)
	return conv, nil
}

// Conversation returns the cached conversation for the key, if any. It does
// not consult the store.
func (s *Session) Conversation(key string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[key]
	return conv, ok
}

// ListConversations returns all cached conversations in no particular order.
func (s *Session) ListConversations() []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, conv)
	}
	return out
}

// ListConversationsFor returns the cached conversations in which the
// participant appears as initiator or target.
func (s *Session) ListConversationsFor(participantID string) []*Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Conversation
	for _, conv := range s.conversations {
		if conv.InitiatorID() == participantID || conv.TargetID() == participantID {
			out = append(out, conv)
		}
	}
	return out
}

// Hydrate loads every persisted conversation of the session into the cache.
// Snapshots that fail to load are skipped and reported by key; one corrupt
// file does not poison the rest of the session.
func (s *Session) Hydrate() (skipped []string, err error) {
	if s.store == nil {
		return nil, nil
	}

	keys, err := s.store.ListConversationKeys(s.id)
	if err != nil {
		return nil, fmt.Errorf("list conversations for session %s: %w", s.id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if _, ok := s.conversations[key]; ok {
			continue
		}
		snap, found, lerr := s.store.LoadConversation(s.id, key)
		if lerr != nil || !found {
			skipped = append(skipped, key)
			if lerr != nil {
				s.logger.Warn("session.hydrate.skip", "session_id", s.id, "conversation", key, "error", lerr.Error())
			}
			continue
		}
		s.conversations[key] = HydrateConversation(snap, s.store, s.bus, s.logger)
	}

	s.logger.Info("session.hydrated", "session_id", s.id, "conversations", len(s.conversations), "skipped", len(skipped))
	return skipped, nil
}
