package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/clwillingham/legion/core"
	"github.com/clwillingham/legion/logging"
)

// Store is the file-backed record store. It implements core.ConversationStore
// and runtime.ParticipantSource. All methods are safe for concurrent use by
// virtue of the atomic write path; readers never observe partial records.
type Store struct {
	root   string
	logger logging.Logger
}

// New creates a store rooted at dir, creating it if necessary.
func New(dir string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", dir, err)
	}
	return &Store{root: dir, logger: logger}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.root }

func (s *Store) conversationPath(sessionID, key string) string {
	return filepath.Join(s.root, "sessions", sessionID, "conversations", key+".json")
}

func (s *Store) participantPath(id string) string {
	return filepath.Join(s.root, "participants", id+".json")
}

// SaveConversation implements core.ConversationStore.
func (s *Store) SaveConversation(snap core.ConversationSnapshot) error {
	if err := core.CheckPathComponent("session id", snap.SessionID); err != nil {
		return err
	}
	if _, err := core.ConversationKey(snap.InitiatorID, snap.TargetID, snap.Name); err != nil {
		return err
	}
	return writeJSON(s.conversationPath(snap.SessionID, snap.Key()), snap)
}

// LoadConversation implements core.ConversationStore.
func (s *Store) LoadConversation(sessionID, key string) (core.ConversationSnapshot, bool, error) {
	if err := core.CheckPathComponent("session id", sessionID); err != nil {
		return core.ConversationSnapshot{}, false, err
	}
	if err := core.CheckPathComponent("conversation key", key); err != nil {
		return core.ConversationSnapshot{}, false, err
	}
	return readJSON[core.ConversationSnapshot](s.conversationPath(sessionID, key))
}

// ListConversationKeys implements core.ConversationStore.
func (s *Store) ListConversationKeys(sessionID string) ([]string, error) {
	if err := core.CheckPathComponent("session id", sessionID); err != nil {
		return nil, err
	}
	return listJSONNames(filepath.Join(s.root, "sessions", sessionID, "conversations"))
}

// LoadConversations loads every snapshot of a session. Corrupt records are
// skipped and reported by key rather than failing the whole load.
func (s *Store) LoadConversations(sessionID string) (snaps []core.ConversationSnapshot, skipped []string, err error) {
	keys, err := s.ListConversationKeys(sessionID)
	if err != nil {
		return nil, nil, err
	}
	for _, key := range keys {
		snap, found, lerr := s.LoadConversation(sessionID, key)
		if lerr != nil || !found {
			skipped = append(skipped, key)
			if lerr != nil {
				s.logger.Warn("storage.conversation.skip", "session_id", sessionID, "conversation", key, "error", lerr.Error())
			}
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, skipped, nil
}

// ListSessionIDs returns the ids of sessions with persisted state.
func (s *Store) ListSessionIDs() ([]string, error) {
	return listDirNames(filepath.Join(s.root, "sessions"))
}

// SaveParticipant persists a participant definition after validating it.
func (s *Store) SaveParticipant(p core.Participant) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return writeJSON(s.participantPath(p.ID), p)
}

// Participant implements runtime.ParticipantSource. Ids arriving here may be
// model-controlled (the communicate tool's target), so unsafe path elements
// are rejected before the id touches the filesystem.
func (s *Store) Participant(id string) (core.Participant, bool, error) {
	if err := core.CheckPathComponent("participant id", id); err != nil {
		return core.Participant{}, false, err
	}
	return readJSON[core.Participant](s.participantPath(id))
}

// ListParticipantIDs returns the ids of persisted participants.
func (s *Store) ListParticipantIDs() ([]string, error) {
	return listJSONNames(filepath.Join(s.root, "participants"))
}

// DeleteParticipant removes a participant definition. The bool reports
// whether a record existed.
func (s *Store) DeleteParticipant(id string) (bool, error) {
	if err := core.CheckPathComponent("participant id", id); err != nil {
		return false, err
	}
	err := os.Remove(s.participantPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete participant %s: %w", id, err)
	}
	return true, nil
}
