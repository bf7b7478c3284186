package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory ConversationStore for tests.
type memStore struct {
	mu    sync.Mutex
	snaps map[string]map[string]ConversationSnapshot // sessionID -> key -> snap
	fail  bool
}

func newMemStore() *memStore {
	return &memStore{snaps: map[string]map[string]ConversationSnapshot{}}
}

func (m *memStore) SaveConversation(snap ConversationSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("store unavailable")
	}
	if m.snaps[snap.SessionID] == nil {
		m.snaps[snap.SessionID] = map[string]ConversationSnapshot{}
	}
	m.snaps[snap.SessionID][snap.Key()] = snap
	return nil
}

func (m *memStore) LoadConversation(sessionID, key string) (ConversationSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[sessionID][key]
	return snap, ok, nil
}

func (m *memStore) ListConversationKeys(sessionID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.snaps[sessionID] {
		keys = append(keys, key)
	}
	return keys, nil
}

func testRunContext() *RunContext {
	return NewRunContext(context.Background(), nil, nil, nil, 2, 10, nil)
}

func TestConversationKeyValidation(t *testing.T) {
	key, err := ConversationKey("alice", "bob", "")
	require.NoError(t, err)
	assert.Equal(t, "alice__bob", key)

	key, err = ConversationKey("alice", "bob", "planning")
	require.NoError(t, err)
	assert.Equal(t, "alice__bob__planning", key)

	_, err = ConversationKey("ali__ce", "bob", "")
	assert.Error(t, err)

	_, err = ConversationKey("alice", "bob", "pla__nning")
	assert.Error(t, err)

	_, err = ConversationKey("", "bob", "")
	assert.Error(t, err)
}

func TestConversationKeyRejectsPathElements(t *testing.T) {
	// Keys become file names, so traversal fragments must never survive.
	for _, bad := range []string{"../evil", "a/b", `a\b`, "..", "."} {
		_, err := ConversationKey(bad, "bob", "")
		assert.Error(t, err, bad)
		_, err = ConversationKey("alice", bad, "")
		assert.Error(t, err, bad)
		_, err = ConversationKey("alice", "bob", bad)
		assert.Error(t, err, bad)
	}
}

func TestParticipantValidateRejectsPathElements(t *testing.T) {
	for _, bad := range []string{"../evil", "a/b", `a\b`, "..", "."} {
		p := Participant{ID: bad, Kind: KindMock}
		assert.Error(t, p.Validate(), bad)
	}
	good := Participant{ID: "a..b", Kind: KindMock}
	assert.NoError(t, good.Validate())
}

func TestConversationIsDirectional(t *testing.T) {
	ab, err := ConversationKey("alice", "bob", "")
	require.NoError(t, err)
	ba, err := ConversationKey("bob", "alice", "")
	require.NoError(t, err)
	assert.NotEqual(t, ab, ba)
}

func TestSendAppendsBothSides(t *testing.T) {
	store := newMemStore()
	conv, err := NewConversation("s1", "alice", "bob", "", store, nil, nil)
	require.NoError(t, err)

	behavior := BehaviorFunc(func(rc *RunContext, message string) (string, error) {
		assert.Equal(t, "hello", message)
		return "hi", nil
	})

	result := conv.Send("hello", behavior, testRunContext())
	require.True(t, result.OK())
	assert.Equal(t, "hi", result.Response)

	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleInitiator, msgs[0].Role)
	assert.Equal(t, "alice", msgs[0].ParticipantID)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, RoleTarget, msgs[1].Role)
	assert.Equal(t, "bob", msgs[1].ParticipantID)
	assert.Equal(t, "hi", msgs[1].Text)

	snap, found, err := store.LoadConversation("s1", "alice__bob")
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, snap.Messages, 2)
}

func TestSendBehaviorSeesHistoryIncludingInbound(t *testing.T) {
	conv, err := NewConversation("s1", "alice", "bob", "", nil, nil, nil)
	require.NoError(t, err)

	var seen int
	behavior := BehaviorFunc(func(rc *RunContext, message string) (string, error) {
		seen = rc.Conversation.Len()
		return "ok", nil
	})

	conv.Send("first", behavior, testRunContext())
	assert.Equal(t, 1, seen)

	conv.Send("second", behavior, testRunContext())
	assert.Equal(t, 3, seen)
}

func TestSendRejectsConcurrentTurn(t *testing.T) {
	conv, err := NewConversation("s1", "alice", "bob", "", nil, nil, nil)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := BehaviorFunc(func(rc *RunContext, message string) (string, error) {
		close(entered)
		<-release
		return "done", nil
	})

	var first Result
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		first = conv.Send("go", blocking, testRunContext())
	}()

	<-entered
	second := conv.Send("bounce", blocking, testRunContext())
	assert.False(t, second.OK())
	assert.ErrorIs(t, second.Err(), ErrConversationBusy)
	assert.Contains(t, second.Error, "busy")

	close(release)
	wg.Wait()
	require.True(t, first.OK())

	// The rejected send left no trace in the log.
	msgs := conv.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "go", msgs[0].Text)
}

func TestSendReleasesLockAfterFailure(t *testing.T) {
	conv, err := NewConversation("s1", "alice", "bob", "", nil, nil, nil)
	require.NoError(t, err)

	failing := BehaviorFunc(func(rc *RunContext, message string) (string, error) {
		return "", errors.New("boom")
	})
	result := conv.Send("hello", failing, testRunContext())
	assert.False(t, result.OK())

	ok := BehaviorFunc(func(rc *RunContext, message string) (string, error) {
		return "recovered", nil
	})
	result = conv.Send("again", ok, testRunContext())
	assert.True(t, result.OK())
}

func TestSendDowngradesPanicToError(t *testing.T) {
	conv, err := NewConversation("s1", "alice", "bob", "", nil, nil, nil)
	require.NoError(t, err)

	panicking := BehaviorFunc(func(rc *RunContext, message string) (string, error) {
		panic("unexpected")
	})

	result := conv.Send("hello", panicking, testRunContext())
	assert.False(t, result.OK())
	assert.Contains(t, result.Error, "panicked")

	// Lock released, conversation usable again.
	ok := BehaviorFunc(func(rc *RunContext, message string) (string, error) { return "fine", nil })
	assert.True(t, conv.Send("next", ok, testRunContext()).OK())
}

func TestSendKeepsInboundOnFailure(t *testing.T) {
	store := newMemStore()
	conv, err := NewConversation("s1", "alice", "bob", "", store, nil, nil)
	require.NoError(t, err)

	failing := BehaviorFunc(func(rc *RunContext, message string) (string, error) {
		return "", errors.New("mid-turn failure")
	})
	result := conv.Send("hello", failing, testRunContext())
	require.False(t, result.OK())

	msgs := conv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleInitiator, msgs[0].Role)

	// The completed (failed) turn is still persisted.
	snap, found, _ := store.LoadConversation("s1", "alice__bob")
	require.True(t, found)
	assert.Len(t, snap.Messages, 1)
}

func TestSendEmptyMessageFails(t *testing.T) {
	conv, err := NewConversation("s1", "alice", "bob", "", nil, nil, nil)
	require.NoError(t, err)

	ok := BehaviorFunc(func(rc *RunContext, message string) (string, error) { return "x", nil })
	result := conv.Send("   ", ok, testRunContext())
	assert.False(t, result.OK())
	assert.Equal(t, 0, conv.Len())
}

func TestSendEmitsMessageEvents(t *testing.T) {
	bus := NewEventBus()
	var events []Event
	bus.Subscribe(func(ev Event) { events = append(events, ev) })

	conv, err := NewConversation("s1", "alice", "bob", "", nil, bus, nil)
	require.NoError(t, err)

	ok := BehaviorFunc(func(rc *RunContext, message string) (string, error) { return "hi", nil })
	conv.Send("hello", ok, testRunContext())

	require.Len(t, events, 2)
	assert.Equal(t, EventMessageAppended, events[0].Type)
	assert.Equal(t, "alice__bob", events[0].ConversationKey)
	assert.Equal(t, "s1", events[0].SessionID)
}

func TestHydrateConversationRestoresState(t *testing.T) {
	store := newMemStore()
	conv, err := NewConversation("s1", "alice", "bob", "audit", store, nil, nil)
	require.NoError(t, err)

	ok := BehaviorFunc(func(rc *RunContext, message string) (string, error) { return "hi", nil })
	require.True(t, conv.Send("hello", ok, testRunContext()).OK())

	snap, found, err := store.LoadConversation("s1", "alice__bob__audit")
	require.NoError(t, err)
	require.True(t, found)

	restored := HydrateConversation(snap, store, nil, nil)
	assert.Equal(t, conv.Key(), restored.Key())
	assert.Equal(t, conv.Len(), restored.Len())
	assert.Equal(t, "audit", restored.Name())

	// Restored conversations accept new turns.
	assert.True(t, restored.Send("more", ok, testRunContext()).OK())
	assert.Equal(t, 4, restored.Len())
}
