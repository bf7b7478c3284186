package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapResolver resolves behaviors from a fixed map.
type mapResolver map[string]Behavior

func (r mapResolver) Resolve(participantID string) (Behavior, error) {
	b, ok := r[participantID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrParticipantNotFound, participantID)
	}
	return b, nil
}

func echoBehavior(id string) Behavior {
	return BehaviorFunc(func(rc *RunContext, message string) (string, error) {
		return id + " got " + message, nil
	})
}

func TestSessionSendUnknownTarget(t *testing.T) {
	sess := NewSession("s1", nil, mapResolver{}, nil, nil)
	rc := NewRunContext(nil, sess, nil, nil, 2, 10, nil)

	result := sess.Send(rc, "alice", "ghost", "hello", "")
	assert.False(t, result.OK())
	assert.ErrorIs(t, result.Err(), ErrParticipantNotFound)

	// Resolution failed before any conversation was created.
	assert.Empty(t, sess.ListConversations())
}

func TestSessionSendRoundTrip(t *testing.T) {
	resolver := mapResolver{"bob": echoBehavior("bob")}
	sess := NewSession("s1", nil, resolver, nil, nil)
	rc := NewRunContext(nil, sess, nil, nil, 2, 10, nil)

	result := sess.Send(rc, "alice", "bob", "hello", "")
	require.True(t, result.OK())
	assert.Equal(t, "bob got hello", result.Response)

	conv, ok := sess.Conversation("alice__bob")
	require.True(t, ok)
	assert.Equal(t, 2, conv.Len())
}

func TestResolveConversationReturnsSameInstance(t *testing.T) {
	sess := NewSession("s1", nil, mapResolver{}, nil, nil)

	const n = 16
	out := make([]*Conversation, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := sess.ResolveConversation("alice", "bob", "")
			require.NoError(t, err)
			out[i] = conv
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, out[0], out[i])
	}
}

func TestResolveConversationSeparateByName(t *testing.T) {
	sess := NewSession("s1", nil, mapResolver{}, nil, nil)

	def, err := sess.ResolveConversation("alice", "bob", "")
	require.NoError(t, err)
	named, err := sess.ResolveConversation("alice", "bob", "side")
	require.NoError(t, err)
	reverse, err := sess.ResolveConversation("bob", "alice", "")
	require.NoError(t, err)

	assert.NotSame(t, def, named)
	assert.NotSame(t, def, reverse)
	assert.Len(t, sess.ListConversations(), 3)
}

func TestResolveConversationLoadsFromStore(t *testing.T) {
	store := newMemStore()
	sess1 := NewSession("s1", store, mapResolver{"bob": echoBehavior("bob")}, nil, nil)
	rc := NewRunContext(nil, sess1, nil, nil, 2, 10, nil)
	require.True(t, sess1.Send(rc, "alice", "bob", "hello", "").OK())

	// A fresh session over the same store sees the history.
	sess2 := NewSession("s1", store, nil, nil, nil)
	conv, err := sess2.ResolveConversation("alice", "bob", "")
	require.NoError(t, err)
	assert.Equal(t, 2, conv.Len())
}

func TestListConversationsFor(t *testing.T) {
	sess := NewSession("s1", nil, mapResolver{}, nil, nil)
	_, err := sess.ResolveConversation("alice", "bob", "")
	require.NoError(t, err)
	_, err = sess.ResolveConversation("bob", "carol", "")
	require.NoError(t, err)
	_, err = sess.ResolveConversation("carol", "dave", "")
	require.NoError(t, err)

	assert.Len(t, sess.ListConversationsFor("bob"), 2)
	assert.Len(t, sess.ListConversationsFor("dave"), 1)
	assert.Empty(t, sess.ListConversationsFor("eve"))
}

func TestHydrateSkipsCorruptSnapshots(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.SaveConversation(ConversationSnapshot{
		SessionID: "s1", InitiatorID: "alice", TargetID: "bob",
		Messages: []Message{NewMessage(RoleInitiator, "alice", "hi")},
	}))

	sess := NewSession("s1", &corruptStore{memStore: store, bad: "alice__bob__broken"}, nil, nil, nil)
	skipped, err := sess.Hydrate()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice__bob__broken"}, skipped)
	assert.Len(t, sess.ListConversations(), 1)
}

// corruptStore reports one extra key whose load always fails.
type corruptStore struct {
	*memStore
	bad string
}

func (c *corruptStore) ListConversationKeys(sessionID string) ([]string, error) {
	keys, err := c.memStore.ListConversationKeys(sessionID)
	return append(keys, c.bad), err
}

func (c *corruptStore) LoadConversation(sessionID, key string) (ConversationSnapshot, bool, error) {
	if key == c.bad {
		return ConversationSnapshot{}, false, fmt.Errorf("decode %s: unexpected end of JSON input", key)
	}
	return c.memStore.LoadConversation(sessionID, key)
}
