package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeRoundTrip(t *testing.T) {
	bridge := NewBridge(4)
	handler := bridge.Handler()

	done := make(chan ApprovalDecision, 1)
	go func() {
		decision, err := handler(context.Background(), NewApprovalRequest("s1", "alice", "write_file", nil))
		require.NoError(t, err)
		done <- decision
	}()

	s, err := bridge.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "write_file", s.Request.ToolName)

	s.Resolve(true, "go ahead")

	decision := <-done
	assert.True(t, decision.Approved)
	assert.Equal(t, "go ahead", decision.Reason)
}

func TestSuspensionResolvesOnce(t *testing.T) {
	s := newSuspension(NewApprovalRequest("s1", "alice", "write_file", nil))
	s.Resolve(true, "yes")
	s.Resolve(false, "no") // dropped

	decision, err := s.Await(context.Background())
	require.NoError(t, err)
	assert.True(t, decision.Approved)
	assert.Equal(t, "yes", decision.Reason)
}

func TestAwaitHonorsContext(t *testing.T) {
	s := newSuspension(NewApprovalRequest("s1", "alice", "write_file", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Late resolution after expiry is a no-op.
	assert.NotPanics(t, func() { s.Resolve(true, "too late") })
}

func TestBridgeSequentialRounds(t *testing.T) {
	bridge := NewBridge(4)
	handler := bridge.Handler()

	// Resolver goroutine approves the first round, rejects the second.
	go func() {
		first, err := bridge.Next(context.Background())
		require.NoError(t, err)
		first.Resolve(true, "")

		second, err := bridge.Next(context.Background())
		require.NoError(t, err)
		second.Resolve(false, "not this one")
	}()

	d1, err := handler(context.Background(), NewApprovalRequest("s1", "alice", "write_file", nil))
	require.NoError(t, err)
	assert.True(t, d1.Approved)

	d2, err := handler(context.Background(), NewApprovalRequest("s1", "alice", "communicate", nil))
	require.NoError(t, err)
	assert.False(t, d2.Approved)
	assert.Equal(t, "not this one", d2.Reason)
}

func TestTryNext(t *testing.T) {
	bridge := NewBridge(1)

	_, ok := bridge.TryNext()
	assert.False(t, ok)

	go bridge.Handler()(context.Background(), NewApprovalRequest("s1", "alice", "write_file", nil)) //nolint:errcheck

	deadline := time.After(time.Second)
	for {
		if s, ok := bridge.TryNext(); ok {
			s.Resolve(false, "")
			return
		}
		select {
		case <-deadline:
			t.Fatal("no suspension arrived")
		case <-time.After(time.Millisecond):
		}
	}
}
