package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clwillingham/legion/core"
)

func TestResolvePolicyOrder(t *testing.T) {
	e := New()

	// Built-in defaults.
	assert.Equal(t, PolicyAuto, e.ResolvePolicy("alice", "read_file"))
	assert.Equal(t, PolicyRequiresApproval, e.ResolvePolicy("alice", "write_file"))
	assert.Equal(t, PolicyRequiresApproval, e.ResolvePolicy("alice", "communicate"))

	// Unknown tools fall back to requires_approval.
	assert.Equal(t, PolicyRequiresApproval, e.ResolvePolicy("alice", "launch_rocket"))

	// Engine-wide override beats the default.
	e.SetOverride("write_file", PolicyDeny)
	assert.Equal(t, PolicyDeny, e.ResolvePolicy("alice", "write_file"))

	// Participant policy beats the override.
	e.SetParticipantPolicy("alice", "write_file", PolicyAuto)
	assert.Equal(t, PolicyAuto, e.ResolvePolicy("alice", "write_file"))
	assert.Equal(t, PolicyDeny, e.ResolvePolicy("bob", "write_file"))
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("auto")
	require.NoError(t, err)
	assert.Equal(t, PolicyAuto, p)

	_, err = ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestAuthorizeAutoSkipsHandler(t *testing.T) {
	called := false
	e := New(WithHandler(func(ctx context.Context, req *ApprovalRequest) (ApprovalDecision, error) {
		called = true
		return ApprovalDecision{Approved: true}, nil
	}))

	decision := e.Authorize(context.Background(), "alice", "read_file", nil)
	assert.True(t, decision.Authorized)
	assert.False(t, called)
	assert.Empty(t, e.Requests())
}

func TestAuthorizeDenyNeverCallsHandler(t *testing.T) {
	called := false
	e := New(WithHandler(func(ctx context.Context, req *ApprovalRequest) (ApprovalDecision, error) {
		called = true
		return ApprovalDecision{Approved: true}, nil
	}))
	e.SetOverride("write_file", PolicyDeny)

	decision := e.Authorize(context.Background(), "alice", "write_file", nil)
	assert.False(t, decision.Authorized)
	assert.False(t, called)
}

func TestAuthorizeWithoutHandlerDenies(t *testing.T) {
	e := New()
	decision := e.Authorize(context.Background(), "alice", "write_file", nil)
	assert.False(t, decision.Authorized)
	assert.Contains(t, decision.Reason, "no approval handler")
}

func TestAuthorizeApprovalRoundTrip(t *testing.T) {
	e := New(WithHandler(func(ctx context.Context, req *ApprovalRequest) (ApprovalDecision, error) {
		assert.Equal(t, "alice", req.ParticipantID)
		assert.Equal(t, "write_file", req.ToolName)
		assert.Equal(t, StatusPending, req.Status())
		return ApprovalDecision{Approved: true, Reason: "looks safe"}, nil
	}))

	decision := e.Authorize(context.Background(), "alice", "write_file", map[string]any{"path": "a.txt"})
	assert.True(t, decision.Authorized)
	assert.Equal(t, "looks safe", decision.Reason)

	reqs := e.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, StatusApproved, reqs[0].Status())
	assert.False(t, reqs[0].ResolvedAt().IsZero())
}

func TestAuthorizeRejection(t *testing.T) {
	e := New(WithHandler(func(ctx context.Context, req *ApprovalRequest) (ApprovalDecision, error) {
		return ApprovalDecision{Approved: false, Reason: "no"}, nil
	}))

	decision := e.Authorize(context.Background(), "alice", "communicate", nil)
	assert.False(t, decision.Authorized)
	assert.Equal(t, "no", decision.Reason)

	reqs := e.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, StatusRejected, reqs[0].Status())
	assert.Equal(t, "no", reqs[0].Reason())
}

func TestAuthorizeHandlerError(t *testing.T) {
	e := New(WithHandler(func(ctx context.Context, req *ApprovalRequest) (ApprovalDecision, error) {
		return ApprovalDecision{}, errors.New("decision maker unreachable")
	}))

	decision := e.Authorize(context.Background(), "alice", "write_file", nil)
	assert.False(t, decision.Authorized)

	reqs := e.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, StatusRejected, reqs[0].Status())
}

func TestAuthorizeTimeout(t *testing.T) {
	e := New(
		WithTimeout(20*time.Millisecond),
		WithHandler(func(ctx context.Context, req *ApprovalRequest) (ApprovalDecision, error) {
			<-ctx.Done()
			return ApprovalDecision{}, ctx.Err()
		}),
	)

	start := time.Now()
	decision := e.Authorize(context.Background(), "alice", "write_file", nil)
	assert.False(t, decision.Authorized)
	assert.Less(t, time.Since(start), time.Second)
}

func TestApprovalRequestResolvesOnce(t *testing.T) {
	req := NewApprovalRequest("s1", "alice", "write_file", nil)
	assert.True(t, req.Resolve(true, "first"))
	assert.False(t, req.Resolve(false, "second"))
	assert.Equal(t, StatusApproved, req.Status())
	assert.Equal(t, "first", req.Reason())
}

func TestAuthorizeEmitsLifecycleEvents(t *testing.T) {
	bus := core.NewEventBus()
	var types []core.EventType
	bus.Subscribe(func(ev core.Event) { types = append(types, ev.Type) })

	e := New(
		WithBus(bus),
		WithHandler(func(ctx context.Context, req *ApprovalRequest) (ApprovalDecision, error) {
			return ApprovalDecision{Approved: true}, nil
		}),
	)

	e.Authorize(context.Background(), "alice", "write_file", nil)
	assert.Equal(t, []core.EventType{core.EventApprovalPending, core.EventApprovalResolved}, types)
}
