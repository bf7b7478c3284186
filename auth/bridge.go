package auth

import (
	"context"
	"fmt"
	"sync"
)

// Suspension is one suspended approval round: a pending request plus a
// one-shot resolver. The suspended turn blocks in Await until some other
// goroutine calls Resolve (or the context ends, which counts as rejection).
type Suspension struct {
	Request *ApprovalRequest

	once     sync.Once
	decision chan ApprovalDecision
}

func newSuspension(req *ApprovalRequest) *Suspension {
	return &Suspension{
		Request:  req,
		decision: make(chan ApprovalDecision, 1),
	}
}

// Resolve delivers the decision. Only the first call has any effect;
// duplicates are dropped rather than corrupting the handshake.
func (s *Suspension) Resolve(approved bool, reason string) {
	s.once.Do(func() {
		s.decision <- ApprovalDecision{Approved: approved, Reason: reason}
	})
}

// Await blocks until the suspension is resolved or ctx is done. Context
// expiry resolves the round as rejected so a second late Resolve is a no-op.
func (s *Suspension) Await(ctx context.Context) (ApprovalDecision, error) {
	select {
	case d := <-s.decision:
		return d, nil
	case <-ctx.Done():
		s.Resolve(false, "context cancelled while awaiting approval")
		return ApprovalDecision{}, fmt.Errorf("awaiting approval for %s: %w", s.Request.ToolName, ctx.Err())
	}
}

// Bridge connects the Engine's handler shape to an out-of-band decision
// maker. The engine posts suspensions through Handler; the decision maker
// pulls them with Next and answers via Suspension.Resolve. Each pending
// round is an independent Suspension, so sequential approvals in one turn
// never reuse a resolver.
type Bridge struct {
	pending chan *Suspension
}

// NewBridge creates a bridge. buffer bounds how many unclaimed suspensions
// may queue before Handler blocks posting the next one.
func NewBridge(buffer int) *Bridge {
	if buffer < 1 {
		buffer = 1
	}
	return &Bridge{pending: make(chan *Suspension, buffer)}
}

// Next blocks until a suspension is pending or ctx is done.
func (b *Bridge) Next(ctx context.Context) (*Suspension, error) {
	select {
	case s := <-b.pending:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryNext returns the oldest pending suspension without blocking.
func (b *Bridge) TryNext() (*Suspension, bool) {
	select {
	case s := <-b.pending:
		return s, true
	default:
		return nil, false
	}
}

// Handler returns an ApprovalHandler that posts each request as a suspension
// and blocks the calling turn until it is resolved.
func (b *Bridge) Handler() ApprovalHandler {
	return func(ctx context.Context, req *ApprovalRequest) (ApprovalDecision, error) {
		s := newSuspension(req)
		select {
		case b.pending <- s:
		case <-ctx.Done():
			return ApprovalDecision{}, fmt.Errorf("posting approval for %s: %w", req.ToolName, ctx.Err())
		}
		return s.Await(ctx)
	}
}
