// Package auth decides whether a participant may run a tool. It resolves a
// policy per (participant, tool) pair, and when the policy requires approval
// it suspends the calling turn until an external decision maker answers
// through an ApprovalHandler. The Bridge in this package connects that
// handler shape to a caller that polls for pending requests.
package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status tracks an approval request through its lifecycle.
type Status string

const (
	// StatusPending means no decision has been recorded yet.
	StatusPending Status = "pending"
	// StatusApproved means the decision maker allowed the call.
	StatusApproved Status = "approved"
	// StatusRejected means the decision maker denied the call.
	StatusRejected Status = "rejected"
)

// ApprovalRequest is one suspended tool call awaiting a decision. A request
// resolves at most once; later Resolve calls are ignored.
type ApprovalRequest struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"sessionId"`
	ParticipantID string         `json:"participantId"`
	ToolName      string         `json:"toolName"`
	Arguments     map[string]any `json:"arguments,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`

	mu         sync.Mutex
	status     Status
	reason     string
	resolvedAt time.Time
}

// NewApprovalRequest builds a pending request for one tool call.
func NewApprovalRequest(sessionID, participantID, toolName string, args map[string]any) *ApprovalRequest {
	return &ApprovalRequest{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		ParticipantID: participantID,
		ToolName:      toolName,
		Arguments:     args,
		CreatedAt:     time.Now().UTC(),
		status:        StatusPending,
	}
}

// Status returns the current lifecycle status.
func (r *ApprovalRequest) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Reason returns the decision maker's reason, empty while pending.
func (r *ApprovalRequest) Reason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// ResolvedAt returns when the decision was recorded, zero while pending.
func (r *ApprovalRequest) ResolvedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolvedAt
}

// Resolve records the decision. It returns false when the request was
// already resolved, in which case nothing changes.
func (r *ApprovalRequest) Resolve(approved bool, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPending {
		return false
	}
	if approved {
		r.status = StatusApproved
	} else {
		r.status = StatusRejected
	}
	r.reason = reason
	r.resolvedAt = time.Now().UTC()
	return true
}
