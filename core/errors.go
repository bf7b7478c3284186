package core

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the engine's error taxonomy. Callers match with
// errors.Is after results have been unwrapped from a Result via Err.
var (
	// ErrParticipantNotFound indicates the addressed participant id is unknown.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrToolNotFound indicates a tool call named an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolDenied indicates a tool call was refused, either by a deny policy
	// or by a rejected approval.
	ErrToolDenied = errors.New("tool denied")

	// ErrMaxIterations indicates a behavior loop exhausted its iteration budget.
	ErrMaxIterations = errors.New("max iterations exceeded")

	// ErrMaxDepth indicates a nested communicate call would exceed the
	// configured recursion depth.
	ErrMaxDepth = errors.New("max communicate depth exceeded")

	// ErrProvider wraps a model provider failure.
	ErrProvider = errors.New("provider error")

	// ErrConfig indicates invalid or unloadable configuration.
	ErrConfig = errors.New("config error")

	// ErrRuntimeNotFound indicates no behavior runtime is available for a
	// participant (unknown kind, missing model factory, missing prompt func).
	ErrRuntimeNotFound = errors.New("runtime not found")

	// ErrConversationBusy indicates a send arrived while another send held the
	// conversation's lock. The call is never queued.
	ErrConversationBusy = errors.New("conversation busy")
)

// MaxDepthError builds an ErrMaxDepth naming the configured limit so the
// failure is self-describing when surfaced to a calling behavior.
func MaxDepthError(limit int) error {
	return fmt.Errorf("%w: configured limit is %d", ErrMaxDepth, limit)
}

// MaxIterationsError builds an ErrMaxIterations naming the configured limit.
func MaxIterationsError(limit int) error {
	return fmt.Errorf("%w: configured limit is %d", ErrMaxIterations, limit)
}
