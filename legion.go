// Package legion provides a high-level façade over the conversation engine:
// sessions of directional conversations between autonomous participants, a
// tool registry with policy-gated execution, and an approval flow that can
// suspend a turn until a human decides. Most applications interact with this
// package by:
//  1. Creating an Engine via New() (optionally overriding store, resolver,
//     authorization and logging)
//  2. Registering participants and tools
//  3. Sending messages with Send, which runs one full turn and returns the
//     target's response
//
// All defaults are safe for local development and testing; production
// deployments typically supply a durable store, real model providers and a
// structured logger.
package legion

import (
	"context"
	"sync"

	"github.com/clwillingham/legion/core"
	"github.com/clwillingham/legion/logging"
)

// Options configures the Engine instance.
type Options struct {
	// Store persists conversation snapshots. Nil disables persistence.
	Store core.ConversationStore

	// Resolver maps participant ids to behaviors. Required for Send to do
	// anything useful; runtime.NewDispatcher is the standard choice.
	Resolver core.BehaviorResolver

	// Auth gates tool execution. Nil denies every gated tool (fail closed).
	Auth core.Authorizer

	// Bus receives engine events. Nil disables eventing.
	Bus *core.EventBus

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// MaxDepth caps nested communicate calls per top-level send. Values at
	// or below 1 disable nesting.
	MaxDepth int

	// MaxIterations caps generate/execute rounds within one agent turn.
	// Zero means unbounded.
	MaxIterations int
}

// Engine is the high-level façade aggregating sessions and shared services.
type Engine struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*core.Session
}

// New creates a new Engine with optional overrides.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger:        logging.NoOpLogger{},
		MaxDepth:      2,
		MaxIterations: 10,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Engine{
		opts:     opts,
		sessions: make(map[string]*core.Session),
	}
}

// WithStore sets the conversation store.
func WithStore(s core.ConversationStore) func(*Options) {
	return func(o *Options) { o.Store = s }
}

// WithResolver sets the behavior resolver.
func WithResolver(r core.BehaviorResolver) func(*Options) {
	return func(o *Options) { o.Resolver = r }
}

// WithAuthorizer sets the tool authorizer.
func WithAuthorizer(a core.Authorizer) func(*Options) {
	return func(o *Options) { o.Auth = a }
}

// WithBus sets the event bus.
func WithBus(b *core.EventBus) func(*Options) {
	return func(o *Options) { o.Bus = b }
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// WithMaxDepth caps nested communicate calls.
func WithMaxDepth(d int) func(*Options) {
	return func(o *Options) { o.MaxDepth = d }
}

// WithMaxIterations caps model loop rounds per turn.
func WithMaxIterations(n int) func(*Options) {
	return func(o *Options) { o.MaxIterations = n }
}

// Bus returns the engine's event bus, nil when none is configured.
func (e *Engine) Bus() *core.EventBus { return e.opts.Bus }

// Session returns the session with the given id, creating it on first use.
func (e *Engine) Session(id string) *core.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if sess, ok := e.sessions[id]; ok {
		return sess
	}
	sess := core.NewSession(id, e.opts.Store, e.opts.Resolver, e.opts.Bus, e.opts.Logger)
	e.sessions[id] = sess
	return sess
}

// Send runs one top-level turn: initiator sends message to target within the
// session's conversation for the pair (name selects a parallel conversation,
// empty for the default one). It blocks until the target's behavior finishes,
// including any nested communicate calls and approval rounds it performs, and
// returns the outcome.
func (e *Engine) Send(ctx context.Context, sessionID, initiatorID, targetID, message, name string) core.Result {
	sess := e.Session(sessionID)
	rc := core.NewRunContext(ctx, sess, e.opts.Bus, e.opts.Auth, e.opts.MaxDepth, e.opts.MaxIterations, e.opts.Logger)
	return sess.Send(rc, initiatorID, targetID, message, name)
}
