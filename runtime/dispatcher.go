// Package runtime contains the behaviors that service a participant's side
// of a conversation: model-driven agents, scripted mocks and human prompts.
// The Dispatcher maps participant definitions onto those behaviors.
package runtime

import (
	"fmt"
	"sync"

	"github.com/clwillingham/legion/core"
	"github.com/clwillingham/legion/logging"
	"github.com/clwillingham/legion/model"
	"github.com/clwillingham/legion/tool"
)

// ModelFactory builds a model client for a participant's provider/model pair.
// It is consulted once per agent participant; the result is cached.
type ModelFactory func(provider, modelName string) (model.Model, error)

// PromptFunc asks the human behind a user participant for their reply to a
// message. It blocks until an answer is available.
type PromptFunc func(rc *core.RunContext, participantID, message string) (string, error)

// ParticipantSource resolves participant definitions by id. storage.Store
// implements it.
type ParticipantSource interface {
	Participant(id string) (core.Participant, bool, error)
}

// PolicyBinder applies a participant's tool policy overrides when the
// participant is first resolved. FromConfig binds this to the authorization
// engine so overrides stored on participant records take effect.
type PolicyBinder func(participantID string, policies map[string]string) error

// Dispatcher implements core.BehaviorResolver by dispatching on the
// participant's kind: agents get a model-driven loop, mocks a scripted
// responder, users a prompt callback. Behaviors are built lazily and cached
// per participant.
type Dispatcher struct {
	source   ParticipantSource
	registry *tool.Registry
	factory  ModelFactory
	prompt   PromptFunc
	policies PolicyBinder
	logger   logging.Logger

	mu        sync.Mutex
	behaviors map[string]core.Behavior
	models    map[string]model.Model
}

// Options configures a Dispatcher.
type Options struct {
	Factory  ModelFactory
	Prompt   PromptFunc
	Policies PolicyBinder
	Logger   logging.Logger
}

// NewDispatcher wires participant definitions to behaviors.
func NewDispatcher(source ParticipantSource, registry *tool.Registry, optFns ...func(*Options)) *Dispatcher {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Dispatcher{
		source:    source,
		registry:  registry,
		factory:   opts.Factory,
		prompt:    opts.Prompt,
		policies:  opts.Policies,
		logger:    opts.Logger,
		behaviors: make(map[string]core.Behavior),
		models:    make(map[string]model.Model),
	}
}

// WithModelFactory sets the factory used for agent participants.
func WithModelFactory(f ModelFactory) func(*Options) {
	return func(o *Options) { o.Factory = f }
}

// WithPrompt sets the callback used for user participants.
func WithPrompt(p PromptFunc) func(*Options) {
	return func(o *Options) { o.Prompt = p }
}

// WithPolicyBinder sets the binder applied to participant tool policy
// overrides.
func WithPolicyBinder(b PolicyBinder) func(*Options) {
	return func(o *Options) { o.Policies = b }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l logging.Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// Resolve implements core.BehaviorResolver.
func (d *Dispatcher) Resolve(participantID string) (core.Behavior, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.behaviors[participantID]; ok {
		return b, nil
	}

	p, found, err := d.source.Participant(participantID)
	if err != nil {
		return nil, fmt.Errorf("load participant %s: %w", participantID, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", core.ErrParticipantNotFound, participantID)
	}

	if len(p.ToolPolicies) > 0 && d.policies != nil {
		if err := d.policies(p.ID, p.ToolPolicies); err != nil {
			return nil, fmt.Errorf("apply tool policies for participant %s: %w", participantID, err)
		}
	}

	b, err := d.build(p)
	if err != nil {
		return nil, err
	}
	d.behaviors[participantID] = b
	return b, nil
}

func (d *Dispatcher) build(p core.Participant) (core.Behavior, error) {
	switch p.Kind {
	case core.KindAgent:
		m, err := d.modelFor(p)
		if err != nil {
			return nil, err
		}
		return NewAgentBehavior(p, m, d.registry, d.logger), nil
	case core.KindMock:
		return NewMockBehavior(p, d.registry, d.logger), nil
	case core.KindUser:
		if d.prompt == nil {
			return nil, fmt.Errorf("%w: participant %s is a user but no prompt is configured", core.ErrRuntimeNotFound, p.ID)
		}
		return NewHumanBehavior(p, d.prompt), nil
	default:
		return nil, fmt.Errorf("%w: participant %s has unknown kind %q", core.ErrRuntimeNotFound, p.ID, p.Kind)
	}
}

// modelFor caches model clients per provider/model pair so agents sharing a
// configuration share one client.
func (d *Dispatcher) modelFor(p core.Participant) (model.Model, error) {
	if d.factory == nil {
		return nil, fmt.Errorf("%w: participant %s is an agent but no model factory is configured", core.ErrRuntimeNotFound, p.ID)
	}
	key := p.Provider + "/" + p.Model
	if m, ok := d.models[key]; ok {
		return m, nil
	}
	m, err := d.factory(p.Provider, p.Model)
	if err != nil {
		return nil, fmt.Errorf("build model for participant %s: %w", p.ID, err)
	}
	d.models[key] = m
	return m, nil
}
