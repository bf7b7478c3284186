package runtime

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clwillingham/legion/core"
	"github.com/clwillingham/legion/model"
	"github.com/clwillingham/legion/tool"
)

// mapSource serves participant definitions from a map.
type mapSource map[string]core.Participant

func (s mapSource) Participant(id string) (core.Participant, bool, error) {
	p, ok := s[id]
	return p, ok, nil
}

func TestDispatcherUnknownParticipant(t *testing.T) {
	d := NewDispatcher(mapSource{}, tool.NewRegistry())
	_, err := d.Resolve("ghost")
	assert.ErrorIs(t, err, core.ErrParticipantNotFound)
}

func TestDispatcherMockParticipant(t *testing.T) {
	source := mapSource{
		"bot": {ID: "bot", Kind: core.KindMock, Responses: map[string]string{"ping": "pong"}},
	}
	d := NewDispatcher(source, tool.NewRegistry())

	b, err := d.Resolve("bot")
	require.NoError(t, err)

	rc := core.NewRunContext(nil, nil, nil, nil, 2, 10, nil)
	response, err := b.HandleMessage(rc, "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", response)

	// Unmatched messages get the echoing fallback.
	response, err = b.HandleMessage(rc, "something else")
	require.NoError(t, err)
	assert.Contains(t, response, "something else")
}

func TestDispatcherAgentRequiresFactory(t *testing.T) {
	source := mapSource{"helper": {ID: "helper", Kind: core.KindAgent}}
	d := NewDispatcher(source, tool.NewRegistry())
	_, err := d.Resolve("helper")
	assert.ErrorIs(t, err, core.ErrRuntimeNotFound)
}

func TestDispatcherUserRequiresPrompt(t *testing.T) {
	source := mapSource{"human": {ID: "human", Kind: core.KindUser}}
	d := NewDispatcher(source, tool.NewRegistry())
	_, err := d.Resolve("human")
	assert.ErrorIs(t, err, core.ErrRuntimeNotFound)
}

func TestDispatcherUserPrompt(t *testing.T) {
	source := mapSource{"human": {ID: "human", Kind: core.KindUser}}
	d := NewDispatcher(source, tool.NewRegistry(),
		WithPrompt(func(rc *core.RunContext, participantID, message string) (string, error) {
			assert.Equal(t, "human", participantID)
			return "typed answer", nil
		}))

	b, err := d.Resolve("human")
	require.NoError(t, err)

	response, err := b.HandleMessage(core.NewRunContext(nil, nil, nil, nil, 2, 10, nil), "question")
	require.NoError(t, err)
	assert.Equal(t, "typed answer", response)
}

func TestDispatcherBindsToolPolicies(t *testing.T) {
	source := mapSource{
		"bot": {ID: "bot", Kind: core.KindMock, ToolPolicies: map[string]string{"write_file": "auto"}},
	}
	bound := map[string]map[string]string{}
	d := NewDispatcher(source, tool.NewRegistry(),
		WithPolicyBinder(func(participantID string, policies map[string]string) error {
			bound[participantID] = policies
			return nil
		}))

	_, err := d.Resolve("bot")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"write_file": "auto"}, bound["bot"])
}

func TestDispatcherBinderErrorFailsResolve(t *testing.T) {
	source := mapSource{
		"bot": {ID: "bot", Kind: core.KindMock, ToolPolicies: map[string]string{"write_file": "sometimes"}},
	}
	d := NewDispatcher(source, tool.NewRegistry(),
		WithPolicyBinder(func(participantID string, policies map[string]string) error {
			return fmt.Errorf("unknown tool policy %q", policies["write_file"])
		}))

	_, err := d.Resolve("bot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sometimes")
}

func TestDispatcherCachesBehaviorsAndModels(t *testing.T) {
	factoryCalls := 0
	source := mapSource{
		"a1": {ID: "a1", Kind: core.KindAgent, Provider: "mock", Model: "m"},
		"a2": {ID: "a2", Kind: core.KindAgent, Provider: "mock", Model: "m"},
	}
	d := NewDispatcher(source, tool.NewRegistry(),
		WithModelFactory(func(provider, modelName string) (model.Model, error) {
			factoryCalls++
			return model.NewMockModel(modelName), nil
		}))

	b1, err := d.Resolve("a1")
	require.NoError(t, err)
	b1again, err := d.Resolve("a1")
	require.NoError(t, err)
	assert.Same(t, b1, b1again)

	_, err = d.Resolve("a2")
	require.NoError(t, err)

	// Shared provider/model pair -> one client.
	assert.Equal(t, 1, factoryCalls)
}

func TestMockBehaviorScriptedCalls(t *testing.T) {
	reg := tool.NewRegistry()
	var ran bool
	reg.Register(tool.NewFunctionTool("ping", "Ping",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *tool.Context, args map[string]any) (any, error) {
			ran = true
			return "pong", nil
		}))

	p := core.Participant{ID: "bot", Kind: core.KindMock, Responses: map[string]string{"go": "done"}}
	b := NewMockBehavior(p, reg, nil)
	b.Script("go", ScriptedCall{Tool: "ping", Args: map[string]any{}})

	rc := core.NewRunContext(nil, nil, nil, allowAll{}, 2, 10, nil)
	response, err := b.HandleMessage(rc, "go")
	require.NoError(t, err)
	assert.Equal(t, "done", response)
	assert.True(t, ran)
}
