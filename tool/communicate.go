package tool

import (
	"errors"
	"fmt"
)

// CommunicateName is the registered name of the nested messaging tool.
const CommunicateName = "communicate"

// NewCommunicateTool builds the tool that lets a participant message another
// participant from inside its own turn. The nested send runs one level deeper
// than the caller's turn and shares its session, so depth limits and the
// per-conversation busy lock apply across the whole recursive chain.
func NewCommunicateTool() *FunctionTool {
	parameters := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"target": map[string]any{
				"type":        "string",
				"description": "Id of the participant to message",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "The message to deliver",
			},
			"conversation": map[string]any{
				"type":        "string",
				"description": "Optional conversation name to keep this exchange separate from the default one",
			},
		},
		"required": []string{"target", "message"},
	}

	return NewFunctionTool(
		CommunicateName,
		"Send a message to another participant and wait for their response",
		parameters,
		communicate,
	)
}

func communicate(tc *Context, args map[string]any) (any, error) {
	rc := tc.Run()
	if rc == nil || rc.Session == nil {
		return nil, errors.New("communicate requires an active session")
	}

	target, _ := args["target"].(string)
	message, _ := args["message"].(string)
	name, _ := args["conversation"].(string)

	child, err := rc.Child(tc.CallerID())
	if err != nil {
		return nil, err
	}

	child.LogDebug("communicate.nested",
		"caller_id", tc.CallerID(),
		"target_id", target,
		"depth", child.Depth,
	)

	result := rc.Session.Send(child, tc.CallerID(), target, message, name)
	if !result.OK() {
		return nil, fmt.Errorf("communicate with %s: %w", target, result.Err())
	}

	return map[string]any{
		"target":   target,
		"response": result.Response,
	}, nil
}
