package tool

import (
	"fmt"

	"github.com/hupe1980/delegatemesh/controller"
)

// DelegationTools builds the five tools exposing the delegation controller
// to a calling agent: start, observe, continue, stop and list.
func DelegationTools(ctrl *controller.Controller) []Tool {
	return []Tool{
		NewStartTool(ctrl),
		NewObserveTool(ctrl),
		NewContinueTool(ctrl),
		NewStopTool(ctrl),
		NewListTool(ctrl),
	}
}

type startArgs struct {
	AgentID   string `json:"agentId,omitempty" description:"Exact id of the delegate agent"`
	AgentName string `json:"agentName,omitempty" description:"Name of the delegate agent (case-insensitive, partial match tolerated)"`
	Task      string `json:"task" description:"Task text for the delegate"`
}

// NewStartTool constructs the delegation_start tool.
func NewStartTool(ctrl *controller.Controller) Tool {
	return NewFunctionToolFromStruct(
		"delegation_start",
		"Delegate a task to another agent in your workflow. The delegate works in its own session in the background; use delegation_observe to check on it. Select the delegate by agentId or agentName.",
		startArgs{},
		func(tc *Context, args map[string]any) (any, error) {
			task, _ := args["task"].(string)
			agentID, _ := args["agentId"].(string)
			agentName, _ := args["agentName"].(string)

			return ctrl.Start(tc.Context(), controller.StartInput{
				DelegatorID: tc.DelegatorID(),
				AgentID:     agentID,
				AgentName:   agentName,
				Task:        task,
			})
		},
	)
}

type observeArgs struct {
	DelegationID string `json:"delegationId" description:"Id returned by delegation_start"`
	WaitSeconds  int    `json:"waitSeconds,omitempty" description:"Seconds to wait for completion before returning"`
}

// NewObserveTool constructs the delegation_observe tool.
func NewObserveTool(ctrl *controller.Controller) Tool {
	return NewFunctionToolFromStruct(
		"delegation_observe",
		"Check on a delegation. Optionally wait up to waitSeconds for it to finish. Returns whether it is still running, any error, and a preview of the delegate's latest response.",
		observeArgs{},
		func(tc *Context, args map[string]any) (any, error) {
			id, _ := args["delegationId"].(string)
			wait, err := intArg(args, "waitSeconds")
			if err != nil {
				return nil, err
			}
			return ctrl.Observe(tc.Context(), id, wait)
		},
	)
}

type continueArgs struct {
	DelegationID string `json:"delegationId" description:"Id returned by delegation_start"`
	Message      string `json:"message" description:"Follow-up message for the delegate"`
}

// NewContinueTool constructs the delegation_continue tool.
func NewContinueTool(ctrl *controller.Controller) Tool {
	return NewFunctionToolFromStruct(
		"delegation_continue",
		"Send a follow-up message to a delegate, steering or extending its work in the same session. Supersedes any still-running execution of that delegation.",
		continueArgs{},
		func(tc *Context, args map[string]any) (any, error) {
			id, _ := args["delegationId"].(string)
			message, _ := args["message"].(string)
			return ctrl.Continue(tc.Context(), id, message)
		},
	)
}

type stopArgs struct {
	DelegationID string `json:"delegationId" description:"Id returned by delegation_start"`
}

// NewStopTool constructs the delegation_stop tool.
func NewStopTool(ctrl *controller.Controller) Tool {
	return NewFunctionToolFromStruct(
		"delegation_stop",
		"Cancel a running delegation. Stopping is not an error; the delegation settles without a fault.",
		stopArgs{},
		func(tc *Context, args map[string]any) (any, error) {
			id, _ := args["delegationId"].(string)
			return ctrl.Stop(tc.Context(), id)
		},
	)
}

type listArgs struct{}

// NewListTool constructs the delegation_list tool.
func NewListTool(ctrl *controller.Controller) Tool {
	return NewFunctionToolFromStruct(
		"delegation_list",
		"List your delegations with their state and elapsed time. Settled delegations past the retention window are pruned.",
		listArgs{},
		func(tc *Context, args map[string]any) (any, error) {
			return ctrl.List(tc.Context(), tc.DelegatorID())
		},
	)
}

// intArg reads an optional integer argument that may arrive as a float64
// from JSON decoding.
func intArg(args map[string]any, key string) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("field %q must be an integer", key)
	}
}
