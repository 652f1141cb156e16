package core

import "context"

// RoleSubagent marks a workflow member as an eligible delegate.
const RoleSubagent = "subagent"

// Workflow is the membership container a delegator belongs to. Only the
// identity is needed here; richer workflow semantics live upstream.
type Workflow struct {
	ID   string
	Name string
}

// WorkflowMember is one raw membership entry. Purpose carries the member's
// seeded purpose text, which takes precedence over the delegate's own profile
// in the candidate fallback chain.
type WorkflowMember struct {
	AgentID string
	Role    string
	Purpose string
}

// WorkflowDirectory lists workflows and their members. Absent workflows are
// reported as (nil, nil) so callers can distinguish "no workflow" from
// lookup failures.
type WorkflowDirectory interface {
	WorkflowByAgentID(ctx context.Context, agentID string) (*Workflow, error)
	Members(ctx context.Context, workflowID string) ([]WorkflowMember, error)
}

// AgentProfile is the delegate-facing identity used to enrich candidates.
// Display name wins over name; tagline over description for the purpose.
type AgentProfile struct {
	DisplayName string
	Name        string
	Tagline     string
	Description string
}

// AgentProfileStore resolves agent profiles. An unknown agent is reported as
// (nil, nil); candidates then fall back to the raw agent id.
type AgentProfileStore interface {
	Profile(ctx context.Context, agentID string) (*AgentProfile, error)
}
