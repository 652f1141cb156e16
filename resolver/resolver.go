// Package resolver builds the set of eligible delegate candidates from a
// workflow's membership and resolves a caller's agentId/agentName selection
// to exactly one of them.
//
// Resolution order is id-first, then exact name, then partial name. The order
// is load-bearing: a caller can re-target a known delegate cheaply by name
// while typos are tolerated via partial match, without silently guessing
// between two similarly named delegates.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/delegatemesh/core"
)

// FallbackPurpose is used when neither the workflow seed nor the delegate's
// profile provides any purpose text.
const FallbackPurpose = "No purpose set"

// Candidate is an eligible delegate derived from workflow membership. It is
// computed per resolution call and never persisted.
type Candidate struct {
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	Purpose   string `json:"purpose"`
}

// Selection carries the caller's delegate choice. At least one field must be
// set; when both are set the name must match the candidate found by id.
type Selection struct {
	AgentID   string
	AgentName string
}

// ErrNoSelector is returned when neither agentId nor agentName was provided.
var ErrNoSelector = errors.New("either agentId or agentName must be provided")

// NotFoundError reports that no candidate matched the selection.
type NotFoundError struct {
	Selector string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no delegate matches %q", e.Selector)
}

// AmbiguityError reports that a name selection matched more than one
// candidate. AgentIDs lists every match so the caller can retry with an id.
type AmbiguityError struct {
	Name     string
	AgentIDs []string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("delegate name %q is ambiguous, use agentId instead (matches: %s)", e.Name, strings.Join(e.AgentIDs, ", "))
}

// BuildCandidates converts the delegator's workflow membership into sorted
// delegate candidates: members with the subagent role, excluding the
// delegator itself, enriched with a display name and a purpose using the
// fallback chain seed -> tagline -> description -> FallbackPurpose.
func BuildCandidates(
	ctx context.Context,
	directory core.WorkflowDirectory,
	profiles core.AgentProfileStore,
	delegatorID string,
) ([]Candidate, error) {
	workflow, err := directory.WorkflowByAgentID(ctx, delegatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up workflow: %w", err)
	}
	if workflow == nil {
		return nil, fmt.Errorf("agent %s is not part of any workflow", delegatorID)
	}

	members, err := directory.Members(ctx, workflow.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow members: %w", err)
	}

	candidates := make([]Candidate, 0, len(members))
	for _, m := range members {
		if m.Role != core.RoleSubagent || m.AgentID == delegatorID {
			continue
		}

		profile, err := profiles.Profile(ctx, m.AgentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile for %s: %w", m.AgentID, err)
		}
		if profile == nil {
			profile = &core.AgentProfile{}
		}

		candidates = append(candidates, Candidate{
			AgentID:   m.AgentID,
			AgentName: candidateName(m.AgentID, profile),
			Purpose:   candidatePurpose(m.Purpose, profile),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].AgentName == candidates[j].AgentName {
			return candidates[i].AgentID < candidates[j].AgentID
		}
		return candidates[i].AgentName < candidates[j].AgentName
	})

	return candidates, nil
}

func candidateName(agentID string, profile *core.AgentProfile) string {
	if profile.DisplayName != "" {
		return profile.DisplayName
	}
	if profile.Name != "" {
		return profile.Name
	}
	return agentID
}

func candidatePurpose(seed string, profile *core.AgentProfile) string {
	for _, p := range []string{seed, profile.Tagline, profile.Description} {
		if strings.TrimSpace(p) != "" {
			return strings.TrimSpace(p)
		}
	}
	return FallbackPurpose
}

// Resolve picks exactly one candidate for the selection or explains why it
// cannot: unknown id/name, ambiguous name, or missing selector.
func Resolve(candidates []Candidate, sel Selection) (Candidate, error) {
	switch {
	case sel.AgentID != "":
		return resolveByID(candidates, sel)
	case strings.TrimSpace(sel.AgentName) != "":
		return resolveByName(candidates, sel.AgentName)
	default:
		return Candidate{}, ErrNoSelector
	}
}

func resolveByID(candidates []Candidate, sel Selection) (Candidate, error) {
	for _, c := range candidates {
		if c.AgentID != sel.AgentID {
			continue
		}
		// A name given alongside the id must agree with the resolved
		// candidate; a mismatch is a hard error rather than a silent guess.
		if strings.TrimSpace(sel.AgentName) != "" && normalizeName(sel.AgentName) != normalizeName(c.AgentName) {
			return Candidate{}, fmt.Errorf("agentName %q does not match agent %s (%q)", sel.AgentName, c.AgentID, c.AgentName)
		}
		return c, nil
	}
	return Candidate{}, &NotFoundError{Selector: sel.AgentID}
}

func resolveByName(candidates []Candidate, name string) (Candidate, error) {
	query := normalizeName(name)

	var exact []Candidate
	for _, c := range candidates {
		if normalizeName(c.AgentName) == query {
			exact = append(exact, c)
		}
	}
	if len(exact) == 1 {
		return exact[0], nil
	}
	if len(exact) > 1 {
		return Candidate{}, &AmbiguityError{Name: name, AgentIDs: agentIDs(exact)}
	}

	var partial []Candidate
	for _, c := range candidates {
		if strings.Contains(normalizeName(c.AgentName), query) {
			partial = append(partial, c)
		}
	}
	switch len(partial) {
	case 1:
		return partial[0], nil
	case 0:
		return Candidate{}, &NotFoundError{Selector: name}
	default:
		return Candidate{}, &AmbiguityError{Name: name, AgentIDs: agentIDs(partial)}
	}
}

// normalizeName trims, lowercases and collapses internal whitespace so name
// comparison is case and spacing insensitive.
func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func agentIDs(candidates []Candidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.AgentID
	}
	return ids
}
