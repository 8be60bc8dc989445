// Package roles provides the fixed conversation role table and the Agent -
// a single role-driven participant class.
//
// The table is closed: four agent roles in a fixed cyclic speaking order,
// plus a user pseudo-role for transcript attribution. There is no
// registration API and no per-role subtype; behavior differences live in
// the Role data (directive text, tool access).
package roles

import (
	"fmt"
	"strings"
)

// =============================================================================
// ROLE NAMES
// =============================================================================

// RoleName identifies a conversation participant.
type RoleName string

const (
	// RoleUser attributes the seeding query in transcripts. It never takes turns.
	RoleUser RoleName = "user"

	// RolePlanner breaks the query into search topics.
	RolePlanner RoleName = "planner"

	// RoleResearcher gathers evidence with the search tools.
	RoleResearcher RoleName = "researcher"

	// RoleWriter synthesizes findings into the candidate response.
	RoleWriter RoleName = "writer"

	// RoleCritic reviews the draft and signals termination when acceptable.
	RoleCritic RoleName = "critic"
)

// RoleNameFromString parses a role name string.
func RoleNameFromString(value string) (RoleName, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "user":
		return RoleUser, nil
	case "planner":
		return RolePlanner, nil
	case "researcher":
		return RoleResearcher, nil
	case "writer":
		return RoleWriter, nil
	case "critic":
		return RoleCritic, nil
	default:
		return "", fmt.Errorf("invalid role name '%s'. Must be one of: user, planner, researcher, writer, critic", value)
	}
}

// IsAgent reports whether this role takes turns in the conversation loop.
func (n RoleName) IsAgent() bool {
	return n != RoleUser
}

// =============================================================================
// ROLE TABLE
// =============================================================================

// Role is the full definition of one conversation role.
type Role struct {
	Name        RoleName
	DisplayName string
	Description string

	// Directive is the system directive prefixed to every prompt this role
	// builds.
	Directive string

	UsesTools    bool
	AllowedTools map[string]bool
}

// CanUse reports whether this role may invoke the named tool.
func (r *Role) CanUse(toolName string) bool {
	if !r.UsesTools {
		return false
	}
	return r.AllowedTools[toolName]
}

// evidenceOrder fixes the sequence tool-using roles invoke their tools in.
// Invocations are strictly sequential; at most one call is in flight.
var evidenceOrder = []string{"web_search", "paper_search"}

func builtinRoles() map[RoleName]*Role {
	return map[RoleName]*Role{
		RolePlanner: {
			Name:        RolePlanner,
			DisplayName: "Planner",
			Description: "Breaks down research queries into actionable steps",
			Directive:   "You are a Research Planner. Break down the query into 2-3 search topics. Be brief.",
		},
		RoleResearcher: {
			Name:        RoleResearcher,
			DisplayName: "Researcher",
			Description: "Gathers evidence from web and academic sources using search tools",
			Directive:   "You are a Researcher. Make ONE web_search and ONE paper_search call. Be concise.",
			UsesTools:   true,
			AllowedTools: map[string]bool{
				"web_search":   true,
				"paper_search": true,
			},
		},
		RoleWriter: {
			Name:        RoleWriter,
			DisplayName: "Writer",
			Description: "Synthesizes research findings into coherent, well-cited responses",
			Directive:   "You are a Writer. Synthesize findings into a brief response with citations. Keep it short.",
		},
		RoleCritic: {
			Name:        RoleCritic,
			DisplayName: "Critic",
			Description: "Evaluates research quality and provides feedback",
			Directive:   "You are a Critic. Evaluate briefly and say TERMINATE if acceptable.",
		},
	}
}

// Table returns the four agent roles keyed by name. Each call returns fresh
// copies; the built-in definitions cannot be mutated.
func Table() map[RoleName]*Role {
	return builtinRoles()
}

// Get returns the definition of one agent role.
func Get(name RoleName) (*Role, error) {
	role, ok := builtinRoles()[name]
	if !ok {
		return nil, fmt.Errorf("no role definition for '%s'", name)
	}
	return role, nil
}

// TurnOrder returns the cyclic speaking order for one conversation round.
func TurnOrder() []RoleName {
	return []RoleName{RolePlanner, RoleResearcher, RoleWriter, RoleCritic}
}
