package model

import "strings"

// Capability strings understood by the workflow engine.
const (
	// CapWorkflowAdmin is the tenant owner/administrator capability. An actor
	// holding it (directly or via a wildcard) bypasses per-transition role
	// filtering entirely.
	CapWorkflowAdmin = "workflows:admin"

	// CapWorkflowManage permits creating, updating, and deleting workflow
	// definitions within the actor's tenant.
	CapWorkflowManage = "workflows:manage"
)

// CapabilitySet is a set of capabilities granted to an actor. Each key is a
// capability string (e.g. "workflows:manage") and may include wildcards
// (e.g. "workflows:*").
type CapabilitySet map[string]bool

// Has returns true if the set contains the exact capability or a wildcard
// that matches it.
func (cs CapabilitySet) Has(cap string) bool {
	if cs[cap] {
		return true
	}
	for pattern := range cs {
		if matchWildcard(pattern, cap) {
			return true
		}
	}
	return false
}

// HasAny returns true if the set matches at least one of the given
// capabilities (including via wildcards).
func (cs CapabilitySet) HasAny(caps ...string) bool {
	for _, cap := range caps {
		if cs.Has(cap) {
			return true
		}
	}
	return false
}

// matchWildcard returns true if pattern (which may end in "*") matches cap.
// Examples:
//
//	"*"            matches anything
//	"workflows:*"  matches "workflows:admin"
//	"workflows"    does NOT match "workflows:admin" (exact only, no wildcard)
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	prefix := pattern[:len(pattern)-1] // "workflows:*" → "workflows:"
	return strings.HasPrefix(cap, prefix)
}

// AccessResolver resolves the full capability set for an actor. The engine
// uses it for the owner/admin bypass and the transport layer for definition
// management authorization.
type AccessResolver interface {
	// Resolve returns all capabilities for the given actor in its tenant scope.
	Resolve(actor *Actor) (CapabilitySet, error)

	// Invalidate clears cached capabilities for the given subject and tenant.
	Invalidate(subjectID, domainID string)
}

// PolicyEvaluator is the backend implementation that resolves capabilities
// from roles and tenant configuration. Delegation to an external access
// control service lives behind this interface.
type PolicyEvaluator interface {
	// ResolveCapabilities returns the full capability set for the given actor.
	ResolveCapabilities(actor *Actor) (CapabilitySet, error)

	// Sync refreshes policy data from its source.
	Sync() error
}
