package model

import "strings"

// Capabilities guarding the operator surface.
const (
	CapGive   = "coreitems:give"
	CapReload = "coreitems:reload"
	CapList   = "coreitems:list"
	CapSave   = "coreitems:save"
)

// CapabilitySet is a set of capabilities granted to a caller. Keys may end in
// ":*" to grant every capability under a prefix; "*" grants everything.
type CapabilitySet map[string]bool

// Has returns true if the set contains cap exactly or through a wildcard.
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

// HasAll returns true if every capability in caps is granted.
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, cap := range caps {
		if !cs.Has(cap) {
			return false
		}
	}
	return true
}

func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	return strings.HasPrefix(cap, pattern[:len(pattern)-1])
}

// CapabilityResolver resolves the capability set for a request context.
type CapabilityResolver interface {
	Resolve(rctx *RequestContext) (CapabilitySet, error)
	Invalidate(subjectID string)
}

// PolicyEvaluator computes capabilities from roles.
type PolicyEvaluator interface {
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)
	Sync() error
}
