package domain

import "slices"

// Capability is a permission the core consults before mutating state.
type Capability string

// Capabilities checked by the core.
const (
	CapabilityAdvance   Capability = "advance"
	CapabilityAdmit     Capability = "admit"
	CapabilityReject    Capability = "reject"
	CapabilityScore     Capability = "score"
	CapabilityConfigure Capability = "configure"
)

// AllCapabilities lists every capability, for administrative callers.
var AllCapabilities = []Capability{
	CapabilityAdvance,
	CapabilityAdmit,
	CapabilityReject,
	CapabilityScore,
	CapabilityConfigure,
}

// Authorization is the pre-authorization result a caller passes into each
// mutating operation. The core never looks up identity or sessions itself.
type Authorization struct {
	// ActorID identifies the caller. It is recorded on decisions and used
	// as the evaluator id when scoring.
	ActorID string

	// Capabilities is the set of capabilities granted to the caller.
	Capabilities []Capability
}

// Grant returns an Authorization for actorID holding caps.
func Grant(actorID string, caps ...Capability) Authorization {
	return Authorization{ActorID: actorID, Capabilities: caps}
}

// Has reports whether the authorization includes capability c.
func (a Authorization) Has(c Capability) bool { return slices.Contains(a.Capabilities, c) }

// Require returns a PermissionError when capability c is missing.
func (a Authorization) Require(c Capability) error {
	if a.Has(c) {
		return nil
	}
	return &PermissionError{ActorID: a.ActorID, Capability: c}
}
