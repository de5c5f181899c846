// Package decision defines the decision record – the immutable proposal for
// an autonomous operational action – together with the closed type, priority
// and status variants used across the gatekeeper.
package decision
