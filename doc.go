// Package gatekeeper gates autonomous operational actions behind a
// confidence-and-risk policy. Low-risk, high-confidence actions are
// auto-approved for execution; everything else is escalated to a human
// guardian through an external tracker. Every lifecycle transition is
// recorded in an append-only audit log from which the live state can be
// rebuilt.
package gatekeeper
