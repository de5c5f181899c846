package tracker

import (
	"context"

	"github.com/sentinelops/gatekeeper/model/decision"
)

// Reference identifies the external request created for a decision.
type Reference struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// Publication is the retryable unit of work queued when the tracker is
// unreachable.
type Publication struct {
	Record *decision.Record `json:"record"`
	Body   string           `json:"body"`
}

// Publisher exposes escalated decisions to humans via an external tracker.
// Implementations return decision.ErrPublishUnavailable when the tracker is
// unreachable; callers treat that as non-fatal.
type Publisher interface {
	// Publish creates (or re-uses, keyed by decision ID) the external request
	// for the record with the rendered body.
	Publish(ctx context.Context, record *decision.Record, body string) (*Reference, error)

	// Update reflects a status change on the external request.
	Update(ctx context.Context, ref *Reference, status decision.Status) error
}
