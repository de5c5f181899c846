package approval

import (
	"context"

	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/service/messaging"
)

// Service defines the approval state machine contract.
type Service interface {
	// Submit registers a new decision record. The policy engine classifies it
	// as Pending (escalated) or AutoApproved. Resubmitting a known ID returns
	// the existing record with decision.ErrDuplicateDecision.
	Submit(ctx context.Context, record *decision.Record) (*Receipt, error)

	// RecordApproval applies a guardian's verdict to a Pending record,
	// transitioning it to Approved or Rejected.
	RecordApproval(ctx context.Context, id, approver string, approved bool, reasoning string) (*decision.Record, error)

	// Override forces Approved or Rejected bypassing the normal flow. Valid
	// from Pending and AutoApproved; still logged like any transition.
	Override(ctx context.Context, id, approver string, approved bool, reasoning string) (*decision.Record, error)

	// Expire transitions a Pending record whose TTL has elapsed to Expired.
	Expire(ctx context.Context, id string) (*decision.Record, error)

	// ExpireStale sweeps all Pending records past their TTL.
	ExpireStale(ctx context.Context) ([]*decision.Record, error)

	// MarkExecuted records the outcome reported by the external executor,
	// transitioning AutoApproved/Approved to Executed or Failed.
	MarkExecuted(ctx context.Context, id string, success bool, detail string) (*decision.Record, error)

	// Get returns the current snapshot of a record.
	Get(ctx context.Context, id string) (*decision.Record, error)

	// List returns snapshots, optionally restricted to the given statuses.
	List(ctx context.Context, statuses ...decision.Status) ([]*decision.Record, error)

	// Rebuild discards the snapshot store content and reconstructs it by
	// replaying the audit log.
	Rebuild(ctx context.Context) error

	// Queue exposes the transition event fan-out.
	Queue() messaging.Queue[Event]
}
