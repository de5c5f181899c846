package audit

import (
	"context"
	"fmt"

	"github.com/sentinelops/gatekeeper/model/decision"
)

// Log is the append-only audit trail contract. Append fails only when the
// underlying storage is unavailable (decision.ErrStorageUnavailable) and is
// then retried by the caller. Events of the same decision keep their append
// order; writers on different decisions do not block each other beyond the
// implementation's internal locking.
type Log interface {
	// Append records an event. The log assigns Seq and never mutates past
	// entries.
	Append(ctx context.Context, event *Event) error

	// Query returns the ordered event sequence for a decision.
	Query(ctx context.Context, decisionID string) ([]*Event, error)

	// QueryAll returns all events passing the filter, ordered by time.
	QueryAll(ctx context.Context, filter *Filter) ([]*Event, error)
}

// Replay folds the event sequence of a decision into its final status. The
// state machine has no hidden inputs, so replaying the log against an empty
// state reconstructs the exact snapshot status.
func Replay(ctx context.Context, log Log, decisionID string) (decision.Status, error) {
	events, err := log.Query(ctx, decisionID)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "", fmt.Errorf("%w: %s", decision.ErrUnknownDecision, decisionID)
	}
	current := events[0].To
	for _, event := range events[1:] {
		if event.From != current {
			return "", fmt.Errorf("audit: broken chain for %s: event %d transitions from %q but current status is %q",
				decisionID, event.Seq, event.From, current)
		}
		current = event.To
	}
	return current, nil
}
