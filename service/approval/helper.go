package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelops/gatekeeper/model/decision"
)

// DecisionFunc decides what to do with a pending record.
// Return (true,  "") to approve
//
//	(false, "…") to reject with reason.
type DecisionFunc func(r *decision.Record) (approved bool, reasoning string)

// AutoDecider starts a goroutine that polls pending records and applies fn to
// every one. It returns stop() – call it (or cancel ctx) to exit. Intended
// for tests and unattended environments.
func AutoDecider(ctx context.Context,
	svc Service,
	approver string,
	fn DecisionFunc,
	interval time.Duration) (stop func()) {

	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				records, _ := svc.List(ctx, decision.StatusPending)
				for _, record := range records {
					ok, reasoning := fn(record)
					_, _ = svc.RecordApproval(ctx, record.ID, approver, ok, reasoning)
				}
			}
		}
	}()
	return func() { close(done) }
}

// WaitForDecision blocks until the record leaves Pending or the timeout
// elapses. It polls the snapshot store rather than the event queue so that
// multiple waiters do not steal each other's events.
func WaitForDecision(ctx context.Context, svc Service, id string, timeout time.Duration) (*decision.Record, error) {
	deadline := time.Now().Add(timeout)
	for {
		record, err := svc.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if record.Status != decision.StatusPending {
			return record, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for decision %s", id)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}
