package healing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/policy"
	"github.com/sentinelops/gatekeeper/service/approval"
	amemory "github.com/sentinelops/gatekeeper/service/audit/memory"
	dmemory "github.com/sentinelops/gatekeeper/service/dao/decision/memory"
)

func newGate(t *testing.T) approval.Service {
	t.Helper()
	return approval.New(dmemory.New(), amemory.New(), policy.New(policy.DefaultConfig()))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Target = "db-primary"
	cfg.RetryLimit = 1
	cfg.Backoff = time.Millisecond
	cfg.ExecTimeout = time.Second
	return cfg
}

func TestController_HealthyProbe(t *testing.T) {
	controller := New(testConfig(), newGate(t),
		func(ctx context.Context) (bool, string) { return true, "" },
		ExecutorFunc(func(ctx context.Context, record *decision.Record) error { return nil }),
	)

	assert.Equal(t, Healthy, controller.Observe(context.Background()))
	assert.Equal(t, Healthy, controller.State())
}

func TestController_RepairRecovers(t *testing.T) {
	gate := newGate(t)
	var repaired atomic.Bool

	controller := New(testConfig(), gate,
		func(ctx context.Context) (bool, string) { return repaired.Load(), "connection refused" },
		ExecutorFunc(func(ctx context.Context, record *decision.Record) error {
			repaired.Store(true)
			return nil
		}),
	)

	assert.Equal(t, Healthy, controller.Observe(context.Background()))

	// The repair went through the approval gate and was executed.
	records, err := gate.List(context.Background(), decision.StatusExecuted)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, decision.TypeHealing, records[0].Type)
	assert.Equal(t, "db-primary", records[0].Source)
}

func TestController_EscalatedRepairStopsLoop(t *testing.T) {
	gate := newGate(t)
	cfg := testConfig()
	cfg.Confidence = 0.5 // below the healing threshold, policy escalates

	var executions atomic.Int32
	controller := New(cfg, gate,
		func(ctx context.Context) (bool, string) { return false, "disk full" },
		ExecutorFunc(func(ctx context.Context, record *decision.Record) error {
			executions.Add(1)
			return nil
		}),
	)

	assert.Equal(t, Unhealthy, controller.Observe(context.Background()))
	assert.Equal(t, int32(0), executions.Load(), "escalated repairs are never executed automatically")

	pending, err := gate.List(context.Background(), decision.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1, "the guardian owns the repair now")

	// Further probes do not pile up duplicate repair requests while the
	// guardian deliberates.
	assert.Equal(t, Unhealthy, controller.Observe(context.Background()))
	assert.Equal(t, Unhealthy, controller.Observe(context.Background()))
	pending, err = gate.List(context.Background(), decision.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestController_ApprovedRepairExecutesOnNextProbe(t *testing.T) {
	gate := newGate(t)
	cfg := testConfig()
	cfg.Confidence = 0.5

	var repaired atomic.Bool
	controller := New(cfg, gate,
		func(ctx context.Context) (bool, string) { return repaired.Load(), "disk full" },
		ExecutorFunc(func(ctx context.Context, record *decision.Record) error {
			repaired.Store(true)
			return nil
		}),
	)
	ctx := context.Background()

	require.Equal(t, Unhealthy, controller.Observe(ctx))
	pending, err := gate.List(ctx, decision.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = gate.RecordApproval(ctx, pending[0].ID, "alice", true, "clear the cache partition")
	require.NoError(t, err)

	assert.Equal(t, Healthy, controller.Observe(ctx))

	executed, err := gate.List(ctx, decision.StatusExecuted)
	require.NoError(t, err)
	require.Len(t, executed, 1)
	assert.Equal(t, pending[0].ID, executed[0].ID)
}

func TestController_RejectedRepairResumesLoop(t *testing.T) {
	gate := newGate(t)
	cfg := testConfig()
	cfg.Confidence = 0.5

	controller := New(cfg, gate,
		func(ctx context.Context) (bool, string) { return false, "disk full" },
		ExecutorFunc(func(ctx context.Context, record *decision.Record) error { return nil }),
	)
	ctx := context.Background()

	require.Equal(t, Unhealthy, controller.Observe(ctx))
	pending, err := gate.List(ctx, decision.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = gate.RecordApproval(ctx, pending[0].ID, "alice", false, "not during the incident")
	require.NoError(t, err)

	// The rejection hands the target back to the automatic loop, which
	// escalates a fresh repair request.
	require.Equal(t, Unhealthy, controller.Observe(ctx))
	pending, err = gate.List(ctx, decision.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestController_ExhaustedRetriesGoFatal(t *testing.T) {
	gate := newGate(t)
	var executions atomic.Int32

	controller := New(testConfig(), gate,
		func(ctx context.Context) (bool, string) { return false, "oom loop" },
		ExecutorFunc(func(ctx context.Context, record *decision.Record) error {
			executions.Add(1)
			return errors.New("restart failed")
		}),
	)

	assert.Equal(t, Fatal, controller.Observe(context.Background()))
	assert.Equal(t, Fatal, controller.State())
	assert.Equal(t, int32(2), executions.Load(), "retry limit 1 means two attempts")

	// Each failed attempt is audited as a failed execution.
	failed, err := gate.List(context.Background(), decision.StatusFailed)
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	// The fatal escalation is a critical decision awaiting a human.
	pending, err := gate.List(context.Background(), decision.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, decision.PriorityCritical, pending[0].Priority)
	assert.Equal(t, decision.TypeHealing, pending[0].Type)
	name, blocked := pending[0].Risk.HasBlocking(nil)
	assert.True(t, blocked)
	assert.Equal(t, "repair-loop-exhausted", name)
}

func TestController_Reset(t *testing.T) {
	controller := New(testConfig(), newGate(t),
		func(ctx context.Context) (bool, string) { return false, "down" },
		ExecutorFunc(func(ctx context.Context, record *decision.Record) error { return errors.New("nope") }),
	)

	require.Equal(t, Fatal, controller.Observe(context.Background()))
	controller.Reset()
	assert.Equal(t, Healthy, controller.State())
}

func TestController_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 5 * time.Millisecond

	var probes atomic.Int32
	controller := New(cfg, newGate(t),
		func(ctx context.Context) (bool, string) {
			probes.Add(1)
			return true, ""
		},
		ExecutorFunc(func(ctx context.Context, record *decision.Record) error { return nil }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		controller.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return probes.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
