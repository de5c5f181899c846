package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/gatekeeper/model/decision"
)

func TestAutoDecider(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := AutoDecider(ctx, svc, "autobot", func(r *decision.Record) (bool, string) {
		return r.Type != decision.TypeOverride, "auto-decided"
	}, 5*time.Millisecond)
	defer stop()

	receipt, err := svc.Submit(ctx, escalating())
	require.NoError(t, err)

	record, err := WaitForDecision(ctx, svc, receipt.Record.ID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, decision.StatusRejected, record.Status)
	assert.Equal(t, "autobot", record.Approval.Approver)
}

func TestWaitForDecision_Timeout(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	receipt, err := svc.Submit(ctx, escalating())
	require.NoError(t, err)

	_, err = WaitForDecision(ctx, svc, receipt.Record.ID, 50*time.Millisecond)
	assert.Error(t, err)
}

func TestWaitForDecision_Unknown(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := WaitForDecision(context.Background(), svc, "missing", time.Second)
	assert.ErrorIs(t, err, decision.ErrUnknownDecision)
}
