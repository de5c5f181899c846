package gatekeeper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/gatekeeper"
	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/policy"
	tmemory "github.com/sentinelops/gatekeeper/service/tracker/memory"
)

func autoApprovable() *decision.Record {
	return &decision.Record{
		Type:       decision.TypeScaling,
		Priority:   decision.PriorityLow,
		Confidence: 0.9,
		Source:     "autoscaler",
	}
}

func escalating() *decision.Record {
	return &decision.Record{
		Type:           decision.TypeRollback,
		Priority:       decision.PriorityCritical,
		Confidence:     0.99,
		ProposedAction: "roll back api to v2.2.0",
		Source:         "deploy-bot",
	}
}

func TestService_SubmitAutoApproved(t *testing.T) {
	publisher := tmemory.New()
	svc := gatekeeper.New(gatekeeper.WithPublisher(publisher))

	result, err := svc.Submit(context.Background(), autoApprovable())
	require.NoError(t, err)
	assert.Equal(t, decision.StatusAutoApproved, result.Record.Status)
	assert.Equal(t, policy.AutoApprove, result.Verdict.Outcome)
	assert.Nil(t, result.Tracker, "auto-approved decisions are not escalated")
	assert.Equal(t, 0, publisher.Size())
}

func TestService_SubmitEscalatesToTracker(t *testing.T) {
	publisher := tmemory.New()
	svc := gatekeeper.New(gatekeeper.WithPublisher(publisher))
	ctx := context.Background()

	result, err := svc.Submit(ctx, escalating())
	require.NoError(t, err)
	assert.Equal(t, decision.StatusPending, result.Record.Status)
	require.NotNil(t, result.Tracker)

	issue, ok := publisher.Issue(result.Record.ID)
	require.True(t, ok)
	assert.Contains(t, issue.Body, "## Guardian Decision Request: Rollback")
	assert.Contains(t, issue.Body, "roll back api to v2.2.0")

	// A guardian verdict is reflected on the tracker issue.
	record, err := svc.RecordApproval(ctx, result.Record.ID, "alice", true, "rollback verified in staging")
	require.NoError(t, err)
	assert.Equal(t, decision.StatusApproved, record.Status)

	issue, _ = publisher.Issue(result.Record.ID)
	assert.Equal(t, decision.StatusApproved, issue.Status)
}

func TestService_SubmitDuplicate(t *testing.T) {
	svc := gatekeeper.New()
	ctx := context.Background()

	record := autoApprovable()
	record.ID = "dec-dup"
	_, err := svc.Submit(ctx, record)
	require.NoError(t, err)

	result, err := svc.Submit(ctx, record)
	assert.ErrorIs(t, err, decision.ErrDuplicateDecision)
	require.NotNil(t, result)
	assert.True(t, result.Existing)
	assert.Equal(t, decision.StatusAutoApproved, result.Record.Status)
}

func TestService_PublishRetriedAfterOutage(t *testing.T) {
	publisher := tmemory.New()
	publisher.SetAvailable(false)
	svc := gatekeeper.New(
		gatekeeper.WithPublisher(publisher),
		gatekeeper.WithConfig(&gatekeeper.Config{SweepInterval: 0}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	result, err := svc.Submit(ctx, escalating())
	require.NoError(t, err, "a tracker outage must not fail the submission")
	assert.Equal(t, decision.StatusPending, result.Record.Status)
	assert.Nil(t, result.Tracker)

	publisher.SetAvailable(true)
	assert.Eventually(t, func() bool {
		_, ok := publisher.Issue(result.Record.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "publication delivered once the tracker recovers")
}

func TestService_TrackerUpdatesAfterOutageRecovery(t *testing.T) {
	publisher := tmemory.New()
	publisher.SetAvailable(false)
	svc := gatekeeper.New(
		gatekeeper.WithPublisher(publisher),
		gatekeeper.WithConfig(&gatekeeper.Config{SweepInterval: 0}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	first, err := svc.Submit(ctx, escalating())
	require.NoError(t, err)

	second := escalating()
	second.ID = "dec-outage-2"
	_, err = svc.Submit(ctx, second)
	require.NoError(t, err)

	// Decided while the tracker is still down.
	_, err = svc.RecordApproval(ctx, second.ID, "alice", true, "verified")
	require.NoError(t, err)

	publisher.SetAvailable(true)

	// The delayed publication registers its reference, so a later verdict is
	// reflected on the external request.
	assert.Eventually(t, func() bool {
		_, ok := publisher.Issue(first.Record.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	_, err = svc.RecordApproval(ctx, first.Record.ID, "alice", false, "too risky")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		issue, ok := publisher.Issue(first.Record.ID)
		return ok && issue.Status == decision.StatusRejected
	}, time.Second, 10*time.Millisecond)

	// The verdict recorded during the outage is caught up on delivery.
	assert.Eventually(t, func() bool {
		issue, ok := publisher.Issue(second.ID)
		return ok && issue.Status == decision.StatusApproved
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_OverrideCountermandsAutoApproval(t *testing.T) {
	svc := gatekeeper.New()
	ctx := context.Background()

	result, err := svc.Submit(ctx, autoApprovable())
	require.NoError(t, err)
	require.Equal(t, decision.StatusAutoApproved, result.Record.Status)

	record, err := svc.Override(ctx, result.Record.ID, "alice", false, "change freeze")
	require.NoError(t, err)
	assert.Equal(t, decision.StatusRejected, record.Status)
}

func TestService_MarkExecutedAndHistory(t *testing.T) {
	svc := gatekeeper.New()
	ctx := context.Background()

	result, err := svc.Submit(ctx, autoApprovable())
	require.NoError(t, err)
	id := result.Record.ID

	_, err = svc.MarkExecuted(ctx, id, true, "scaled out")
	require.NoError(t, err)

	events, err := svc.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, decision.StatusAutoApproved, events[0].To)
	assert.Equal(t, decision.StatusExecuted, events[1].To)
	assert.Equal(t, "executor", events[1].Actor)
}

func TestService_ListFilter(t *testing.T) {
	svc := gatekeeper.New()
	ctx := context.Background()

	_, err := svc.Submit(ctx, autoApprovable())
	require.NoError(t, err)
	_, err = svc.Submit(ctx, escalating())
	require.NoError(t, err)

	all, err := svc.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := svc.List(ctx, &gatekeeper.ListFilter{Statuses: []decision.Status{decision.StatusPending}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, decision.TypeRollback, pending[0].Type)

	scaling, err := svc.List(ctx, &gatekeeper.ListFilter{Types: []decision.Type{decision.TypeScaling}})
	require.NoError(t, err)
	assert.Len(t, scaling, 1)

	none, err := svc.List(ctx, &gatekeeper.ListFilter{Until: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestService_Metrics(t *testing.T) {
	svc := gatekeeper.New()
	ctx := context.Background()

	empty, err := svc.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalDecisions)

	_, err = svc.Submit(ctx, autoApprovable())
	require.NoError(t, err)
	_, err = svc.Submit(ctx, autoApprovable())
	require.NoError(t, err)
	result, err := svc.Submit(ctx, escalating())
	require.NoError(t, err)

	metrics, err := svc.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, metrics.TotalDecisions)
	assert.Equal(t, 2, metrics.AutoApproved)
	assert.Equal(t, 1, metrics.Escalated)
	assert.InDelta(t, 2.0/3.0, metrics.AutoApprovalRate, 1e-9)
	assert.InDelta(t, (0.9+0.9+0.99)/3, metrics.AverageConfidence, 1e-9)

	byType := metrics.ByType[decision.TypeScaling]
	assert.Equal(t, 2, byType.Count)
	assert.InDelta(t, 1.0, byType.AutoApprovalRate, 1e-9)

	// An auto-approved record stays auto-approved in the rate after execution;
	// a human-approved one counts as escalated.
	_, err = svc.RecordApproval(ctx, result.Record.ID, "alice", true, "")
	require.NoError(t, err)
	_, err = svc.MarkExecuted(ctx, result.Record.ID, true, "")
	require.NoError(t, err)

	metrics, err = svc.Metrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.Escalated)
}

func TestService_ExpirySweeper(t *testing.T) {
	publisher := tmemory.New()
	svc := gatekeeper.New(
		gatekeeper.WithPublisher(publisher),
		gatekeeper.WithConfig(&gatekeeper.Config{
			ApprovalTTL:   30 * time.Millisecond,
			SweepInterval: 10 * time.Millisecond,
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)

	result, err := svc.Submit(ctx, escalating())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		record, err := svc.Get(ctx, result.Record.ID)
		return err == nil && record.Status == decision.StatusExpired
	}, 2*time.Second, 10*time.Millisecond)

	// The tracker issue reflects the expiry.
	issue, ok := publisher.Issue(result.Record.ID)
	require.True(t, ok)
	assert.Eventually(t, func() bool {
		issue, _ = publisher.Issue(result.Record.ID)
		return issue.Status == decision.StatusExpired
	}, time.Second, 10*time.Millisecond)
}

func TestService_GetUnknown(t *testing.T) {
	svc := gatekeeper.New()
	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, decision.ErrUnknownDecision)
}
