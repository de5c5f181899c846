package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/service/dao"
)

func TestService_SaveLoadDelete(t *testing.T) {
	svc := New()
	ctx := context.Background()

	record := &decision.Record{ID: "dec-1", Type: decision.TypeScaling, Priority: decision.PriorityLow, Confidence: 0.7, Status: decision.StatusPending}
	require.NoError(t, svc.Save(ctx, record))

	loaded, err := svc.Load(ctx, "dec-1")
	require.NoError(t, err)
	assert.Equal(t, decision.StatusPending, loaded.Status)

	// Returned copies are isolated from the store.
	loaded.Status = decision.StatusApproved
	again, err := svc.Load(ctx, "dec-1")
	require.NoError(t, err)
	assert.Equal(t, decision.StatusPending, again.Status)

	require.NoError(t, svc.Delete(ctx, "dec-1"))
	_, err = svc.Load(ctx, "dec-1")
	assert.ErrorIs(t, err, dao.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "dec-1"), dao.ErrNotFound)
}

func TestService_SaveValidation(t *testing.T) {
	svc := New()
	ctx := context.Background()
	assert.ErrorIs(t, svc.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, svc.Save(ctx, &decision.Record{}), dao.ErrInvalidID)
	_, err := svc.Load(ctx, "")
	assert.ErrorIs(t, err, dao.ErrInvalidID)
}

func TestService_ListByStatus(t *testing.T) {
	svc := New()
	ctx := context.Background()

	require.NoError(t, svc.Save(ctx, &decision.Record{ID: "a", Status: decision.StatusPending}))
	require.NoError(t, svc.Save(ctx, &decision.Record{ID: "b", Status: decision.StatusApproved}))
	require.NoError(t, svc.Save(ctx, &decision.Record{ID: "c", Status: decision.StatusExecuted}))

	all, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending, err := svc.List(ctx, dao.NewParameter("Status", string(decision.StatusPending)))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ID)

	done, err := svc.List(ctx, dao.NewParameter("Status", string(decision.StatusApproved), string(decision.StatusExecuted)))
	require.NoError(t, err)
	assert.Len(t, done, 2)
}
