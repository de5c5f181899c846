package fs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelops/gatekeeper/model/decision"
	"github.com/sentinelops/gatekeeper/service/dao"
)

func TestService_RoundTrip(t *testing.T) {
	svc, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	record := &decision.Record{
		ID:         "dec-1",
		Type:       decision.TypeDeployment,
		Priority:   decision.PriorityMedium,
		Confidence: 0.9,
		Status:     decision.StatusAutoApproved,
		Metadata:   map[string]any{"region": "us-east-1"},
	}
	require.NoError(t, svc.Save(ctx, record))

	loaded, err := svc.Load(ctx, "dec-1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, loaded.ID)
	assert.Equal(t, record.Status, loaded.Status)
	assert.Equal(t, "us-east-1", loaded.Metadata["region"])

	records, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	require.NoError(t, svc.Delete(ctx, "dec-1"))
	_, err = svc.Load(ctx, "dec-1")
	assert.ErrorIs(t, err, dao.ErrNotFound)
}

func TestService_SaveOverwrites(t *testing.T) {
	svc, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	record := &decision.Record{ID: "dec-1", Type: decision.TypeScaling, Priority: decision.PriorityLow, Confidence: 0.7, Status: decision.StatusPending}
	require.NoError(t, svc.Save(ctx, record))

	record.Status = decision.StatusApproved
	require.NoError(t, svc.Save(ctx, record))

	loaded, err := svc.Load(ctx, "dec-1")
	require.NoError(t, err)
	assert.Equal(t, decision.StatusApproved, loaded.Status)

	records, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestService_Validation(t *testing.T) {
	svc, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Save(ctx, nil), dao.ErrNilEntity)
	assert.ErrorIs(t, svc.Save(ctx, &decision.Record{}), dao.ErrInvalidID)
	_, err = svc.Load(ctx, "")
	assert.ErrorIs(t, err, dao.ErrInvalidID)
	assert.ErrorIs(t, svc.Delete(ctx, "missing"), dao.ErrNotFound)

	_, err = New("")
	assert.Error(t, err)
}
