package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry_ReserveFreshThenReplay(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	outcome, rec, err := reg.Reserve(ctx, "init", "key-1", "fp-a", "upload-1", 0)
	require.NoError(t, err)
	assert.Equal(t, Fresh, outcome)
	assert.Nil(t, rec)

	outcome, rec, err = reg.Reserve(ctx, "init", "key-1", "fp-a", "upload-1", 0)
	require.NoError(t, err)
	assert.Equal(t, Replay, outcome)
	require.NotNil(t, rec)
	assert.Equal(t, "upload-1", rec.UploadID)
}

func TestMemoryRegistry_ReserveConflict(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	_, _, err := reg.Reserve(ctx, "init", "key-1", "fp-a", "upload-1", 0)
	require.NoError(t, err)

	outcome, rec, err := reg.Reserve(ctx, "init", "key-1", "fp-b", "upload-1", 0)
	require.NoError(t, err)
	assert.Equal(t, Conflict, outcome)
	require.NotNil(t, rec)
}

func TestMemoryRegistry_KindsAreIsolated(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	_, _, err := reg.Reserve(ctx, "init", "shared-key", "fp-a", "upload-1", 0)
	require.NoError(t, err)

	// Same key string under a different kind is a distinct reservation.
	outcome, _, err := reg.Reserve(ctx, "chunk", "shared-key", "fp-a", "upload-1", 0)
	require.NoError(t, err)
	assert.Equal(t, Fresh, outcome)
}

func TestMemoryRegistry_StoreResultThenReplayReturnsIt(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	_, _, err := reg.Reserve(ctx, "complete", "key-1", "fp-a", "upload-1", 0)
	require.NoError(t, err)
	require.NoError(t, reg.StoreResult(ctx, "complete", "key-1", `{"status":"COMPLETED"}`))

	_, rec, err := reg.Reserve(ctx, "complete", "key-1", "fp-a", "upload-1", 0)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, `{"status":"COMPLETED"}`, rec.ResultJSON)
}

func TestMemoryRegistry_GCRemovesOnlyExpired(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	_, _, err := reg.Reserve(ctx, "init", "old-key", "fp", "upload-1", 0)
	require.NoError(t, err)
	reg.records["init\x00old-key"].CreatedAt = time.Now().Add(-48 * time.Hour)

	_, _, err = reg.Reserve(ctx, "init", "fresh-key", "fp", "upload-2", 0)
	require.NoError(t, err)

	deleted, err := reg.GC(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	outcome, _, err := reg.Reserve(ctx, "init", "old-key", "fp", "upload-1", 0)
	require.NoError(t, err)
	assert.Equal(t, Fresh, outcome, "GC'd record should no longer block a fresh reservation")

	outcome, _, err = reg.Reserve(ctx, "init", "fresh-key", "fp", "upload-2", 0)
	require.NoError(t, err)
	assert.Equal(t, Replay, outcome, "un-expired record should survive GC")
}
