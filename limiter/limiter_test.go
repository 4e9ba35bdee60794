package limiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvardsen/chunkvault/internal/apperror"
)

func TestAcquireRelease_RoundTrip(t *testing.T) {
	a := NewAdmissionController(10, 10, 10, 10, 0, nil)

	adm, err := a.Acquire("upload-1")
	require.NoError(t, err)
	require.NotNil(t, adm)

	queued, inflight := a.Snapshot()
	assert.Equal(t, 1, queued)
	assert.Equal(t, 1, inflight)

	a.Release(adm)
	queued, inflight = a.Snapshot()
	assert.Equal(t, 0, queued)
	assert.Equal(t, 0, inflight)
}

func TestAcquire_GlobalInflightLimit(t *testing.T) {
	a := NewAdmissionController(10, 1, 10, 10, 0, nil)

	_, err := a.Acquire("upload-1")
	require.NoError(t, err)

	_, err = a.Acquire("upload-2")
	require.Error(t, err)

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindBackpressure, appErr.Kind)
	assert.Equal(t, "global_inflight_limit", appErr.Reason)
}

func TestAcquire_PerUploadCap(t *testing.T) {
	a := NewAdmissionController(10, 10, 1, 10, 0, nil)

	_, err := a.Acquire("upload-1")
	require.NoError(t, err)

	_, err = a.Acquire("upload-1")
	require.Error(t, err)

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "upload_inflight_limit", appErr.Reason)

	// A different upload is unaffected by upload-1's cap.
	_, err = a.Acquire("upload-2")
	require.NoError(t, err)
}

func TestAcquire_QueueFull(t *testing.T) {
	a := NewAdmissionController(1, 10, 10, 10, 0, nil)

	_, err := a.Acquire("upload-1")
	require.NoError(t, err)

	_, err = a.Acquire("upload-2")
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "queue_full", appErr.Reason)
}

func TestRelease_Nil_NoPanic(t *testing.T) {
	a := NewAdmissionController(10, 10, 10, 10, 0, nil)
	assert.NotPanics(t, func() { a.Release(nil) })
}

func TestAcquire_FairShareOnlyAppliesUnderGlobalContention(t *testing.T) {
	a := NewAdmissionController(10, 10, 10, 1, 0, nil)

	// Global pool has ample headroom; fair-share must not reject even
	// though upload-1 exceeds the fair-share cap of 1.
	_, err := a.Acquire("upload-1")
	require.NoError(t, err)
	_, err = a.Acquire("upload-1")
	require.NoError(t, err)
}

func TestAcquire_FairShareRejectsUnderGlobalContention(t *testing.T) {
	a := NewAdmissionController(10, 2, 10, 1, 0, nil)

	// First acquire leaves headroom (0 -> 1 of 2), fair-share does not apply.
	_, err := a.Acquire("upload-1")
	require.NoError(t, err)

	// Admitting a second chunk for the same upload would exhaust the
	// global pool (1 -> 2 of 2); fair-share now applies and upload-1 is
	// already at its cap of 1.
	_, err = a.Acquire("upload-1")
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "upload_fair_share_limit", appErr.Reason)
}

func TestNewAdmissionController_ZeroFairShareCapAutoDerivesFromWorkerCount(t *testing.T) {
	a := NewAdmissionController(10, 10, 10, 0, 8, nil)
	assert.Equal(t, 4, a.fairShareCap)
}

func TestNewAdmissionController_ZeroFairShareCapAutoDerivesToAtLeastOne(t *testing.T) {
	a := NewAdmissionController(10, 10, 10, 0, 1, nil)
	assert.Equal(t, 1, a.fairShareCap)
}

func TestRelease_DoesNotUnderflow(t *testing.T) {
	a := NewAdmissionController(10, 10, 10, 10, 0, nil)
	adm, err := a.Acquire("upload-1")
	require.NoError(t, err)

	a.Release(adm)
	a.Release(adm) // releasing twice must not drive counts negative

	queued, inflight := a.Snapshot()
	assert.Equal(t, 0, queued)
	assert.Equal(t, 0, inflight)
}
