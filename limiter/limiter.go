// Package limiter implements chunkvault's admission control: a queue-slot
// check, a global inflight cap, and a per-upload (optionally fair-share)
// cap, acquired in that strict order and released in reverse. Grounded on
// original_source/app/worker.py's BackpressureExecutor (queue/global
// admission) and app/limits.py's PerUploadInflightLimiter (per-upload/
// fair-share admission).
package limiter

import (
	"sync"

	"github.com/halvardsen/chunkvault/internal/apperror"
	"github.com/halvardsen/chunkvault/internal/metrics"
)

// AdmissionController gates chunk task admission. Acquire order is
// queue -> global inflight -> per-upload inflight -> fair-share; Release
// reverses it, matching worker.py's _try_admit/_on_start/_on_end pairing
// with limits.py's acquire/release.
type AdmissionController struct {
	mu sync.Mutex

	queueMaxSize  int
	globalLimit   int
	perUploadCap  int
	fairShareCap  int

	queued        int
	globalInflight int
	perUpload     map[string]int

	m *metrics.Metrics
}

// NewAdmissionController wires up an AdmissionController. A fairShareCap of
// 0 auto-derives to max(1, workerCount/2), matching spec §4.4's "auto"
// default when no explicit fair-share cap is configured.
func NewAdmissionController(queueMaxSize, globalLimit, perUploadCap, fairShareCap, workerCount int, m *metrics.Metrics) *AdmissionController {
	if fairShareCap == 0 {
		fairShareCap = workerCount / 2
		if fairShareCap < 1 {
			fairShareCap = 1
		}
	}
	return &AdmissionController{
		queueMaxSize: queueMaxSize,
		globalLimit:  globalLimit,
		perUploadCap: perUploadCap,
		fairShareCap: fairShareCap,
		perUpload:    map[string]int{},
		m:            m,
	}
}

// Admission represents one chunk task's granted slots, released as a unit.
type Admission struct {
	uploadID string
}

// Acquire admits one chunk task for uploadID, or returns a typed
// apperror.KindBackpressure error naming the limiter that refused it (one
// of queue_full, global_inflight_limit, upload_inflight_limit,
// upload_fair_share_limit), matching the reasons worker.py/limits.py raise.
func (a *AdmissionController) Acquire(uploadID string) (*Admission, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.queueMaxSize > 0 && a.queued >= a.queueMaxSize {
		a.throttled("queue_full")
		return nil, apperror.Backpressure("queue_full", "task queue is full")
	}
	if a.globalLimit > 0 && a.globalInflight >= a.globalLimit {
		a.throttled("global_inflight_limit")
		return nil, apperror.Backpressure("global_inflight_limit", "global inflight chunk limit reached")
	}

	current := a.perUpload[uploadID]
	if a.perUploadCap > 0 && current >= a.perUploadCap {
		a.throttled("upload_inflight_limit")
		return nil, apperror.Backpressure("upload_inflight_limit", "per-upload inflight chunk limit reached")
	}
	// Admitting this task would leave the global pool with no headroom;
	// only then does the fair-share cap apply, per spec.
	underContention := a.globalLimit > 0 && a.globalInflight+1 >= a.globalLimit
	if underContention && a.fairShareCap > 0 && current >= a.fairShareCap {
		a.throttled("upload_fair_share_limit")
		return nil, apperror.Backpressure("upload_fair_share_limit", "per-upload fair-share limit reached")
	}

	a.queued++
	a.globalInflight++
	a.perUpload[uploadID] = current + 1
	a.publish()

	return &Admission{uploadID: uploadID}, nil
}

// Release gives back the slots held by adm, in the reverse order they were
// acquired.
func (a *AdmissionController) Release(adm *Admission) {
	if adm == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if n := a.perUpload[adm.uploadID]; n <= 1 {
		delete(a.perUpload, adm.uploadID)
	} else {
		a.perUpload[adm.uploadID] = n - 1
	}

	if a.globalInflight > 0 {
		a.globalInflight--
	}
	if a.queued > 0 {
		a.queued--
	}
	a.publish()
}

// Snapshot returns the current queued and globally inflight counts, used by
// the autoscaler the way worker.py's BackpressureExecutor.snapshot feeds
// _autoscale_workers_loop.
func (a *AdmissionController) Snapshot() (queued, inflight int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queued, a.globalInflight
}

func (a *AdmissionController) throttled(reason string) {
	if a.m != nil {
		a.m.ThrottledRequestsTotal.WithLabelValues(reason).Inc()
	}
}

func (a *AdmissionController) publish() {
	if a.m == nil {
		return
	}
	a.m.TaskQueueDepth.Set(float64(a.queued))
	a.m.InflightChunks.Set(float64(a.globalInflight))
}
