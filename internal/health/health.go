// Package health mirrors the teacher's health.ReadinessCheck contract
// (setup.go's createHealthServer), re-expressed for an HTTP /health handler
// instead of a gRPC health service.
package health

import (
	"context"
	"sync"
	"time"
)

// ReadinessCheck is implemented by any dependency whose health should be
// aggregated into the service's overall readiness (metadata store, storage
// backend, queue).
type ReadinessCheck interface {
	Name() string
	IsReady(ctx context.Context) error
}

// Aggregator periodically polls a set of ReadinessChecks and exposes the
// last known overall status, the way setup.go's createHealthServer ticks
// every 5 seconds and flips the gRPC health server's serving status.
type Aggregator struct {
	checks   []ReadinessCheck
	interval time.Duration

	mu     sync.RWMutex
	ready  bool
	detail map[string]string
}

func NewAggregator(interval time.Duration, checks ...ReadinessCheck) *Aggregator {
	return &Aggregator{
		checks:   checks,
		interval: interval,
		detail:   map[string]string{},
	}
}

// Run blocks, polling on Aggregator's interval until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.pollOnce(ctx)
		}
	}
}

func (a *Aggregator) pollOnce(ctx context.Context) {
	ready := true
	detail := make(map[string]string, len(a.checks))

	for _, c := range a.checks {
		cctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		err := c.IsReady(cctx)
		cancel()

		if err != nil {
			ready = false
			detail[c.Name()] = err.Error()
		} else {
			detail[c.Name()] = "ok"
		}
	}

	a.mu.Lock()
	a.ready = ready
	a.detail = detail
	a.mu.Unlock()
}

// Status returns the last-polled overall readiness and per-check detail.
func (a *Aggregator) Status() (bool, map[string]string) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	detail := make(map[string]string, len(a.detail))
	for k, v := range a.detail {
		detail[k] = v
	}
	return a.ready, detail
}
