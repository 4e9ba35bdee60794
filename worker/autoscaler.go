package worker

import (
	"context"
	"time"

	"github.com/halvardsen/chunkvault/internal/logging"
	"github.com/halvardsen/chunkvault/internal/metrics"
)

// AutoscalerConfig carries the thresholds original_source reads off
// settings.* inside _autoscale_workers_loop.
type AutoscalerConfig struct {
	MinWorkers                    int
	MaxWorkers                    int
	Cooldown                      time.Duration
	ScaleUpQueueThreshold         int
	ScaleUpUtilizationThreshold   float64
	ScaleDownUtilizationThreshold float64
}

// Autoscaler periodically resizes a Pool by queue depth and utilization,
// the direct port of main.py's _autoscale_workers_loop.
type Autoscaler struct {
	pool *Pool
	cfg  AutoscalerConfig
	log  logging.Logger
	m    *metrics.Metrics
}

func NewAutoscaler(pool *Pool, cfg AutoscalerConfig, log logging.Logger, m *metrics.Metrics) *Autoscaler {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Second
	}
	return &Autoscaler{pool: pool, cfg: cfg, log: log, m: m}
}

// Run blocks, ticking every cfg.Cooldown, until ctx is cancelled. Intended
// to be launched in its own goroutine from the composition root, mirroring
// the lifespan-managed asyncio task in main.py.
func (a *Autoscaler) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Cooldown)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *Autoscaler) tick() {
	queued, inflight, current := a.pool.Snapshot()
	if current <= 0 {
		current = 1
	}
	utilization := float64(inflight) / float64(current)

	desired := current
	switch {
	case (queued >= a.cfg.ScaleUpQueueThreshold ||
		utilization >= a.cfg.ScaleUpUtilizationThreshold) &&
		current < a.cfg.MaxWorkers:
		desired = current + 1
	case queued == 0 &&
		utilization <= a.cfg.ScaleDownUtilizationThreshold &&
		current > a.cfg.MinWorkers:
		desired = current - 1
	}

	if desired == current {
		return
	}

	a.pool.Resize(desired)
	direction := "up"
	if desired < current {
		direction = "down"
	}
	if a.m != nil {
		a.m.AutoscaleEventsTotal.WithLabelValues(direction).Inc()
	}
	a.log.Info("worker pool scaled",
		"from_workers", current,
		"to_workers", desired,
		"queued", queued,
		"inflight", inflight,
		"utilization", utilization,
	)
}
