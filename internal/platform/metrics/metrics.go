package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	rateLimited     uint64
	totalDurationMs uint64

	validationsPassed uint64
	validationsFailed uint64

	mu     sync.Mutex
	phases map[string]uint64
}

func New() *Collector {
	return &Collector{phases: map[string]uint64{}}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	}
	if status == 429 {
		atomic.AddUint64(&c.rateLimited, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// RecordValidation counts timeline validation outcomes.
func (c *Collector) RecordValidation(valid bool) {
	if c == nil {
		return
	}
	if valid {
		atomic.AddUint64(&c.validationsPassed, 1)
		return
	}
	atomic.AddUint64(&c.validationsFailed, 1)
}

// RecordPhase counts resolved phases by name.
func (c *Collector) RecordPhase(phase string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.phases[phase]++
	c.mu.Unlock()
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}

	c.mu.Lock()
	phases := make(map[string]uint64, len(c.phases))
	for k, v := range c.phases {
		phases[k] = v
	}
	c.mu.Unlock()

	return map[string]any{
		"requestsTotal":        total,
		"errorsTotal":          atomic.LoadUint64(&c.errorRequests),
		"rateLimitedTotal":     atomic.LoadUint64(&c.rateLimited),
		"avgDurationMs":        avg,
		"totalDurationMs":      totalMs,
		"timelineValidTotal":   atomic.LoadUint64(&c.validationsPassed),
		"timelineInvalidTotal": atomic.LoadUint64(&c.validationsFailed),
		"resolvedPhasesByName": phases,
	}
}
