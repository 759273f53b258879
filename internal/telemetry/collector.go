package telemetry

import (
	"time"

	"github.com/wildernesslabs/meadowd/internal/types"
)

// StoreCounter is the narrow slice of internal/store.Store the collector
// needs; kept as a local interface so telemetry doesn't import the full
// store package surface.
type StoreCounter interface {
	CountsByApplyState() map[types.ApplyState]int
}

// Collector periodically snapshots the store into gauges.
type Collector struct {
	store  StoreCounter
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store StoreCounter) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	counts := c.store.CountsByApplyState()
	for _, state := range []types.ApplyState{types.ApplyStatePending, types.ApplyStateApplied, types.ApplyStateFailed} {
		UpdatesTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}
