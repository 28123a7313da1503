package ingest

import (
	"context"
	"sync"

	"printlapse/internal/logger"
	"printlapse/internal/models"
)

// Observer consumes telemetry samples in arrival order.
type Observer interface {
	Observe(models.TelemetrySample)
}

const defaultBuffer = 64

// Dispatcher is the single seam between a telemetry source and the rest of
// the engine. Sources Push into a buffered channel and never block: when
// consumers fall behind the sample is dropped with a warning, so a slow
// capture or render cannot stall telemetry delivery.
type Dispatcher struct {
	ch  chan models.TelemetrySample
	log *logger.Logger

	mu        sync.Mutex
	observers []Observer
	last      models.TelemetrySample
	hasLast   bool
}

func NewDispatcher(log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		ch:  make(chan models.TelemetrySample, defaultBuffer),
		log: log,
	}
}

// Register adds an observer. Observers see samples in arrival order, one at
// a time, on the dispatcher's goroutine.
func (d *Dispatcher) Register(obs Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, obs)
}

// Push hands one sample to the dispatch loop without blocking.
func (d *Dispatcher) Push(s models.TelemetrySample) {
	select {
	case d.ch <- s:
	default:
		d.log.Warnw("telemetry_sample_dropped", "reason", "dispatch buffer full", "job_state", s.State)
	}
}

// Last returns the most recently dispatched sample, for status snapshots.
func (d *Dispatcher) Last() (models.TelemetrySample, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.hasLast
}

// Run drains the channel until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-d.ch:
			d.mu.Lock()
			d.last = s
			d.hasLast = true
			obs := d.observers
			d.mu.Unlock()
			for _, o := range obs {
				o.Observe(s)
			}
		}
	}
}
