package trigger

import (
	"math"
	"sync"
	"time"

	"printlapse/internal/models"
)

// Kind selects which telemetry scalar an accumulator watches.
type Kind string

const (
	KindPercent Kind = "percent"
	KindHeight  Kind = "height"
	KindTime    Kind = "time"
)

// Spec configures one accumulator. Interval is in the unit of the kind
// (percent, millimeters, or seconds); an interval <= 0 disables firing.
type Spec struct {
	Kind     Kind
	Interval float64
}

// Accumulator converts a monotonically evolving scalar into discrete fired
// events, exactly once per interval crossing. It is safe for concurrent use.
//
// For percent/height kinds a crossing is detected with the floor rule:
// fire iff floor(cur/interval) > floor(lastFired/interval), and lastFired
// advances only on fire. The time kind compares sample timestamps, so its
// cadence is unaffected by job pauses: a paused job keeps producing
// heartbeat fires on schedule.
type Accumulator struct {
	mu          sync.Mutex
	spec        Spec
	lastValue   float64
	lastFiredAt time.Time
}

func New(spec Spec) *Accumulator {
	return &Accumulator{spec: spec}
}

// Spec returns the active spec.
func (a *Accumulator) Spec() Spec {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.spec
}

// Observe feeds one sample and reports whether the trigger fired.
func (a *Accumulator) Observe(s models.TelemetrySample) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	iv := a.spec.Interval
	if iv <= 0 {
		return false
	}

	if a.spec.Kind == KindTime {
		if a.lastFiredAt.IsZero() {
			a.lastFiredAt = s.Timestamp
			return false
		}
		if s.Timestamp.Sub(a.lastFiredAt) >= secs(iv) {
			a.lastFiredAt = s.Timestamp
			return true
		}
		return false
	}

	cur := a.value(s)

	// The signal fell back by more than a full interval: a fresh job or a
	// transient dip (z-hop). Re-anchor without firing.
	if cur < a.lastValue-iv {
		a.lastValue = cur
		return false
	}

	if math.Floor(cur/iv) > math.Floor(a.lastValue/iv) {
		a.lastValue = cur
		return true
	}
	return false
}

// Override atomically replaces the spec and rebases the accumulator to the
// sample in effect at override time, so the new interval never fires
// retroactively.
func (a *Accumulator) Override(spec Spec, s models.TelemetrySample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.spec = spec
	a.rebaseLocked(s)
}

// Rebase re-anchors the accumulator at the given sample. Called when a new
// job starts so leftover state from the previous job cannot fire.
func (a *Accumulator) Rebase(s models.TelemetrySample) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rebaseLocked(s)
}

func (a *Accumulator) rebaseLocked(s models.TelemetrySample) {
	a.lastValue = a.value(s)
	a.lastFiredAt = s.Timestamp
}

func (a *Accumulator) value(s models.TelemetrySample) float64 {
	switch a.spec.Kind {
	case KindPercent:
		return s.Percent
	case KindHeight:
		return s.HeightMM
	default:
		return s.ElapsedSec
	}
}

func secs(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
