package trigger

import (
	"testing"
	"time"

	"printlapse/internal/models"
)

func heightSample(t time.Time, mm float64) models.TelemetrySample {
	return models.TelemetrySample{Timestamp: t, HeightMM: mm, State: models.JobPrinting}
}

func TestAccumulator_EachCrossingFiresExactlyOnce(t *testing.T) {
	t.Parallel()

	a := New(Spec{Kind: KindHeight, Interval: 2})
	base := time.Now()

	// 0.0 .. 10.0 in 0.1mm steps: multiples 2,4,6,8,10 must each fire once.
	fired := 0
	for mm := 0.0; mm <= 10.05; mm += 0.1 {
		if a.Observe(heightSample(base, mm)) {
			fired++
		}
	}
	if fired != 5 {
		t.Fatalf("expected 5 fires for 5 crossings, got %d", fired)
	}
}

func TestAccumulator_ZeroIntervalDisables(t *testing.T) {
	t.Parallel()

	a := New(Spec{Kind: KindPercent, Interval: 0})
	base := time.Now()
	for p := 0.0; p <= 100; p += 1 {
		if a.Observe(models.TelemetrySample{Timestamp: base, Percent: p}) {
			t.Fatalf("disabled trigger fired at %.0f%%", p)
		}
	}
}

func TestAccumulator_PercentCrossing(t *testing.T) {
	t.Parallel()

	a := New(Spec{Kind: KindPercent, Interval: 5})
	base := time.Now()

	cases := []struct {
		percent float64
		want    bool
	}{
		{1, false},
		{4, false},
		{5, true},
		{6, false},
		{9, false},
		{12, true}, // skipped over 10, single fire for the crossing
		{13, false},
	}
	for _, tc := range cases {
		got := a.Observe(models.TelemetrySample{Timestamp: base, Percent: tc.percent})
		if got != tc.want {
			t.Fatalf("percent=%.0f: fired=%v, want %v", tc.percent, got, tc.want)
		}
	}
}

func TestAccumulator_HeightDropRebasesWithoutFiring(t *testing.T) {
	t.Parallel()

	a := New(Spec{Kind: KindHeight, Interval: 1})
	base := time.Now()

	if !a.Observe(heightSample(base, 5.0)) {
		t.Fatalf("expected fire at 5.0mm")
	}
	// New job starts near zero: must rebase silently, then fire on the next crossing.
	if a.Observe(heightSample(base, 0.2)) {
		t.Fatalf("drop below last height must not fire")
	}
	if !a.Observe(heightSample(base, 1.1)) {
		t.Fatalf("expected fire after rebase at 1.1mm")
	}
}

func TestAccumulator_TimeTriggerUnaffectedByPause(t *testing.T) {
	t.Parallel()

	a := New(Spec{Kind: KindTime, Interval: 60})
	start := time.Now()

	// First sample anchors the clock.
	if a.Observe(models.TelemetrySample{Timestamp: start, State: models.JobPrinting}) {
		t.Fatalf("anchor sample must not fire")
	}

	// Job pauses; elapsed_s freezes but wall clock keeps moving.
	paused := models.TelemetrySample{Timestamp: start.Add(30 * time.Second), ElapsedSec: 30, State: models.JobPaused}
	if a.Observe(paused) {
		t.Fatalf("fired before the interval elapsed")
	}
	paused.Timestamp = start.Add(61 * time.Second)
	if !a.Observe(paused) {
		t.Fatalf("time trigger must keep firing during a paused job")
	}
	// Cadence continues from the fire, not from the pause edge.
	paused.Timestamp = start.Add(90 * time.Second)
	if a.Observe(paused) {
		t.Fatalf("fired again before a full interval passed")
	}
	paused.Timestamp = start.Add(122 * time.Second)
	if !a.Observe(paused) {
		t.Fatalf("expected fire one interval after the previous one")
	}
}

func TestAccumulator_OverrideRebasesToCurrentSample(t *testing.T) {
	t.Parallel()

	a := New(Spec{Kind: KindHeight, Interval: 10})
	base := time.Now()

	a.Observe(heightSample(base, 3.0))

	// Tighten the interval mid-print at 7mm. Multiples of 1mm below 7 must
	// not fire retroactively.
	a.Override(Spec{Kind: KindHeight, Interval: 1}, heightSample(base, 7.0))
	if a.Observe(heightSample(base, 7.3)) {
		t.Fatalf("override must not fire retroactively")
	}
	if !a.Observe(heightSample(base, 8.0)) {
		t.Fatalf("expected fire at the first crossing after override")
	}
}
