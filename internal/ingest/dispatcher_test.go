package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"printlapse/internal/logger"
	"printlapse/internal/models"
)

type recordingObserver struct {
	mu      sync.Mutex
	samples []models.TelemetrySample
}

func (r *recordingObserver) Observe(s models.TelemetrySample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *recordingObserver) seen() []models.TelemetrySample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TelemetrySample(nil), r.samples...)
}

func waitForSamples(t *testing.T, r *recordingObserver, want int) []models.TelemetrySample {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := r.seen(); len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d samples, have %d", want, len(r.seen()))
	return nil
}

func TestDispatcher_FanOutPreservesOrder(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(logger.Get(logger.ErrorLevel))
	a := &recordingObserver{}
	b := &recordingObserver{}
	d.Register(a)
	d.Register(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	for i := 1; i <= 5; i++ {
		d.Push(models.TelemetrySample{Percent: float64(i * 10), State: models.JobPrinting})
	}

	for _, obs := range []*recordingObserver{a, b} {
		got := waitForSamples(t, obs, 5)
		for i, s := range got {
			if want := float64((i + 1) * 10); s.Percent != want {
				t.Fatalf("sample %d: percent %g, want %g", i, s.Percent, want)
			}
		}
	}
}

func TestDispatcher_PushNeverBlocks(t *testing.T) {
	t.Parallel()

	// no Run loop draining: pushes beyond the buffer must drop, not block
	d := NewDispatcher(logger.Get(logger.ErrorLevel))

	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultBuffer*2; i++ {
			d.Push(models.TelemetrySample{Percent: float64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("push blocked on a full buffer")
	}
}

func TestDispatcher_LastTracksDispatchedSample(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(logger.Get(logger.ErrorLevel))
	if _, ok := d.Last(); ok {
		t.Fatalf("no sample dispatched yet")
	}

	obs := &recordingObserver{}
	d.Register(obs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Push(models.TelemetrySample{Percent: 42, State: models.JobPrinting})
	waitForSamples(t, obs, 1)

	last, ok := d.Last()
	if !ok || last.Percent != 42 {
		t.Fatalf("Last() = %+v, %t", last, ok)
	}
}
