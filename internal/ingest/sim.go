package ingest

import (
	"context"
	"fmt"
	"time"

	"printlapse/internal/logger"
	"printlapse/internal/models"
)

// ----------- Simulation constants -----------
const (
	simJobSeconds   = 300.0 // wall time of one synthetic print
	simHeightMM     = 60.0  // final object height
	simIdleSeconds  = 15.0  // gap between jobs
	simPauseAt      = 40.0  // percent at which the job pauses once
	simPauseSeconds = 20.0  // how long the pause lasts
)

// Simulator produces a synthetic print job on a timer: steady progress, one
// mid-print pause, completion, a short idle gap, then the next job. Useful
// for development without a printer and as the default telemetry source in
// a bare config.
type Simulator struct {
	sink *Dispatcher
	log  *logger.Logger
}

func NewSimulator(sink *Dispatcher, log *logger.Logger) *Simulator {
	return &Simulator{sink: sink, log: log}
}

// Run ticks at the given interval until ctx is canceled.
func (s *Simulator) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()

	jobNum := 1
	jobStart := time.Now()
	paused := false
	pausedAt := time.Time{}
	pausedTotal := 0.0

	s.log.Infow("simulator_started", "tick", tick)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			elapsed := now.Sub(jobStart).Seconds() - pausedTotal
			percent := elapsed / simJobSeconds * 100

			switch {
			case percent >= 100:
				s.sink.Push(models.TelemetrySample{
					Timestamp:  now,
					HeightMM:   simHeightMM,
					Percent:    100,
					ElapsedSec: simJobSeconds,
					State:      models.JobComplete,
					JobName:    s.jobName(jobNum),
				})
				jobNum++
				jobStart = now.Add(time.Duration(simIdleSeconds * float64(time.Second)))
				paused = false
				pausedTotal = 0

			case now.Before(jobStart):
				// idle gap between jobs, nothing to report

			case !paused && percent >= simPauseAt && percent < simPauseAt+1:
				paused = true
				pausedAt = now
				s.sink.Push(s.sample(now, elapsed, percent, models.JobPaused, jobNum))

			case paused:
				if now.Sub(pausedAt).Seconds() >= simPauseSeconds {
					paused = false
					pausedTotal += now.Sub(pausedAt).Seconds()
					s.sink.Push(s.sample(now, elapsed, percent, models.JobPrinting, jobNum))
				} else {
					s.sink.Push(s.sample(now, elapsed, percent, models.JobPaused, jobNum))
				}

			default:
				s.sink.Push(s.sample(now, elapsed, percent, models.JobPrinting, jobNum))
			}
		}
	}
}

func (s *Simulator) sample(now time.Time, elapsed, percent float64, state models.JobState, jobNum int) models.TelemetrySample {
	return models.TelemetrySample{
		Timestamp:  now,
		HeightMM:   simHeightMM * percent / 100,
		Percent:    percent,
		ElapsedSec: elapsed,
		State:      state,
		JobName:    s.jobName(jobNum),
	}
}

func (s *Simulator) jobName(n int) string {
	return fmt.Sprintf("sim_job_%03d.gcode", n)
}
