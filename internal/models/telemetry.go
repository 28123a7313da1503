package models

import "time"

// JobState is the print-controller job state carried by telemetry.
type JobState string

const (
	JobPrinting JobState = "printing"
	JobPaused   JobState = "paused"
	JobComplete JobState = "complete"
	JobCanceled JobState = "canceled"
	JobError    JobState = "error"
)

// Active reports whether the job still occupies the printer.
func (s JobState) Active() bool {
	return s == JobPrinting || s == JobPaused
}

// Terminal reports whether the job has reached a final state.
func (s JobState) Terminal() bool {
	return s == JobComplete || s == JobCanceled || s == JobError
}

// TelemetrySample is one observation of job progress. Produced by an ingest
// source at sample-arrival cadence; read-only downstream.
type TelemetrySample struct {
	Timestamp  time.Time `json:"timestamp"`
	HeightMM   float64   `json:"height_mm"`
	Percent    float64   `json:"percent"`
	ElapsedSec float64   `json:"elapsed_s"`
	State      JobState  `json:"job_state"`
	JobName    string    `json:"job_name,omitempty"`
}
