package models

import "time"

// SessionState is the timelapse session lifecycle state.
type SessionState string

const (
	SessionIdle      SessionState = "idle"
	SessionRunning   SessionState = "running"
	SessionPaused    SessionState = "paused"
	SessionStopped   SessionState = "stopped"
	SessionRendering SessionState = "rendering"
)

// Session is a snapshot of one timelapse capture lifecycle. A session is
// created on "start" and lives until the next "start" or a successful render;
// nothing about it survives a process restart.
type Session struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	State      SessionState `json:"state"`
	FrameCount int          `json:"frame_count"`
	Dir        string       `json:"dir"`
	ManualMode bool         `json:"manual_mode"`
	StartedAt  time.Time    `json:"started_at"`
}

// RenderResult describes a finished render attempt.
type RenderResult struct {
	SessionID   string    `json:"session_id"`
	OutputPath  string    `json:"output_path"`
	ComputedFPS float64   `json:"computed_fps"`
	FrameCount  int       `json:"frame_count"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Status is the live snapshot exposed over the HTTP bridge and the
// websocket stream.
type Status struct {
	Session    Session         `json:"session"`
	LastSample TelemetrySample `json:"last_sample"`
	Rendering  bool            `json:"rendering"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
