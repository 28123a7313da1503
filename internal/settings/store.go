package settings

import (
	"sync"

	"printlapse/internal/config"
)

// Timelapse is the live, runtime-mutable render/capture parameter section.
type Timelapse struct {
	Enabled           bool
	ManualMode        bool
	Height            float64 // mm between captures, 0 disables
	Time              int     // seconds between captures, 0 disables
	TargetFPS         int
	MinLapseDuration  int // seconds, 0 unset
	MaxLapseDuration  int // seconds, 0 unset
	LastFrameDuration int // seconds of trailing-frame hold
}

// Notifications is the live, runtime-mutable notification rule section.
type Notifications struct {
	Percent float64 // %, 0 disables
	Height  float64 // mm, 0 disables
	Time    int     // seconds, 0 disables
}

// Store is the process-wide holder of runtime-overridable trigger and
// render parameters. It hands out value snapshots and replaces whole
// sections atomically; nothing here is persisted, a restart returns to the
// file-loaded defaults.
type Store struct {
	mu sync.RWMutex
	tl Timelapse
	nt Notifications
}

// NewStore seeds the store from the file-loaded configuration.
func NewStore(cfg *config.Config) *Store {
	return &Store{
		tl: Timelapse{
			Enabled:           cfg.Timelapse.Enabled,
			ManualMode:        cfg.Timelapse.ManualMode,
			Height:            cfg.Timelapse.Height,
			Time:              cfg.Timelapse.Time,
			TargetFPS:         cfg.Timelapse.TargetFPS,
			MinLapseDuration:  cfg.Timelapse.MinLapseDuration,
			MaxLapseDuration:  cfg.Timelapse.MaxLapseDuration,
			LastFrameDuration: cfg.Timelapse.LastFrameDuration,
		},
		nt: Notifications{
			Percent: float64(cfg.Notifications.Percent),
			Height:  cfg.Notifications.Height,
			Time:    cfg.Notifications.Time,
		},
	}
}

// Timelapse returns a read-only snapshot of the timelapse section.
func (s *Store) Timelapse() Timelapse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tl
}

// Notifications returns a read-only snapshot of the notification section.
func (s *Store) Notifications() Notifications {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nt
}

// ReplaceTimelapse swaps the timelapse section in one step.
func (s *Store) ReplaceTimelapse(t Timelapse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tl = t
}

// ReplaceNotifications swaps the notification section in one step.
func (s *Store) ReplaceNotifications(n Notifications) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nt = n
}
