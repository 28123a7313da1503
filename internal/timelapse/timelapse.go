package timelapse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"printlapse/internal/config"
	"printlapse/internal/frames"
	"printlapse/internal/logger"
	"printlapse/internal/models"
	"printlapse/internal/settings"
	"printlapse/internal/trigger"
)

// Collaborator ports. Concrete implementations live in internal/camera,
// internal/moonraker and internal/encoder.

// Camera acquires one raw frame with the transform applied.
type Camera interface {
	Enabled() bool
	Frame(ctx context.Context, rotate int, flipH, flipV bool) ([]byte, error)
}

// Power toggles a named power device (the chamber light).
type Power interface {
	SetPower(ctx context.Context, device string, on bool) error
}

// Controller runs a print-controller command (the post-render hook).
type Controller interface {
	RunCommand(ctx context.Context, script string) error
}

// Encoder turns an ordered frame list into a video file.
type Encoder interface {
	Encode(ctx context.Context, framePaths []string, fps float64, codec, outputPath string) error
}

// Reporter pushes render outcomes to the operator.
type Reporter interface {
	SendText(ctx context.Context, text string, silent bool) error
	SendVideo(ctx context.Context, path, caption string) error
}

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrRenderBusy        = errors.New("a render for this session is already running")
	ErrNoSession         = errors.New("no session, start one first")
	ErrCaptureInFlight   = errors.New("a capture is already in flight")
)

type session struct {
	id         string
	name       string
	dirName    string
	frameCount int
	manualMode bool
	startedAt  time.Time
}

// Service owns the per-job timelapse session lifecycle
// (Idle/Running/Paused/Stopped/Rendering), decides when automatic captures
// fire and runs renders as independent tasks so the telemetry path is never
// stalled by them.
type Service struct {
	store    *settings.Store
	frames   frames.Repo
	camera   Camera
	power    Power
	ctrl     Controller
	encoder  Encoder
	reporter Reporter
	log      *logger.Logger

	camCfg         config.Camera
	lightDevice    string
	readyDir       string
	cleanup        bool
	codec          string
	autoRender     bool
	afterRenderCmd string
	sendFinished   bool
	silentProgress bool

	mu       sync.Mutex
	state    models.SessionState
	sess     *session
	lastJob  models.JobState
	height   *trigger.Accumulator
	timeTrig *trigger.Accumulator

	capturing    atomic.Bool
	rendering    atomic.Bool
	settleCancel context.CancelFunc
}

func NewService(cfg *config.Config, store *settings.Store, repo frames.Repo, cam Camera, power Power, ctrl Controller, enc Encoder, rep Reporter, log *logger.Logger) *Service {
	tl := store.Timelapse()
	return &Service{
		store:          store,
		frames:         repo,
		camera:         cam,
		power:          power,
		ctrl:           ctrl,
		encoder:        enc,
		reporter:       rep,
		log:            log,
		camCfg:         cfg.Camera,
		lightDevice:    cfg.Bot.LightDevice,
		readyDir:       cfg.Timelapse.ReadyDir,
		cleanup:        cfg.Timelapse.Cleanup,
		codec:          cfg.Timelapse.Codec,
		autoRender:     cfg.Timelapse.AutoRender,
		afterRenderCmd: cfg.Timelapse.AfterRenderCommand,
		sendFinished:   cfg.Timelapse.SendFinishedLapse,
		silentProgress: cfg.UI.SilentProgress,
		state:          models.SessionIdle,
		height:         trigger.New(trigger.Spec{Kind: trigger.KindHeight, Interval: tl.Height}),
		timeTrig:       trigger.New(trigger.Spec{Kind: trigger.KindTime, Interval: float64(tl.Time)}),
	}
}

// State returns the current lifecycle state.
func (s *Service) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Session returns a snapshot for the status surface.
func (s *Service) Session() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := models.Session{State: s.state, ManualMode: s.store.Timelapse().ManualMode}
	if s.sess != nil {
		snap.ID = s.sess.id
		snap.Name = s.sess.name
		snap.FrameCount = s.sess.frameCount
		snap.Dir = s.frames.Dir(s.sess.dirName)
		snap.StartedAt = s.sess.startedAt
	}
	return snap
}

// Rendering reports whether a render task is active.
func (s *Service) Rendering() bool {
	return s.rendering.Load()
}

// Start opens a fresh session: allowed from Idle and Stopped. The previous
// session's frames are cleared and the frame counter restarts at zero.
func (s *Service) Start(jobName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != models.SessionIdle && s.state != models.SessionStopped {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, s.state)
	}

	id := uuid.NewString()
	name := sanitizeName(jobName)
	sess := &session{
		id:         id,
		name:       name,
		dirName:    fmt.Sprintf("%s_%s", name, id[:8]),
		manualMode: s.store.Timelapse().ManualMode,
		startedAt:  time.Now(),
	}
	if _, err := s.frames.Begin(sess.dirName); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	// Drop the old session's frames so the aborted run cannot leak into
	// the new lapse.
	if s.sess != nil && s.sess.dirName != sess.dirName {
		if err := s.frames.Clear(s.sess.dirName); err != nil {
			s.log.Warnw("stale_session_cleanup_failed", "err", err, "session", s.sess.id)
		}
	}

	s.sess = sess
	s.state = models.SessionRunning
	s.log.Infow("session_started", "session", sess.id, "name", sess.name)
	return nil
}

// Pause suspends automatic captures; Running only.
func (s *Service) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.SessionRunning {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, s.state)
	}
	s.state = models.SessionPaused
	return nil
}

// Resume re-enables automatic captures; Paused only.
func (s *Service) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.SessionPaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, s.state)
	}
	s.state = models.SessionRunning
	return nil
}

// Stop closes the capture phase and cancels a capture still waiting out its
// settle delay. Only a Stopped session can be rendered.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != models.SessionRunning && s.state != models.SessionPaused {
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, s.state)
	}
	s.state = models.SessionStopped
	if s.settleCancel != nil {
		s.settleCancel()
		s.settleCancel = nil
	}
	return nil
}

// Photo takes one explicit frame into the current session, regardless of
// manual mode. It needs a session to keep the gapless sequence invariant.
func (s *Service) Photo(ctx context.Context) error {
	s.mu.Lock()
	if s.sess == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.state == models.SessionRendering {
		s.mu.Unlock()
		return fmt.Errorf("%w: photo while rendering", ErrInvalidTransition)
	}
	s.mu.Unlock()
	return s.capture(ctx, true)
}

// Create starts the render task for a Stopped session. The render runs on
// its own goroutine; a second create while it is active is rejected as
// busy, never queued.
func (s *Service) Create(ctx context.Context) error {
	s.mu.Lock()
	if s.sess == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.rendering.Load() {
		s.mu.Unlock()
		return ErrRenderBusy
	}
	if s.state != models.SessionStopped {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: create requires a stopped session, state is %s", ErrInvalidTransition, st)
	}
	sess := s.sess
	s.state = models.SessionRendering
	s.rendering.Store(true)
	s.mu.Unlock()

	go s.runRender(sess)
	return nil
}

// Observe feeds one telemetry sample: drives the job-state edges and the
// automatic capture triggers. It never blocks on capture or render work.
func (s *Service) Observe(sample models.TelemetrySample) {
	tl := s.store.Timelapse()

	s.mu.Lock()
	prev := s.lastJob
	s.lastJob = sample.State
	s.mu.Unlock()

	s.handleJobEdge(prev, sample, tl)

	if !tl.Enabled || tl.ManualMode {
		return
	}
	if s.State() != models.SessionRunning {
		return
	}

	heightFired := s.height.Observe(sample)
	timeFired := s.timeTrig.Observe(sample)
	if heightFired || timeFired {
		go func() {
			if err := s.capture(context.Background(), false); err != nil && !errors.Is(err, ErrCaptureInFlight) {
				s.log.Warnw("auto_capture_failed", "err", err)
			}
		}()
	}
}

// handleJobEdge maps print-controller state changes onto session commands.
func (s *Service) handleJobEdge(prev models.JobState, sample models.TelemetrySample, tl settings.Timelapse) {
	switch {
	case sample.State == models.JobPrinting && !prev.Active():
		if !tl.Enabled || tl.ManualMode {
			return
		}
		s.height.Rebase(sample)
		s.timeTrig.Rebase(sample)
		if err := s.Start(sample.JobName); err != nil {
			s.log.Warnw("auto_start_failed", "err", err)
		}

	case sample.State == models.JobPrinting && prev == models.JobPaused:
		if s.State() == models.SessionPaused {
			_ = s.Resume()
		}

	case sample.State == models.JobPaused && prev == models.JobPrinting:
		if s.State() == models.SessionRunning {
			_ = s.Pause()
		}

	case sample.State.Terminal() && prev.Active():
		st := s.State()
		if st == models.SessionRunning || st == models.SessionPaused {
			_ = s.Stop()
		}
		if sample.State == models.JobComplete && tl.Enabled && s.autoRender {
			if err := s.Create(context.Background()); err != nil {
				s.log.Warnw("auto_render_rejected", "err", err)
			}
		}
	}
}

// Override parses a timelapse params payload, atomically replaces the
// section and rebases the trigger accumulators at the given sample. A
// malformed payload changes nothing.
func (s *Service) Override(payload string, sample models.TelemetrySample) (string, error) {
	cur := s.store.Timelapse()
	next, err := settings.ParseTimelapseOverride(cur, payload)
	if err != nil {
		return "", err
	}
	s.store.ReplaceTimelapse(next)
	s.height.Override(trigger.Spec{Kind: trigger.KindHeight, Interval: next.Height}, sample)
	s.timeTrig.Override(trigger.Spec{Kind: trigger.KindTime, Interval: float64(next.Time)}, sample)
	return settings.FormatTimelapse(next), nil
}

func sanitizeName(jobName string) string {
	name := strings.TrimSuffix(jobName, ".gcode")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, name)
	if name == "" || name == "." {
		return "timelapse"
	}
	return name
}
