package timelapse

import (
	"context"
	"fmt"
	"time"

	"printlapse/internal/models"
)

// capture runs the frame pipeline once: light on, settle, acquire,
// persist, light off. Calls are serialized per session; a call arriving
// while one is in flight is dropped with a warning rather than queued, so
// a slow camera cannot build a backlog or interleave light toggles.
//
// Failures are deliberately soft: a missed frame never changes the session
// state. When manual is set, errors also surface to the caller.
func (s *Service) capture(ctx context.Context, manual bool) error {
	if !s.capturing.CompareAndSwap(false, true) {
		s.log.Warnw("capture_dropped", "reason", "capture already in flight")
		return ErrCaptureInFlight
	}
	defer s.capturing.Store(false)

	s.mu.Lock()
	sess := s.sess
	st := s.state
	s.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}
	if !manual && st != models.SessionRunning {
		// the session left Running while this capture was queued up
		return nil
	}

	lit := s.lightOn(ctx)
	defer func() {
		if lit {
			s.lightOff()
		}
	}()

	if ok := s.settle(ctx); !ok {
		s.log.Debugw("capture_canceled_in_settle", "session", sess.id)
		return nil
	}

	frame, err := s.camera.Frame(ctx, s.camCfg.Rotate, s.camCfg.FlipHorizontally, s.camCfg.FlipVertically)
	if err != nil {
		s.log.Warnw("frame_skipped", "err", err, "session", sess.id)
		if manual {
			return fmt.Errorf("take frame: %w", err)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != sess {
		// session was replaced while acquiring; drop the stale frame
		return nil
	}
	seq := sess.frameCount
	if _, err := s.frames.Write(sess.dirName, seq, frame); err != nil {
		s.log.Errorw("frame_persist_failed", "err", err, "session", sess.id, "seq", seq)
		if manual {
			return err
		}
		return nil
	}
	// count advances only after the write landed, keeping the sequence gapless
	sess.frameCount++
	s.log.Debugw("frame_captured", "session", sess.id, "seq", seq)
	return nil
}

// settle waits out the configured delay between light-on and a valid
// frame. Stop cancels the wait; the return value says whether to proceed.
func (s *Service) settle(ctx context.Context) bool {
	delay := time.Duration(s.camCfg.SettleDelayMS) * time.Millisecond
	if delay <= 0 {
		return true
	}

	settleCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.settleCancel = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		s.settleCancel = nil
		s.mu.Unlock()
	}()

	select {
	case <-time.After(delay):
		return true
	case <-settleCtx.Done():
		return false
	}
}

// lightOn toggles the configured light device; with none configured the
// step is skipped silently. A failed toggle is logged and the capture
// proceeds with whatever light there is.
func (s *Service) lightOn(ctx context.Context) bool {
	if s.lightDevice == "" || s.power == nil {
		return false
	}
	if err := s.power.SetPower(ctx, s.lightDevice, true); err != nil {
		s.log.Warnw("light_on_failed", "err", err, "device", s.lightDevice)
		return false
	}
	return true
}

func (s *Service) lightOff() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.power.SetPower(ctx, s.lightDevice, false); err != nil {
		s.log.Warnw("light_off_failed", "err", err, "device", s.lightDevice)
	}
}
