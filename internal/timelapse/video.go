package timelapse

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"printlapse/internal/models"
)

// CalcFPS derives the playback rate for a finished session from the frame
// count and the duration bounds. The target rate wins unless it would make
// the video shorter than min or longer than max; either bound stretches or
// compresses the rate, floored at 1 fps.
func CalcFPS(frameCount int, targetFPS, minDuration, maxDuration float64) float64 {
	fps := targetFPS
	duration := float64(frameCount) / targetFPS
	if minDuration > 0 && duration < minDuration {
		fps = float64(frameCount) / minDuration
	} else if maxDuration > 0 && duration > maxDuration {
		fps = float64(frameCount) / maxDuration
	}
	if fps < 1 {
		fps = 1
	}
	return fps
}

// HoldFrames returns how many repetitions of the final frame implement the
// last-frame hold at the given rate.
func HoldFrames(fps float64, lastFrameDuration int) int {
	if lastFrameDuration <= 0 {
		return 0
	}
	return int(math.Round(fps * float64(lastFrameDuration)))
}

// runRender executes one render task to completion. Success sends the
// video and returns the machine to Idle; failure returns it to Stopped
// with every frame retained, whatever the cleanup setting says.
func (s *Service) runRender(sess *session) {
	ctx := context.Background()
	started := time.Now()

	res, err := s.render(ctx, sess)

	s.mu.Lock()
	if err != nil {
		s.state = models.SessionStopped
	} else {
		s.state = models.SessionIdle
		s.sess = nil
	}
	s.rendering.Store(false)
	s.mu.Unlock()

	if err != nil {
		s.log.Errorw("render_failed", "err", err, "session", sess.id)
		if s.reporter != nil {
			_ = s.reporter.SendText(ctx, fmt.Sprintf("Timelapse assembly for %s failed: %v", sess.name, err), false)
		}
		return
	}

	s.log.Infow("render_finished", "session", sess.id, "output", res.OutputPath,
		"fps", res.ComputedFPS, "frames", res.FrameCount, "took", time.Since(started))
	if s.reporter == nil {
		return
	}
	if s.sendFinished {
		if err := s.reporter.SendVideo(ctx, res.OutputPath, fmt.Sprintf("Timelapse of %s", sess.name)); err != nil {
			s.log.Warnw("render_video_send_failed", "err", err)
		}
	} else {
		_ = s.reporter.SendText(ctx, fmt.Sprintf("Timelapse of %s finished: %s", sess.name, res.OutputPath), s.silentProgress)
	}
}

func (s *Service) render(ctx context.Context, sess *session) (models.RenderResult, error) {
	tl := s.store.Timelapse()

	paths, err := s.frames.List(sess.dirName)
	if err != nil {
		return models.RenderResult{}, fmt.Errorf("list frames: %w", err)
	}
	if len(paths) == 0 {
		return models.RenderResult{}, fmt.Errorf("no frames captured for %s", sess.name)
	}
	frameCount := len(paths)

	fps := CalcFPS(frameCount, float64(tl.TargetFPS), float64(tl.MinLapseDuration), float64(tl.MaxLapseDuration))

	// last-frame hold: repeat the trailing frame so playback does not end
	// abruptly
	last := paths[frameCount-1]
	for i := 0; i < HoldFrames(fps, tl.LastFrameDuration); i++ {
		paths = append(paths, last)
	}

	out := s.frames.OutputPath(sess.dirName)
	if err := s.encoder.Encode(ctx, paths, fps, s.codec, out); err != nil {
		// encoder failed: delete nothing, surface the failure
		return models.RenderResult{}, fmt.Errorf("encode: %w", err)
	}

	if s.readyDir != "" {
		if err := copyFile(out, filepath.Join(s.readyDir, filepath.Base(out))); err != nil {
			s.log.Warnw("retention_copy_failed", "err", err, "session", sess.id)
		}
	}

	if s.cleanup {
		if err := s.frames.Clear(sess.dirName); err != nil {
			s.log.Warnw("frame_cleanup_failed", "err", err, "session", sess.id)
		}
	}

	if s.afterRenderCmd != "" && s.ctrl != nil {
		if err := s.ctrl.RunCommand(ctx, s.afterRenderCmd); err != nil {
			s.log.Warnw("after_render_command_failed", "err", err)
		}
	}

	return models.RenderResult{
		SessionID:   sess.id,
		OutputPath:  out,
		ComputedFPS: fps,
		FrameCount:  frameCount,
		FinishedAt:  time.Now(),
	}, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
