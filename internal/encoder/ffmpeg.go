package encoder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// FFmpeg drives the external ffmpeg binary through its concat demuxer, so
// the ordered frame list (including the repeated trailing frame) maps
// directly onto the encoded stream.
type FFmpeg struct {
	binary string
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{binary: "ffmpeg"}
}

// Encode renders the ordered frame paths at the given fps into outputPath.
// The frame list may repeat entries; repeats become held frames.
func (f *FFmpeg) Encode(ctx context.Context, framePaths []string, fps float64, codec, outputPath string) error {
	if len(framePaths) == 0 {
		return fmt.Errorf("empty frame list")
	}
	if fps < 1 {
		return fmt.Errorf("fps %g below 1", fps)
	}
	if codec == "" {
		codec = "libx264"
	}

	listPath, err := writeConcatList(framePaths, outputPath)
	if err != nil {
		return err
	}
	defer os.Remove(listPath)

	cmd := exec.CommandContext(ctx, f.binary,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-r", fmt.Sprintf("%g", fps),
		"-i", listPath,
		"-c:v", codec,
		"-pix_fmt", "yuv420p",
		"-crf", "23",
		outputPath,
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w\noutput:\n%s", err, string(out))
	}
	return nil
}

// writeConcatList emits the ffmpeg concat demuxer file next to the output.
func writeConcatList(framePaths []string, outputPath string) (string, error) {
	var b strings.Builder
	for _, p := range framePaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("frame path: %w", err)
		}
		// concat demuxer quoting: single quotes with '\'' escapes
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}

	listPath := outputPath + ".frames.txt"
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write frame list: %w", err)
	}
	return listPath, nil
}
