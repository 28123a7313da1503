package camera

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"printlapse/internal/config"
)

const snapshotTimeout = 10 * time.Second

// Client acquires frames from an HTTP snapshot endpoint (the common
// webcam-streamer interface next to a print controller) and applies the
// configured rotate/flip transform before handing the frame on.
type Client struct {
	cfg  config.Camera
	http *http.Client
}

func NewClient(cfg config.Camera) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: snapshotTimeout},
	}
}

// Enabled reports whether a camera is configured at all.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.cfg.SnapshotURL != ""
}

// Frame fetches one snapshot and returns it as JPEG bytes with the given
// rotation (degrees, clockwise) and flips applied.
func (c *Client) Frame(ctx context.Context, rotate int, flipH, flipV bool) ([]byte, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("camera is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.SnapshotURL, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot fetch: unexpected status %s", resp.Status)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("snapshot read: %w", err)
	}

	if rotate == 0 && !flipH && !flipV && !c.cfg.Timestamp {
		return raw, nil
	}
	return c.process(raw, rotate, flipH, flipV)
}

// Snapshot takes one frame with the client's own configured transform,
// for callers that attach a photo without caring about orientation knobs.
func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	return c.Frame(ctx, c.cfg.Rotate, c.cfg.FlipHorizontally, c.cfg.FlipVertically)
}

func (c *Client) process(raw []byte, rotate int, flipH, flipV bool) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	out := Transform(img, rotate, flipH, flipV)
	if c.cfg.Timestamp {
		StampTime(out, time.Now())
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: c.cfg.PictureQuality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
