package moonraker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const requestTimeout = 15 * time.Second

// Client is the thin REST client for the print controller's machine API.
// It covers the two calls this engine needs: toggling a power device (the
// chamber light) and running a controller command after a render.
//
// External invariant, deliberately undocumented by the controller: the light
// device's state is only reliably known here if this engine is its sole
// toggler during a session. If an operator or controller macro also switches
// the light mid-session, captures may race the illumination state.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// SetPower switches a named power device on or off.
func (c *Client) SetPower(ctx context.Context, device string, on bool) error {
	action := "off"
	if on {
		action = "on"
	}
	endpoint := fmt.Sprintf("%s/machine/device_power/device?device=%s&action=%s",
		c.baseURL, url.QueryEscape(device), action)
	return c.post(ctx, endpoint, fmt.Sprintf("power device %s %s", device, action))
}

// RunCommand submits a controller command (a gcode script), used for the
// configured post-render hook.
func (c *Client) RunCommand(ctx context.Context, script string) error {
	endpoint := fmt.Sprintf("%s/printer/gcode/script?script=%s", c.baseURL, url.QueryEscape(script))
	return c.post(ctx, endpoint, "run command")
}

func (c *Client) post(ctx context.Context, endpoint, what string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s: unexpected status %s", what, resp.Status)
	}
	return nil
}
