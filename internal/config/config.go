package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Telemetry source selectors for the bot section.
const (
	SourceMoonraker = "moonraker"
	SourceMQTT      = "mqtt"
	SourceSim       = "sim"
)

// Bot holds process-level options: the HTTP bridge, auth, the print
// controller endpoints and the telemetry source selection.
type Bot struct {
	Port            string `mapstructure:"port"`
	LogLevel        string `mapstructure:"log_level"`
	TelemetrySource string `mapstructure:"telemetry_source"`
	MoonrakerURL    string `mapstructure:"moonraker_url"`
	MQTTBroker      string `mapstructure:"mqtt_broker"`
	MQTTSerial      string `mapstructure:"mqtt_serial"`
	MQTTPassword    string `mapstructure:"mqtt_password"`
	LightDevice     string `mapstructure:"light_device"`
	APISecretHash   string `mapstructure:"api_secret_hash"`
	SigningKey      string `mapstructure:"signing_key"`
	GatewayURL      string `mapstructure:"gateway_url"`
}

// Camera holds frame-acquisition options.
type Camera struct {
	Enabled          bool   `mapstructure:"enabled"`
	SnapshotURL      string `mapstructure:"snapshot_url"`
	Rotate           int    `mapstructure:"rotate"` // 0, 90, 180, 270
	FlipHorizontally bool   `mapstructure:"flip_horizontally"`
	FlipVertically   bool   `mapstructure:"flip_vertically"`
	PictureQuality   int    `mapstructure:"picture_quality"` // jpeg quality 1..100
	SettleDelayMS    int    `mapstructure:"settle_delay_ms"` // wait after light-on before a frame is valid
	Timestamp        bool   `mapstructure:"timestamp"`       // draw capture time onto each frame
}

// Timelapse holds the capture/render defaults; height/time/fps/duration
// fields are runtime-overridable through the config store.
type Timelapse struct {
	Enabled            bool    `mapstructure:"enabled"`
	ManualMode         bool    `mapstructure:"manual_mode"`
	BaseDir            string  `mapstructure:"basedir"`
	ReadyDir           string  `mapstructure:"ready_dir"` // retention copy target, empty disables
	Cleanup            bool    `mapstructure:"cleanup"`
	Height             float64 `mapstructure:"height"` // mm between captures, 0 disables
	Time               int     `mapstructure:"time"`   // seconds between captures, 0 disables
	TargetFPS          int     `mapstructure:"target_fps"`
	MinLapseDuration   int     `mapstructure:"min_lapse_duration"` // seconds, 0 unset
	MaxLapseDuration   int     `mapstructure:"max_lapse_duration"` // seconds, 0 unset
	LastFrameDuration  int     `mapstructure:"last_frame_duration"`
	Codec              string  `mapstructure:"codec"`
	AutoRender         bool    `mapstructure:"auto_render"` // stop+create when the job completes
	AfterRenderCommand string  `mapstructure:"after_render_command"`
	SendFinishedLapse  bool    `mapstructure:"send_finished_lapse"`
}

// Notifications holds the progress-notification defaults; the interval
// fields are runtime-overridable through the config store.
type Notifications struct {
	Percent   int      `mapstructure:"percent"` // %, 0 disables
	Height    float64  `mapstructure:"height"`  // mm, 0 disables
	Time      int      `mapstructure:"time"`    // seconds, 0 disables
	Recipient string   `mapstructure:"recipient"`
	Groups    []string `mapstructure:"groups"`
	WithPhoto bool     `mapstructure:"with_photo"`
}

// UI holds presentation flags for outbound messages.
type UI struct {
	SilentProgress bool `mapstructure:"silent_progress"`
	SilentCommands bool `mapstructure:"silent_commands"`
	SilentStatus   bool `mapstructure:"silent_status"`
}

// Config is the full file-loaded configuration. Sections are fixed and
// enumerated; unknown keys fail the load instead of being silently accepted.
type Config struct {
	Bot           Bot           `mapstructure:"bot"`
	Camera        Camera        `mapstructure:"camera"`
	Timelapse     Timelapse     `mapstructure:"timelapse"`
	Notifications Notifications `mapstructure:"notifications"`
	UI            UI            `mapstructure:"ui"`
}

var (
	errBadRotate = errors.New("camera.rotate must be one of 0, 90, 180, 270")
	errBadSource = errors.New("bot.telemetry_source must be moonraker, mqtt or sim")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.port", "8080")
	v.SetDefault("bot.log_level", "info")
	v.SetDefault("bot.telemetry_source", SourceMoonraker)
	v.SetDefault("bot.moonraker_url", "http://localhost:7125")
	v.SetDefault("camera.enabled", true)
	v.SetDefault("camera.picture_quality", 90)
	v.SetDefault("timelapse.basedir", "/tmp/timelapse")
	v.SetDefault("timelapse.cleanup", true)
	v.SetDefault("timelapse.target_fps", 15)
	v.SetDefault("timelapse.last_frame_duration", 5)
	v.SetDefault("timelapse.codec", "libx264")
	v.SetDefault("timelapse.auto_render", true)
	v.SetDefault("timelapse.send_finished_lapse", true)
}

// Load reads <dir>/config.yml into a validated Config. Any error here is
// fatal to the process: the engine must not start on a bad config.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	// UnmarshalExact rejects keys that do not map onto the fixed sections.
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Bot.TelemetrySource {
	case SourceMoonraker, SourceMQTT, SourceSim:
	default:
		return errBadSource
	}
	switch c.Camera.Rotate {
	case 0, 90, 180, 270:
	default:
		return errBadRotate
	}
	if c.Camera.PictureQuality < 1 || c.Camera.PictureQuality > 100 {
		return fmt.Errorf("camera.picture_quality %d out of range 1..100", c.Camera.PictureQuality)
	}
	if c.Timelapse.TargetFPS < 1 {
		return fmt.Errorf("timelapse.target_fps must be >= 1, got %d", c.Timelapse.TargetFPS)
	}
	if c.Timelapse.MinLapseDuration < 0 || c.Timelapse.MaxLapseDuration < 0 || c.Timelapse.LastFrameDuration < 0 {
		return errors.New("timelapse durations must not be negative")
	}
	if c.Timelapse.Height < 0 || c.Timelapse.Time < 0 {
		return errors.New("timelapse trigger intervals must not be negative")
	}
	if c.Notifications.Percent < 0 || c.Notifications.Height < 0 || c.Notifications.Time < 0 {
		return errors.New("notification intervals must not be negative")
	}
	return nil
}
