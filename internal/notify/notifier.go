package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"printlapse/internal/config"
	"printlapse/internal/logger"
	"printlapse/internal/models"
	"printlapse/internal/settings"
	"printlapse/internal/trigger"
)

// MessageKind tags what the gateway should deliver.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindPhoto MessageKind = "photo"
	KindVideo MessageKind = "video"
)

// Message is one outbound alert for the messaging gateway.
type Message struct {
	ID              string      `json:"id"`
	Kind            MessageKind `json:"kind"`
	Recipient       string      `json:"recipient"`
	Silent          bool        `json:"silent"`
	ExtraRecipients []string    `json:"extra_recipients,omitempty"`
	Text            string      `json:"text"`
	Photo           []byte      `json:"photo,omitempty"`
	FilePath        string      `json:"file_path,omitempty"`
}

// Messenger is the chat/command bridge's outbound side.
type Messenger interface {
	Send(ctx context.Context, m Message) error
}

// FrameSource supplies a one-off frame for photo notifications; the frame
// is sent, never persisted to the session store.
type FrameSource interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

const sendTimeout = 30 * time.Second

// Notifier consumes the telemetry stream through its own trigger
// accumulators (state independent from the timelapse ones) and forwards
// progress alerts. Time-based rules keep firing while the job is paused.
type Notifier struct {
	store     *settings.Store
	messenger Messenger
	frames    FrameSource
	log       *logger.Logger

	recipient string
	groups    []string
	withPhoto bool
	silent    bool

	mu        sync.Mutex
	percent   *trigger.Accumulator
	height    *trigger.Accumulator
	heartbeat *trigger.Accumulator
	lastState models.JobState
}

func NewNotifier(cfg *config.Config, store *settings.Store, messenger Messenger, frames FrameSource, log *logger.Logger) *Notifier {
	nt := store.Notifications()
	return &Notifier{
		store:     store,
		messenger: messenger,
		frames:    frames,
		log:       log,
		recipient: cfg.Notifications.Recipient,
		groups:    cfg.Notifications.Groups,
		withPhoto: cfg.Notifications.WithPhoto,
		silent:    cfg.UI.SilentProgress,
		percent:   trigger.New(trigger.Spec{Kind: trigger.KindPercent, Interval: nt.Percent}),
		height:    trigger.New(trigger.Spec{Kind: trigger.KindHeight, Interval: nt.Height}),
		heartbeat: trigger.New(trigger.Spec{Kind: trigger.KindTime, Interval: float64(nt.Time)}),
	}
}

// Observe feeds one telemetry sample. Fired rules compose a single message;
// delivery happens on a separate goroutine so the telemetry path never
// blocks on the gateway.
func (n *Notifier) Observe(s models.TelemetrySample) {
	n.mu.Lock()
	if s.State == models.JobPrinting && !n.lastState.Active() {
		// fresh job: re-anchor so the previous job's progress cannot fire
		n.percent.Rebase(s)
		n.height.Rebase(s)
		n.heartbeat.Rebase(s)
	}
	n.lastState = s.State
	n.mu.Unlock()

	if !s.State.Active() {
		return
	}

	var lines []string
	if n.percent.Observe(s) {
		lines = append(lines, fmt.Sprintf("Printed %.0f%%", s.Percent))
	}
	if n.height.Observe(s) {
		lines = append(lines, fmt.Sprintf("Printed %.1fmm", s.HeightMM))
	}
	if n.heartbeat.Observe(s) && len(lines) == 0 {
		lines = append(lines, heartbeatLine(s))
	}
	if len(lines) == 0 {
		return
	}

	if eta := etaLine(s); eta != "" {
		lines = append(lines, eta)
	}
	go n.deliver(strings.Join(lines, "\n"))
}

// Override parses a notification params payload, atomically replaces the
// section and rebases the accumulators at the given sample. A malformed
// payload changes nothing.
func (n *Notifier) Override(payload string, s models.TelemetrySample) (string, error) {
	cur := n.store.Notifications()
	next, err := settings.ParseNotificationsOverride(cur, payload)
	if err != nil {
		return "", err
	}
	n.store.ReplaceNotifications(next)
	n.percent.Override(trigger.Spec{Kind: trigger.KindPercent, Interval: next.Percent}, s)
	n.height.Override(trigger.Spec{Kind: trigger.KindHeight, Interval: next.Height}, s)
	n.heartbeat.Override(trigger.Spec{Kind: trigger.KindTime, Interval: float64(next.Time)}, s)
	return settings.FormatNotifications(next), nil
}

// SendText pushes a plain status/error line to the operator.
func (n *Notifier) SendText(ctx context.Context, text string, silent bool) error {
	return n.messenger.Send(ctx, Message{
		ID:              uuid.NewString(),
		Kind:            KindText,
		Recipient:       n.recipient,
		Silent:          silent,
		ExtraRecipients: n.groups,
		Text:            text,
	})
}

// SendVideo pushes a rendered timelapse file reference to the operator.
func (n *Notifier) SendVideo(ctx context.Context, path, caption string) error {
	return n.messenger.Send(ctx, Message{
		ID:              uuid.NewString(),
		Kind:            KindVideo,
		Recipient:       n.recipient,
		Silent:          n.silent,
		ExtraRecipients: n.groups,
		Text:            caption,
		FilePath:        path,
	})
}

func (n *Notifier) deliver(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	msg := Message{
		ID:              uuid.NewString(),
		Kind:            KindText,
		Recipient:       n.recipient,
		Silent:          n.silent,
		ExtraRecipients: n.groups,
		Text:            text,
	}
	if n.withPhoto && n.frames != nil {
		if photo, err := n.frames.Snapshot(ctx); err != nil {
			n.log.Warnw("notification_photo_failed", "err", err)
		} else {
			msg.Kind = KindPhoto
			msg.Photo = photo
		}
	}
	if err := n.messenger.Send(ctx, msg); err != nil {
		n.log.Errorw("notification_send_failed", "err", err, "kind", msg.Kind)
	}
}

func heartbeatLine(s models.TelemetrySample) string {
	verb := "Printing"
	if s.State == models.JobPaused {
		verb = "Paused"
	}
	return fmt.Sprintf("%s for %s, %.0f%% done", verb, formatDuration(s.ElapsedSec), s.Percent)
}

// etaLine extrapolates remaining time from progress so far.
func etaLine(s models.TelemetrySample) string {
	if s.Percent <= 0 || s.Percent >= 100 || s.ElapsedSec <= 0 {
		return ""
	}
	remaining := s.ElapsedSec * (100 - s.Percent) / s.Percent
	return fmt.Sprintf("Estimated time left: %s", formatDuration(remaining))
}

func formatDuration(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Minute)
	if d < time.Minute {
		return "less than a minute"
	}
	return d.String()
}
