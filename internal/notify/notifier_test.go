package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"printlapse/internal/config"
	"printlapse/internal/logger"
	"printlapse/internal/models"
	"printlapse/internal/settings"
)

type fakeMessenger struct {
	mu   sync.Mutex
	sent []Message
}

func (m *fakeMessenger) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMessenger) messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

type fakeFrameSource struct{}

func (fakeFrameSource) Snapshot(ctx context.Context) ([]byte, error) {
	return []byte{0xff, 0xd8}, nil
}

func testConfig(mutate func(*config.Config)) *config.Config {
	cfg := &config.Config{
		Notifications: config.Notifications{
			Percent:   10,
			Height:    0,
			Time:      0,
			Recipient: "operator",
		},
	}
	if mutate != nil {
		mutate(cfg)
	}
	return cfg
}

func newTestNotifier(t *testing.T, mutate func(*config.Config)) (*Notifier, *fakeMessenger) {
	t.Helper()
	cfg := testConfig(mutate)
	m := &fakeMessenger{}
	n := NewNotifier(cfg, settings.NewStore(cfg), m, fakeFrameSource{}, logger.Get(logger.ErrorLevel))
	return n, m
}

func waitForMessages(t *testing.T, m *fakeMessenger, want int) []Message {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := m.messages(); len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages, have %d", want, len(m.messages()))
	return nil
}

func sample(state models.JobState, percent, height, elapsed float64) models.TelemetrySample {
	return models.TelemetrySample{
		Timestamp:  time.Now(),
		State:      state,
		Percent:    percent,
		HeightMM:   height,
		ElapsedSec: elapsed,
		JobName:    "benchy.gcode",
	}
}

func TestNotifier_PercentCrossingComposesMessage(t *testing.T) {
	t.Parallel()

	n, m := newTestNotifier(t, nil)

	n.Observe(sample(models.JobPrinting, 0, 0, 0))
	n.Observe(sample(models.JobPrinting, 4, 0.8, 120))
	if got := m.messages(); len(got) != 0 {
		t.Fatalf("no crossing yet, got %d messages", len(got))
	}

	n.Observe(sample(models.JobPrinting, 12, 2.4, 360))
	got := waitForMessages(t, m, 1)
	if !strings.Contains(got[0].Text, "Printed 12%") {
		t.Fatalf("message text = %q", got[0].Text)
	}
	if !strings.Contains(got[0].Text, "Estimated time left:") {
		t.Fatalf("progress message must carry the extrapolated time left, got %q", got[0].Text)
	}
	if got[0].Recipient != "operator" {
		t.Fatalf("recipient = %q", got[0].Recipient)
	}
}

func TestNotifier_CombinedRulesProduceOneMessage(t *testing.T) {
	t.Parallel()

	n, m := newTestNotifier(t, func(c *config.Config) {
		c.Notifications.Percent = 10
		c.Notifications.Height = 5
	})

	n.Observe(sample(models.JobPrinting, 0, 0, 0))
	// crosses 10% and 5mm in one sample: a single combined message
	n.Observe(sample(models.JobPrinting, 11, 5.2, 300))

	got := waitForMessages(t, m, 1)
	time.Sleep(30 * time.Millisecond)
	if final := m.messages(); len(final) != 1 {
		t.Fatalf("both rules must merge into one message, got %d", len(final))
	}
	if !strings.Contains(got[0].Text, "Printed 11%") || !strings.Contains(got[0].Text, "Printed 5.2mm") {
		t.Fatalf("combined text = %q", got[0].Text)
	}
}

func TestNotifier_HeartbeatKeepsFiringWhilePaused(t *testing.T) {
	t.Parallel()

	n, m := newTestNotifier(t, func(c *config.Config) {
		c.Notifications.Percent = 0
		c.Notifications.Time = 60
	})

	base := time.Now()
	at := func(offset time.Duration, state models.JobState) models.TelemetrySample {
		s := sample(state, 50, 10, offset.Seconds())
		s.Timestamp = base.Add(offset)
		return s
	}

	n.Observe(at(0, models.JobPrinting))
	n.Observe(at(30*time.Second, models.JobPaused))
	if got := m.messages(); len(got) != 0 {
		t.Fatalf("interval not elapsed yet, got %d messages", len(got))
	}

	// still paused past the interval: the heartbeat fires on the wall clock
	n.Observe(at(70*time.Second, models.JobPaused))
	got := waitForMessages(t, m, 1)
	if !strings.Contains(got[0].Text, "Paused for") {
		t.Fatalf("heartbeat text = %q", got[0].Text)
	}
}

func TestNotifier_InactiveJobSuppressesAlerts(t *testing.T) {
	t.Parallel()

	n, m := newTestNotifier(t, nil)

	n.Observe(sample(models.JobPrinting, 0, 0, 0))
	n.Observe(sample(models.JobComplete, 100, 50, 3600))
	// terminal samples never alert, whatever the counters say
	n.Observe(sample(models.JobComplete, 100, 50, 3600))

	time.Sleep(50 * time.Millisecond)
	if got := m.messages(); len(got) != 0 {
		t.Fatalf("terminal job must not alert, got %d messages", len(got))
	}
}

func TestNotifier_FreshJobRebasesProgress(t *testing.T) {
	t.Parallel()

	n, m := newTestNotifier(t, nil)

	// previous job ended deep into its progress
	n.Observe(sample(models.JobPrinting, 0, 0, 0))
	n.Observe(sample(models.JobPrinting, 95, 48, 7000))
	waitForMessages(t, m, 1)

	n.Observe(sample(models.JobComplete, 100, 50, 7200))
	before := len(m.messages())

	// the next job starts low: the drop must not fire a retroactive batch
	n.Observe(sample(models.JobPrinting, 2, 0.2, 30))
	time.Sleep(50 * time.Millisecond)
	if got := len(m.messages()); got != before {
		t.Fatalf("new job start must not alert, got %d extra messages", got-before)
	}

	n.Observe(sample(models.JobPrinting, 12, 2.4, 300))
	waitForMessages(t, m, before+1)
}

func TestNotifier_OverrideRejectionLeavesSettingsUntouched(t *testing.T) {
	t.Parallel()

	n, _ := newTestNotifier(t, nil)
	orig := n.store.Notifications()

	if _, err := n.Override("percent=5 bogus_key=1", sample(models.JobPrinting, 0, 0, 0)); err == nil {
		t.Fatalf("unknown key must reject the whole payload")
	}
	if got := n.store.Notifications(); got != orig {
		t.Fatalf("rejected override must not change settings: %+v", got)
	}
}

func TestNotifier_OverrideAppliesAndEchoes(t *testing.T) {
	t.Parallel()

	n, m := newTestNotifier(t, nil)

	echo, err := n.Override("percent=25 height=10", sample(models.JobPrinting, 40, 12, 600))
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	for _, want := range []string{"percent=25", "height=10", "time=0"} {
		if !strings.Contains(echo, want) {
			t.Fatalf("echo %q missing %q", echo, want)
		}
	}

	// rebased at 40%: the next fire needs the 50% boundary, not 10%
	n.Observe(sample(models.JobPrinting, 47, 13, 700))
	time.Sleep(30 * time.Millisecond)
	if got := m.messages(); len(got) != 0 {
		t.Fatalf("override must rebase, got %d messages", len(got))
	}
	n.Observe(sample(models.JobPrinting, 52, 14, 800))
	waitForMessages(t, m, 1)
}

func TestNotifier_WithPhotoAttachesFrame(t *testing.T) {
	t.Parallel()

	n, m := newTestNotifier(t, func(c *config.Config) {
		c.Notifications.WithPhoto = true
	})

	n.Observe(sample(models.JobPrinting, 0, 0, 0))
	n.Observe(sample(models.JobPrinting, 15, 3, 500))

	got := waitForMessages(t, m, 1)
	if got[0].Kind != KindPhoto || len(got[0].Photo) == 0 {
		t.Fatalf("expected a photo message, got kind %s with %d photo bytes", got[0].Kind, len(got[0].Photo))
	}
}
