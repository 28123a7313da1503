package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"printlapse/internal/logger"
	"printlapse/internal/models"
)

const (
	moonrakerDialTimeout = 10 * time.Second
	moonrakerRetryDelay  = 5 * time.Second
)

// Moonraker streams printer telemetry over the Moonraker websocket. It
// subscribes to the printer objects carrying job state, progress and the
// gcode Z position, merges the partial notify_status_update diffs into one
// running view and pushes a sample per update.
type Moonraker struct {
	url  string
	sink *Dispatcher
	log  *logger.Logger

	mu    sync.Mutex
	state printerState
}

type printerState struct {
	jobState models.JobState
	jobName  string
	elapsed  float64
	progress float64
	heightMM float64
}

func NewMoonraker(url string, sink *Dispatcher, log *logger.Logger) *Moonraker {
	return &Moonraker{url: url, sink: sink, log: log}
}

// WebsocketURL derives the websocket endpoint from the Moonraker HTTP base
// URL, e.g. http://printer:7125 -> ws://printer:7125/websocket.
func WebsocketURL(base string) string {
	u := strings.TrimSuffix(base, "/")
	u = strings.Replace(u, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	return u + "/websocket"
}

// Run keeps a subscription alive until ctx is canceled, reconnecting with a
// fixed delay after any connection failure.
func (m *Moonraker) Run(ctx context.Context) {
	for {
		if err := m.connectAndRead(ctx); err != nil {
			m.log.Warnw("moonraker_connection_lost", "err", err, "url", m.url)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(moonrakerRetryDelay):
		}
	}
}

func (m *Moonraker) connectAndRead(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, moonrakerDialTimeout)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, m.url, nil)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	// close the socket when ctx ends so ReadMessage unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(subscribeRequest()); err != nil {
		return err
	}
	m.log.Infow("moonraker_connected", "url", m.url)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.handleMessage(data)
	}
}

func subscribeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"method":  "printer.objects.subscribe",
		"params": map[string]any{
			"objects": map[string]any{
				"print_stats":    nil,
				"display_status": nil,
				"gcode_move":     nil,
			},
		},
		"id": 1,
	}
}

// rpcEnvelope covers both the subscribe response (result.status is the full
// initial state) and notify_status_update notifications (params[0] is a
// partial diff).
type rpcEnvelope struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	Result *struct {
		Status json.RawMessage `json:"status"`
	} `json:"result"`
}

// statusUpdate uses pointer fields so an absent object leaves the merged
// view untouched.
type statusUpdate struct {
	PrintStats *struct {
		State         *string  `json:"state"`
		Filename      *string  `json:"filename"`
		PrintDuration *float64 `json:"print_duration"`
	} `json:"print_stats"`
	DisplayStatus *struct {
		Progress *float64 `json:"progress"`
	} `json:"display_status"`
	GcodeMove *struct {
		GcodePosition []float64 `json:"gcode_position"`
	} `json:"gcode_move"`
}

func (m *Moonraker) handleMessage(data []byte) {
	var env rpcEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		m.log.Debugw("moonraker_bad_message", "err", err)
		return
	}

	var raw json.RawMessage
	switch {
	case env.Result != nil && len(env.Result.Status) > 0:
		raw = env.Result.Status
	case env.Method == "notify_status_update" && len(env.Params) > 0:
		raw = env.Params[0]
	default:
		return
	}

	var upd statusUpdate
	if err := json.Unmarshal(raw, &upd); err != nil {
		m.log.Debugw("moonraker_bad_status", "err", err)
		return
	}
	m.apply(upd, time.Now())
}

// apply merges one diff and emits the resulting sample.
func (m *Moonraker) apply(upd statusUpdate, now time.Time) {
	m.mu.Lock()
	if ps := upd.PrintStats; ps != nil {
		if ps.State != nil {
			m.state.jobState = mapMoonrakerState(*ps.State)
		}
		if ps.Filename != nil {
			m.state.jobName = *ps.Filename
		}
		if ps.PrintDuration != nil {
			m.state.elapsed = *ps.PrintDuration
		}
	}
	if ds := upd.DisplayStatus; ds != nil && ds.Progress != nil {
		m.state.progress = *ds.Progress
	}
	if gm := upd.GcodeMove; gm != nil && len(gm.GcodePosition) >= 3 {
		m.state.heightMM = gm.GcodePosition[2]
	}
	st := m.state
	m.mu.Unlock()

	m.sink.Push(models.TelemetrySample{
		Timestamp:  now,
		HeightMM:   st.heightMM,
		Percent:    st.progress * 100,
		ElapsedSec: st.elapsed,
		State:      st.jobState,
		JobName:    st.jobName,
	})
}

// mapMoonrakerState translates print_stats.state values. "standby" means no
// job at all and maps to the empty state, which is neither active nor
// terminal.
func mapMoonrakerState(s string) models.JobState {
	switch s {
	case "printing":
		return models.JobPrinting
	case "paused":
		return models.JobPaused
	case "complete":
		return models.JobComplete
	case "cancelled":
		return models.JobCanceled
	case "error":
		return models.JobError
	default:
		return ""
	}
}
