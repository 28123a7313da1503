package ingest

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"printlapse/internal/logger"
	"printlapse/internal/models"
)

const (
	bambuUsername    = "bblp"
	bambuMQTTPort    = 8883
	mqttConnectWait  = 15 * time.Second
	mqttRetryDelay   = 5 * time.Second
	mqttDisconnectMS = 500
)

// Bambu streams telemetry from a Bambu Lab printer's local MQTT broker.
// The printer publishes partial reports on device/<serial>/report; fields
// absent from a report keep their previous value, so the source merges them
// into a running view like the Moonraker one does.
//
// Bambu reports carry no Z height, so height-based rules stay silent on
// this source; percent and time rules work as usual.
type Bambu struct {
	host     string
	serial   string
	password string
	sink     *Dispatcher
	log      *logger.Logger

	mu    sync.Mutex
	state printerState
	start time.Time
}

func NewBambu(host, serial, password string, sink *Dispatcher, log *logger.Logger) *Bambu {
	return &Bambu{host: host, serial: serial, password: password, sink: sink, log: log}
}

// Run keeps a subscription alive until ctx is canceled, reconnecting with a
// fixed delay after any connection failure. The paho client handles broker
// reconnects on an established session itself.
func (b *Bambu) Run(ctx context.Context) {
	for {
		if err := b.connectAndServe(ctx); err != nil {
			b.log.Warnw("bambu_connection_lost", "err", err, "host", b.host)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(mqttRetryDelay):
		}
	}
}

func (b *Bambu) connectAndServe(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("ssl://%s:%d", b.host, bambuMQTTPort)).
		SetClientID("printlapse_" + uuid.NewString()[:8]).
		SetUsername(bambuUsername).
		SetPassword(b.password).
		SetTLSConfig(&tls.Config{InsecureSkipVerify: true}). // printers use a self-signed cert
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if tok := client.Connect(); !tok.WaitTimeout(mqttConnectWait) || tok.Error() != nil {
		return fmt.Errorf("mqtt connect %s: %v", b.host, tok.Error())
	}
	defer client.Disconnect(mqttDisconnectMS)

	topic := fmt.Sprintf("device/%s/report", b.serial)
	tok := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		b.handleReport(msg.Payload(), time.Now())
	})
	if !tok.WaitTimeout(mqttConnectWait) || tok.Error() != nil {
		return fmt.Errorf("mqtt subscribe %s: %v", topic, tok.Error())
	}
	b.log.Infow("bambu_connected", "host", b.host, "topic", topic)

	<-ctx.Done()
	return nil
}

// bambuReport is the slice of the report payload the engine cares about.
// Pointer fields distinguish absent from zero in partial reports.
type bambuReport struct {
	Print *struct {
		GcodeState  *string  `json:"gcode_state"`
		McPercent   *float64 `json:"mc_percent"`
		SubtaskName *string  `json:"subtask_name"`
		GcodeFile   *string  `json:"gcode_file"`
	} `json:"print"`
}

func (b *Bambu) handleReport(payload []byte, now time.Time) {
	var rep bambuReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		b.log.Debugw("bambu_bad_report", "err", err)
		return
	}
	if rep.Print == nil {
		return
	}

	b.mu.Lock()
	if rep.Print.GcodeState != nil {
		next := mapBambuState(*rep.Print.GcodeState)
		if next == models.JobPrinting && !b.state.jobState.Active() {
			b.start = now
		}
		b.state.jobState = next
	}
	if rep.Print.McPercent != nil {
		b.state.progress = *rep.Print.McPercent / 100
	}
	if rep.Print.SubtaskName != nil && *rep.Print.SubtaskName != "" {
		b.state.jobName = *rep.Print.SubtaskName
	} else if rep.Print.GcodeFile != nil && *rep.Print.GcodeFile != "" {
		b.state.jobName = *rep.Print.GcodeFile
	}
	if b.state.jobState.Active() && !b.start.IsZero() {
		b.state.elapsed = now.Sub(b.start).Seconds()
	}
	st := b.state
	b.mu.Unlock()

	b.sink.Push(models.TelemetrySample{
		Timestamp:  now,
		Percent:    st.progress * 100,
		ElapsedSec: st.elapsed,
		State:      st.jobState,
		JobName:    st.jobName,
	})
}

func mapBambuState(s string) models.JobState {
	switch s {
	case "RUNNING", "PREPARE":
		return models.JobPrinting
	case "PAUSE":
		return models.JobPaused
	case "FINISH":
		return models.JobComplete
	case "FAILED":
		return models.JobError
	default:
		return ""
	}
}
