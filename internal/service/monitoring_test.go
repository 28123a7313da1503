package service

import (
	"testing"
	"time"

	"printlapse/internal/models"
)

type fakeStatusSource struct {
	session   models.Session
	rendering bool
}

func (f *fakeStatusSource) Session() models.Session { return f.session }
func (f *fakeStatusSource) Rendering() bool         { return f.rendering }

func TestMonitoringService_StatusSnapshot(t *testing.T) {
	t.Parallel()

	source := &fakeStatusSource{
		session: models.Session{
			ID:         "abc",
			Name:       "benchy",
			State:      models.SessionRunning,
			FrameCount: 17,
		},
		rendering: false,
	}
	sampler := &fakeSampler{
		sample: models.TelemetrySample{Percent: 40, State: models.JobPrinting},
		ok:     true,
	}

	st := NewMonitoringService(source, sampler).Status()
	if st.Session.ID != "abc" || st.Session.FrameCount != 17 {
		t.Fatalf("session snapshot: %+v", st.Session)
	}
	if st.LastSample.Percent != 40 || st.LastSample.State != models.JobPrinting {
		t.Fatalf("last sample: %+v", st.LastSample)
	}
	if st.Rendering {
		t.Fatalf("rendering flag must mirror the source")
	}
	if st.UpdatedAt.IsZero() || st.UpdatedAt.Location() != time.UTC {
		t.Fatalf("updated_at must be a UTC timestamp, got %v", st.UpdatedAt)
	}
}

func TestMonitoringService_NoSampleYet(t *testing.T) {
	t.Parallel()

	st := NewMonitoringService(&fakeStatusSource{rendering: true}, &fakeSampler{}).Status()
	if st.LastSample != (models.TelemetrySample{}) {
		t.Fatalf("no telemetry yet must leave the sample zero, got %+v", st.LastSample)
	}
	if !st.Rendering {
		t.Fatalf("rendering flag lost")
	}
}
