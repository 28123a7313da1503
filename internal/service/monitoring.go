package service

import (
	"time"

	"printlapse/internal/models"
)

// StatusSource exposes the session snapshot side of the engine.
type StatusSource interface {
	Session() models.Session
	Rendering() bool
}

type MonitoringService struct {
	source  StatusSource
	samples Sampler
}

func NewMonitoringService(source StatusSource, samples Sampler) *MonitoringService {
	return &MonitoringService{source: source, samples: samples}
}

// Status assembles the live snapshot: session, latest telemetry, render flag.
func (s *MonitoringService) Status() models.Status {
	st := models.Status{
		Session:   s.source.Session(),
		Rendering: s.source.Rendering(),
		UpdatedAt: time.Now().UTC(),
	}
	if s.samples != nil {
		if last, ok := s.samples.Last(); ok {
			st.LastSample = last
		}
	}
	return st
}
