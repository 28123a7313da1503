package service

import (
	"context"

	"printlapse/internal/config"
	"printlapse/internal/models"
)

// Authorization exchanges the operator secret for a bearer token and
// validates tokens on protected routes.
type Authorization interface {
	GenerateToken(secret string) (string, error)
	ParseToken(accessToken string) error
}

// Commands executes one named engine command with its raw argument string
// and returns the acknowledgement text.
type Commands interface {
	Execute(ctx context.Context, name, args string) (string, error)
}

// Monitoring exposes the live status snapshot for the HTTP bridge and the
// websocket stream.
type Monitoring interface {
	Status() models.Status
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Authorization
	Commands
	Monitoring
}

func NewService(cfg *config.Config, tl Timelapse, nt Notifications, status StatusSource, samples Sampler) *Service {
	return &Service{
		Authorization: NewAuthService(cfg.Bot.APISecretHash, cfg.Bot.SigningKey),
		Commands:      NewCommandService(tl, nt, samples),
		Monitoring:    NewMonitoringService(status, samples),
	}
}
