package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"printlapse/internal/models"
)

// Domain errors the HTTP layer maps onto status codes.
var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Timelapse is the session lifecycle surface the commands drive.
type Timelapse interface {
	Start(jobName string) error
	Stop() error
	Pause() error
	Resume() error
	Photo(ctx context.Context) error
	Create(ctx context.Context) error
	Override(payload string, sample models.TelemetrySample) (string, error)
}

// Notifications is the notification-rule surface the commands drive.
type Notifications interface {
	Override(payload string, sample models.TelemetrySample) (string, error)
}

// Sampler supplies the latest telemetry sample, used as the rebase anchor
// for parameter overrides.
type Sampler interface {
	Last() (models.TelemetrySample, bool)
}

// command is one registry entry: validation runs before execution, so a bad
// argument never reaches the engine.
type command struct {
	validate func(args string) error
	execute  func(ctx context.Context, args string) (string, error)
}

// CommandService is the registered-command table. Commands are addressed by
// name; adding one means adding a table entry, nothing else.
type CommandService struct {
	commands map[string]command
}

func NewCommandService(tl Timelapse, nt Notifications, samples Sampler) *CommandService {
	s := &CommandService{commands: map[string]command{}}

	s.register("start", optionalArgs, func(ctx context.Context, args string) (string, error) {
		if err := tl.Start(args); err != nil {
			return "", err
		}
		return "timelapse session started", nil
	})
	s.register("stop", noArgs, func(ctx context.Context, _ string) (string, error) {
		if err := tl.Stop(); err != nil {
			return "", err
		}
		return "timelapse session stopped", nil
	})
	s.register("pause", noArgs, func(ctx context.Context, _ string) (string, error) {
		if err := tl.Pause(); err != nil {
			return "", err
		}
		return "timelapse session paused", nil
	})
	s.register("resume", noArgs, func(ctx context.Context, _ string) (string, error) {
		if err := tl.Resume(); err != nil {
			return "", err
		}
		return "timelapse session resumed", nil
	})
	s.register("photo", noArgs, func(ctx context.Context, _ string) (string, error) {
		if err := tl.Photo(ctx); err != nil {
			return "", err
		}
		return "frame captured", nil
	})
	s.register("create", noArgs, func(ctx context.Context, _ string) (string, error) {
		if err := tl.Create(ctx); err != nil {
			return "", err
		}
		return "render started", nil
	})
	s.register("timelapse_params", requiredArgs, func(ctx context.Context, args string) (string, error) {
		echo, err := tl.Override(args, lastSample(samples))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return echo, nil
	})
	s.register("notify_params", requiredArgs, func(ctx context.Context, args string) (string, error) {
		echo, err := nt.Override(args, lastSample(samples))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return echo, nil
	})

	return s
}

func (s *CommandService) register(name string, validate func(string) error, execute func(context.Context, string) (string, error)) {
	s.commands[name] = command{validate: validate, execute: execute}
}

// Execute runs one named command. Unknown names and rejected arguments
// never touch the engine.
func (s *CommandService) Execute(ctx context.Context, name, args string) (string, error) {
	cmd, ok := s.commands[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q, known: %s", ErrUnknownCommand, name, strings.Join(s.names(), " "))
	}
	if err := cmd.validate(args); err != nil {
		return "", err
	}
	return cmd.execute(ctx, args)
}

func (s *CommandService) names() []string {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func noArgs(args string) error {
	if strings.TrimSpace(args) != "" {
		return fmt.Errorf("%w: command takes no arguments", ErrInvalidArgument)
	}
	return nil
}

func requiredArgs(args string) error {
	if strings.TrimSpace(args) == "" {
		return fmt.Errorf("%w: command needs key=value arguments", ErrInvalidArgument)
	}
	return nil
}

func optionalArgs(string) error { return nil }

func lastSample(samples Sampler) models.TelemetrySample {
	if samples == nil {
		return models.TelemetrySample{}
	}
	s, _ := samples.Last()
	return s
}
