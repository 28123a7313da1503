package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"printlapse/internal/camera"
	"printlapse/internal/config"
	"printlapse/internal/encoder"
	"printlapse/internal/frames"
	"printlapse/internal/gateway"
	"printlapse/internal/handlers"
	"printlapse/internal/ingest"
	"printlapse/internal/logger"
	"printlapse/internal/moonraker"
	"printlapse/internal/notify"
	"printlapse/internal/server"
	"printlapse/internal/service"
	"printlapse/internal/settings"
	"printlapse/internal/timelapse"
)

const defaultSimTick = 1 * time.Second

func main() {
	// load configs/config.yml; a bad config must not start the engine
	cfg, err := config.Load("configs")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.Bot.LogLevel)

	// wire dependencies
	store := settings.NewStore(cfg)
	frameStore := frames.NewStore(cfg.Timelapse.BaseDir)
	cam := camera.NewClient(cfg.Camera)
	printer := moonraker.NewClient(cfg.Bot.MoonrakerURL)
	gw := gateway.NewWebhook(cfg.Bot.GatewayURL, log)
	notifier := notify.NewNotifier(cfg, store, gw, cam, log)
	engine := timelapse.NewService(cfg, store, frameStore, cam, printer, printer, encoder.NewFFmpeg(), notifier, log)

	dispatcher := ingest.NewDispatcher(log)
	dispatcher.Register(engine)
	dispatcher.Register(notifier)

	services := service.NewService(cfg, engine, notifier, engine, dispatcher)
	apiHandler := handlers.NewHandler(services, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go dispatcher.Run(ctx)
	startTelemetry(ctx, cfg, dispatcher, log)

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, cfg.Bot.Port, apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, log)
}

// startTelemetry launches the configured telemetry source.
func startTelemetry(ctx context.Context, cfg *config.Config, dispatcher *ingest.Dispatcher, log *logger.Logger) {
	switch cfg.Bot.TelemetrySource {
	case config.SourceMoonraker:
		src := ingest.NewMoonraker(ingest.WebsocketURL(cfg.Bot.MoonrakerURL), dispatcher, log)
		go src.Run(ctx)
	case config.SourceMQTT:
		src := ingest.NewBambu(cfg.Bot.MQTTBroker, cfg.Bot.MQTTSerial, cfg.Bot.MQTTPassword, dispatcher, log)
		go src.Run(ctx)
	case config.SourceSim:
		go ingest.NewSimulator(dispatcher, log).Run(ctx, defaultSimTick)
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop background goroutines
	cancel()

	// allow in-flight requests to complete
	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
