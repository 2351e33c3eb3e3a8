package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reflow_oven/internal/config"
	"reflow_oven/internal/device"
	"reflow_oven/internal/handlers"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/repository"
	"reflow_oven/internal/repository/db"
	"reflow_oven/internal/server"
	"reflow_oven/internal/service"
)

const (
	discoveryTimeout = 10 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// @title                       Reflow oven API
// @version                     1.0
// @description                 Runs temperature/power profiles on a reflow oven and streams live telemetry.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	// load configs/config.yml (+ REFLOW_* env)
	cfg, err := config.Load("configs")
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.GetWithFormat(cfg.LogLevel, cfg.LogFormat)

	// open DB
	sqlDB, err := db.InitDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err, "path", cfg.DB.Path)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// devices
	registry := device.NewRegistry(log.Named("devices"), drivers(cfg, log)...)
	discoverCtx, discoverCancel := context.WithTimeout(ctx, discoveryTimeout)
	if err := registry.Refresh(discoverCtx); err != nil {
		log.Warnw("initial device discovery incomplete", "err", err)
	}
	discoverCancel()

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	services := service.NewService(repos, registry, cfg, log)
	if err := services.Load(ctx); err != nil {
		log.Fatalw("failed to load profiles", "err", err)
	}
	apiHandler := handlers.NewHandler(services, log.Named("http"))

	// run controller loop and hot-plug watch
	go services.Sampler.Run(ctx, cfg.Run.Tick)
	go registry.Watch(ctx, cfg.Devices.RescanInterval)

	// start HTTP server
	srv := server.New(cfg.Port, apiHandler.InitRoutes())
	go func() {
		log.Infow("http_listening", "addr", srv.Addr())
		if err := srv.Run(); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()

	waitForShutdown(cancel, srv, services, registry, log)
}

// drivers builds the enabled device drivers; the simulator is listed first.
func drivers(cfg *config.Config, log *logger.Logger) []device.Driver {
	var out []device.Driver
	if cfg.Devices.Simulator {
		out = append(out, device.NewSimulatedDriver(device.SimConfig{
			AmbientC:   cfg.Simulator.AmbientC,
			MaxTempC:   cfg.Simulator.MaxTempC,
			TauSeconds: cfg.Simulator.TauSeconds,
		}))
	}
	if cfg.Devices.Serial {
		out = append(out, device.NewSerialDriver(device.SerialOptions{
			ProbeTimeout:     cfg.Devices.ProbeTimeout,
			ReplyTimeout:     cfg.Devices.ReplyTimeout,
			ProbeConcurrency: cfg.Devices.ProbeConcurrency,
		}, log.Named("serial")))
	}
	return out
}

// waitForShutdown listens for termination signals, turns the heater off and
// stops the server.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, services *service.Service, registry *device.Registry, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	// stop the controller loop and device watch
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	services.Sampler.Shutdown(ctx)
	if err := registry.Close(); err != nil {
		log.Warnw("closing devices", "err", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
