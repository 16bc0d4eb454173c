package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/eventlog"
	"github.com/vk/taskgrid/internal/sched"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle: it loads a grid file, builds a scheduler instance around it,
// attaches telemetry, runs the workload, and tears everything down.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	model  *config.Model

	scheduler  *sched.Scheduler
	promReg    *prometheus.Registry
	httpServer *http.Server
	sampler    *eventlog.Sampler
	socketSink *eventlog.SocketIOSink
}

// NewApp is the constructor for the main application. It loads and validates
// the grid file up front; a grid that cannot be loaded is a fatal startup
// error and panics, which the entrypoint recovers into a clean exit.
func NewApp(outW io.Writer, appConfig *Config) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := config.Load(ctx, appConfig.GridPath, nil)
	if err != nil {
		panic(fmt.Errorf("failed to load configuration: %w", err))
	}
	logger.Debug("Grid configuration loaded.", "path", appConfig.GridPath)

	return &App{
		outW:   outW,
		logger: logger,
		config: appConfig,
		model:  model,
	}
}

// Model returns the loaded grid model. This is primarily for testing.
func (a *App) Model() *config.Model {
	return a.model
}

// Scheduler returns the running scheduler instance, or nil before Run.
// This is primarily for testing.
func (a *App) Scheduler() *sched.Scheduler {
	return a.scheduler
}
