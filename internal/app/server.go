package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vk/taskgrid/internal/eventlog"
)

// startTelemetry attaches the sinks the grid's telemetry block asks for:
// Prometheus metrics behind an HTTP surface, a socket.io event stream for
// the dashboard, and a host utilization sampler.
func (a *App) startTelemetry(ctx context.Context) error {
	tel := a.model.Telemetry

	if tel.MetricsPort > 0 {
		a.promReg = prometheus.NewRegistry()
		a.scheduler.AddSink(eventlog.NewPrometheusSink(a.promReg))
		a.startHTTPServer(tel.MetricsPort)
	}

	if tel.SocketIOURL != "" {
		sink, err := eventlog.NewSocketIOSink(ctx, tel.SocketIOURL, tel.SocketIOEvent)
		if err != nil {
			return fmt.Errorf("failed to start telemetry stream: %w", err)
		}
		a.socketSink = sink
		a.scheduler.AddSink(sink)
	}

	if tel.SampleInterval > 0 {
		// Samples travel the same pipeline as scheduling events so every
		// sink sees one ordered stream.
		a.sampler = eventlog.NewSampler(ctx, a.scheduler.Events(), "local", tel.SampleInterval)
	}

	return nil
}

func (a *App) stopTelemetry(ctx context.Context) {
	if a.sampler != nil {
		a.sampler.Stop()
	}
	if a.socketSink != nil {
		a.socketSink.Close()
	}
	if a.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.logger.Debug("Shutting down telemetry HTTP server.")
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Telemetry HTTP server shutdown failed.", "error", err)
		}
	}
}

// healthHandler reports liveness.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

// statusHandler reports scheduler statistics and processor membership.
func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{
		"stats":      a.scheduler.Stats(),
		"processors": a.scheduler.Processors(),
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("Failed to encode status response.", "error", err)
	}
}

// startHTTPServer runs the health/status/metrics surface.
func (a *App) startHTTPServer(port int) {
	router := mux.NewRouter()
	router.HandleFunc("/health", a.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/status", a.statusHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(a.promReg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	addr := fmt.Sprintf(":%d", port)
	a.httpServer = &http.Server{Addr: addr, Handler: router}

	go func() {
		a.logger.Info("🩺 Telemetry server starting.", "address", fmt.Sprintf("http://localhost%s", addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Telemetry server failed unexpectedly.", "error", err)
		}
	}()
}
