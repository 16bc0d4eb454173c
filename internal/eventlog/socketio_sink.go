package eventlog

import (
	"context"
	"fmt"
	"net/url"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// SocketIOSink streams events to a socket.io endpoint, typically the
// telemetry dashboard. Emission is fire-and-forget: the client buffers while
// disconnected and the sink never blocks the dispatcher on network state.
type SocketIOSink struct {
	io        *socket.Socket
	eventName string
}

// NewSocketIOSink connects to the given socket.io URL and returns a sink
// that emits every event under the given event name ("scheduler_event" when
// empty).
func NewSocketIOSink(ctx context.Context, rawURL, eventName string) (*SocketIOSink, error) {
	logger := ctxlog.FromContext(ctx).With("sink", "socketio", "url", rawURL)

	if eventName == "" {
		eventName = "scheduler_event"
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse socket.io URL: %w", err)
	}

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket("/", opts)

	io.On(types.EventName("connect"), func(...any) {
		logger.Info("Telemetry stream connected.", "sid", io.Id())
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		logger.Warn("Telemetry stream connection error.", "error", errs)
	})
	io.Connect()

	return &SocketIOSink{io: io, eventName: eventName}, nil
}

// OnEvent implements Sink.
func (s *SocketIOSink) OnEvent(ev Event) {
	s.io.Emit(s.eventName, map[string]any{
		"time":           ev.Time,
		"type":           string(ev.Type),
		"task":           string(ev.Task),
		"label":          ev.Label,
		"attempt":        ev.Attempt,
		"processor":      string(ev.Processor),
		"node":           ev.Node,
		"error":          ev.Err,
		"duration_ms":    ev.Duration.Milliseconds(),
		"cpu_percent":    ev.CPUPercent,
		"memory_percent": ev.MemoryPercent,
	})
}

// Close disconnects the underlying socket.
func (s *SocketIOSink) Close() {
	s.io.Disconnect()
}
