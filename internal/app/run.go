package app

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/eventlog"
	"github.com/vk/taskgrid/internal/future"
	"github.com/vk/taskgrid/internal/proc"
	"github.com/vk/taskgrid/internal/sched"
	"github.com/vk/taskgrid/internal/scope"
	"github.com/vk/taskgrid/internal/task"
)

// Run executes the loaded grid: it builds a scheduler instance, registers
// the declared processors, attaches telemetry, spawns every task, and waits
// for the workload to finish.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.scheduler = sched.New(ctx, sched.Config{
		Logger:          a.logger,
		DispatchTimeout: a.model.Scheduler.DispatchTimeout,
		EventBuffer:     a.model.Scheduler.EventBuffer,
	})
	defer a.scheduler.Close()

	a.scheduler.AddSink(eventlog.NewSlogSink(a.logger))
	if err := a.startTelemetry(ctx); err != nil {
		return err
	}
	defer a.stopTelemetry(ctx)

	procIDs, err := a.registerProcessors()
	if err != nil {
		return err
	}
	a.logger.Info("🖥️ Processors registered.", "count", len(a.scheduler.Processors()))

	if len(a.model.Tasks) == 0 {
		a.logger.Warn("No tasks found in grid, execution not required.")
		return nil
	}

	a.logger.Info("🚀 Starting grid execution.", "tasks", len(a.model.Tasks))
	handles, err := a.spawnTasks(procIDs)
	if err != nil {
		return err
	}

	var failedTasks []string
	var rootCauseErr error
	for _, name := range orderedNames(a.model.Tasks) {
		if err := a.scheduler.Wait(ctx, handles[name]); err != nil {
			a.logger.Error("Task failed.", "task", name, "error", err)
			// A dependency-failed error is a symptom; the root cause is the
			// ancestor's own failure.
			var depErr *task.DependencyFailedError
			if !errors.As(err, &depErr) {
				failedTasks = append(failedTasks, name)
				if rootCauseErr == nil {
					rootCauseErr = err
				}
			}
		}
	}

	if rootCauseErr != nil {
		return fmt.Errorf("execution failed for %s: %w", strings.Join(failedTasks, ", "), rootCauseErr)
	}

	a.logger.Info("🏁 Grid execution finished.")
	return nil
}

// registerProcessors attaches the grid's processors, or a default pool of
// one CPU thread processor with a slot per core when the grid declares none.
// It returns the processor IDs by grid name for scope resolution.
func (a *App) registerProcessors() (map[string]proc.ID, error) {
	ids := make(map[string]proc.ID, len(a.model.Processors))

	if len(a.model.Processors) == 0 {
		p, err := a.scheduler.RegisterProcessor(proc.Processor{
			Kind:  proc.KindThread,
			Node:  "local",
			Slots: runtime.NumCPU(),
		})
		if err != nil {
			return nil, err
		}
		ids["default"] = p.ID
		return ids, nil
	}

	for _, pc := range a.model.Processors {
		kind, err := proc.ParseKind(pc.Kind)
		if err != nil {
			return nil, fmt.Errorf("processor %q: %w", pc.Name, err)
		}
		p, err := a.scheduler.RegisterProcessor(proc.Processor{
			ID:     proc.ID(pc.Name),
			Kind:   kind,
			Node:   pc.Node,
			Device: pc.Device,
			Slots:  pc.Slots,
		})
		if err != nil {
			return nil, fmt.Errorf("processor %q: %w", pc.Name, err)
		}
		ids[pc.Name] = p.ID
	}
	return ids, nil
}

// spawnTasks submits every grid task, wiring `after` dependencies through
// the handles of earlier tasks. The loader guarantees dependencies are
// declared before their dependents.
func (a *App) spawnTasks(procIDs map[string]proc.ID) (map[string]*future.Handle, error) {
	handles := make(map[string]*future.Handle, len(a.model.Tasks))

	for _, tc := range a.model.Tasks {
		inputs := make([]any, 0, len(tc.After))
		for _, dep := range tc.After {
			h, ok := handles[dep]
			if !ok {
				return nil, fmt.Errorf("task %q: unresolved dependency %q", tc.Name, dep)
			}
			inputs = append(inputs, h)
		}

		taskScope, err := buildScope(tc.Scope, procIDs)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", tc.Name, err)
		}

		opts := []sched.SpawnOption{
			sched.WithLabel(tc.Name),
			sched.WithScope(taskScope),
			sched.WithPriority(tc.Priority),
		}
		if tc.MaxAttempts > 1 {
			opts = append(opts, sched.WithRetry(tc.MaxAttempts))
		}

		handles[tc.Name] = a.scheduler.Spawn(commandPayload(tc), inputs, opts...)
	}
	return handles, nil
}

// commandPayload wraps a grid task's command invocation. Dependency results
// arrive as arguments but only order execution; command tasks do not consume
// each other's output.
func commandPayload(tc config.Task) task.Payload {
	return func(ctx context.Context, _ []any) (any, error) {
		cmd := exec.CommandContext(ctx, tc.Command, tc.Args...)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return nil, fmt.Errorf("command %q failed: %w: %s", tc.Command, err, strings.TrimSpace(string(out)))
		}
		return strings.TrimSpace(string(out)), nil
	}
}

// buildScope translates a grid scope block into a placement constraint.
func buildScope(sc config.Scope, procIDs map[string]proc.ID) (scope.Scope, error) {
	switch {
	case sc.Processor != "":
		id, ok := procIDs[sc.Processor]
		if !ok {
			return scope.Scope{}, fmt.Errorf("scope references unknown processor %q", sc.Processor)
		}
		return scope.On(id), nil
	case sc.Node != "":
		return scope.OnNode(sc.Node), nil
	case sc.Kind != "":
		kind, err := proc.ParseKind(sc.Kind)
		if err != nil {
			return scope.Scope{}, err
		}
		return scope.OnKind(kind), nil
	default:
		return scope.Any(), nil
	}
}

func orderedNames(tasks []config.Task) []string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	return names
}
