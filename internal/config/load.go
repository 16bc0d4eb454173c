package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/proc"
	"github.com/zclconf/go-cty/cty"
)

// Raw HCL schema. Mirrors the grid file structure before translation into
// the Model.
type rawFile struct {
	Scheduler  *rawScheduler  `hcl:"scheduler,block"`
	Processors []rawProcessor `hcl:"processor,block"`
	Telemetry  *rawTelemetry  `hcl:"telemetry,block"`
	Tasks      []rawTask      `hcl:"task,block"`
}

type rawScheduler struct {
	DispatchTimeout string `hcl:"dispatch_timeout,optional"`
	EventBuffer     int    `hcl:"event_buffer,optional"`
}

type rawProcessor struct {
	Name   string `hcl:"name,label"`
	Kind   string `hcl:"kind"`
	Node   string `hcl:"node,optional"`
	Device int    `hcl:"device,optional"`
	Slots  int    `hcl:"slots,optional"`
}

type rawTelemetry struct {
	MetricsPort    int    `hcl:"metrics_port,optional"`
	SocketIOURL    string `hcl:"socketio_url,optional"`
	SocketIOEvent  string `hcl:"socketio_event,optional"`
	SampleInterval string `hcl:"sample_interval,optional"`
}

type rawTask struct {
	Name        string    `hcl:"name,label"`
	Command     string    `hcl:"command"`
	Args        []string  `hcl:"args,optional"`
	After       []string  `hcl:"after,optional"`
	Priority    int       `hcl:"priority,optional"`
	MaxAttempts int       `hcl:"max_attempts,optional"`
	Scope       *rawScope `hcl:"scope,block"`
}

type rawScope struct {
	Kind      string `hcl:"kind,optional"`
	Node      string `hcl:"node,optional"`
	Processor string `hcl:"processor,optional"`
}

// Load reads and translates a grid from disk. The path may be a single .hcl
// file or a directory, in which case every .hcl file under it is merged in
// lexical order.
func Load(ctx context.Context, path string, vars map[string]cty.Value) (*Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid path %s: %w", path, err)
	}

	paths := []string{path}
	if info.IsDir() {
		paths, err = fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("failed to scan grid directory %s: %w", path, err)
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("no .hcl files found in %s", path)
		}
		sort.Strings(paths)
	}

	parser := hclparse.NewParser()
	files := make([]*hcl.File, 0, len(paths))
	for _, p := range paths {
		file, diags := parser.ParseHCLFile(p)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse grid file %s: %w", p, diags)
		}
		files = append(files, file)
	}
	return translate(ctx, hcl.MergeFiles(files), vars)
}

// LoadBytes parses a grid from memory. Used by tests and embedders.
func LoadBytes(ctx context.Context, src []byte, filename string, vars map[string]cty.Value) (*Model, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse grid %s: %w", filename, diags)
	}
	return translate(ctx, file.Body, vars)
}

// translate decodes the raw body and converts it into the Model, validating
// as it goes. The optional vars map is exposed to expressions as `vars.*`.
func translate(ctx context.Context, body hcl.Body, vars map[string]cty.Value) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	evalCtx := &hcl.EvalContext{Variables: map[string]cty.Value{}}
	if len(vars) > 0 {
		evalCtx.Variables["vars"] = cty.ObjectVal(vars)
	}

	var raw rawFile
	if diags := gohcl.DecodeBody(body, evalCtx, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode grid: %w", diags)
	}

	model := &Model{}

	if raw.Scheduler != nil {
		d, err := parseDuration(raw.Scheduler.DispatchTimeout, "scheduler.dispatch_timeout")
		if err != nil {
			return nil, err
		}
		model.Scheduler = Scheduler{DispatchTimeout: d, EventBuffer: raw.Scheduler.EventBuffer}
	}

	seenProcs := make(map[string]struct{}, len(raw.Processors))
	for _, rp := range raw.Processors {
		if _, dup := seenProcs[rp.Name]; dup {
			return nil, fmt.Errorf("duplicate processor %q", rp.Name)
		}
		seenProcs[rp.Name] = struct{}{}

		if _, err := proc.ParseKind(rp.Kind); err != nil {
			return nil, fmt.Errorf("processor %q: %w", rp.Name, err)
		}
		p := Processor(rp)
		if p.Node == "" {
			p.Node = "local"
		}
		if p.Slots < 1 {
			p.Slots = 1
		}
		model.Processors = append(model.Processors, p)
	}

	if raw.Telemetry != nil {
		d, err := parseDuration(raw.Telemetry.SampleInterval, "telemetry.sample_interval")
		if err != nil {
			return nil, err
		}
		model.Telemetry = Telemetry{
			MetricsPort:    raw.Telemetry.MetricsPort,
			SocketIOURL:    raw.Telemetry.SocketIOURL,
			SocketIOEvent:  raw.Telemetry.SocketIOEvent,
			SampleInterval: d,
		}
	}

	seenTasks := make(map[string]struct{}, len(raw.Tasks))
	for _, rt := range raw.Tasks {
		if _, dup := seenTasks[rt.Name]; dup {
			return nil, fmt.Errorf("duplicate task %q", rt.Name)
		}

		t := Task{
			Name:        rt.Name,
			Command:     rt.Command,
			Args:        rt.Args,
			After:       rt.After,
			Priority:    rt.Priority,
			MaxAttempts: rt.MaxAttempts,
		}
		if rt.Command == "" {
			return nil, fmt.Errorf("task %q: command must not be empty", rt.Name)
		}

		// Dependencies must reference tasks declared earlier in the file.
		// This forward-only rule makes dependency cycles unrepresentable.
		for _, dep := range rt.After {
			if _, ok := seenTasks[dep]; !ok {
				return nil, fmt.Errorf("task %q: unknown or later-declared dependency %q", rt.Name, dep)
			}
		}

		if rt.Scope != nil {
			set := 0
			for _, v := range []string{rt.Scope.Kind, rt.Scope.Node, rt.Scope.Processor} {
				if v != "" {
					set++
				}
			}
			if set > 1 {
				return nil, fmt.Errorf("task %q: scope must set at most one of kind, node, processor", rt.Name)
			}
			if rt.Scope.Kind != "" {
				if _, err := proc.ParseKind(rt.Scope.Kind); err != nil {
					return nil, fmt.Errorf("task %q: %w", rt.Name, err)
				}
			}
			if rt.Scope.Processor != "" {
				if _, ok := seenProcs[rt.Scope.Processor]; !ok {
					return nil, fmt.Errorf("task %q: scope references unknown processor %q", rt.Name, rt.Scope.Processor)
				}
			}
			t.Scope = Scope(*rt.Scope)
		}

		seenTasks[rt.Name] = struct{}{}
		model.Tasks = append(model.Tasks, t)
	}

	logger.Debug("Grid translated.",
		"processors", len(model.Processors), "tasks", len(model.Tasks))
	return model, nil
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", field, s)
	}
	return d, nil
}
