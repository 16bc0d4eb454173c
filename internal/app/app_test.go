package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGrid(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0600))
	return path
}

func newTestApp(t *testing.T, src string) *App {
	t.Helper()
	cfg, err := NewConfig(Config{
		GridPath:  writeGrid(t, src),
		LogFormat: "text",
		LogLevel:  "error",
	})
	require.NoError(t, err)
	return NewApp(&bytes.Buffer{}, cfg)
}

func TestNewConfig(t *testing.T) {
	t.Parallel()

	t.Run("requires a grid path", func(t *testing.T) {
		t.Parallel()
		_, err := NewConfig(Config{})
		require.Error(t, err)
	})

	t.Run("accepts a populated config", func(t *testing.T) {
		t.Parallel()
		cfg, err := NewConfig(Config{GridPath: "grid.hcl"})
		require.NoError(t, err)
		assert.Equal(t, "grid.hcl", cfg.GridPath)
	})
}

func TestNewApp_LoadsGrid(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, `
processor "cpu0" {
  kind  = "thread"
  slots = 2
}

task "noop" { command = "true" }
`)

	model := a.Model()
	require.Len(t, model.Processors, 1)
	require.Len(t, model.Tasks, 1)
	assert.Equal(t, "noop", model.Tasks[0].Name)
}

func TestNewApp_PanicsOnBadGrid(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfig(Config{GridPath: writeGrid(t, `task "broken" {`)})
	require.NoError(t, err)

	assert.Panics(t, func() {
		NewApp(&bytes.Buffer{}, cfg)
	})
}

func TestApp_Run(t *testing.T) {
	t.Parallel()

	t.Run("executes a dependent chain of commands", func(t *testing.T) {
		t.Parallel()
		a := newTestApp(t, `
processor "cpu0" {
  kind  = "thread"
  slots = 2
}

task "first" {
  command = "echo"
  args    = ["one"]
}

task "second" {
  command = "echo"
  args    = ["two"]
  after   = ["first"]
}
`)
		require.NoError(t, a.Run(context.Background()))
	})

	t.Run("registers a default processor pool when none declared", func(t *testing.T) {
		t.Parallel()
		a := newTestApp(t, `task "noop" { command = "true" }`)
		require.NoError(t, a.Run(context.Background()))
	})

	t.Run("surfaces the root cause of a failing task", func(t *testing.T) {
		t.Parallel()
		a := newTestApp(t, `
task "fails" {
  command = "false"
}

task "downstream" {
  command = "true"
  after   = ["fails"]
}
`)
		err := a.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "execution failed for fails")
	})

	t.Run("empty grid needs no execution", func(t *testing.T) {
		t.Parallel()
		a := newTestApp(t, `processor "cpu0" { kind = "thread" }`)
		require.NoError(t, a.Run(context.Background()))
	})
}
