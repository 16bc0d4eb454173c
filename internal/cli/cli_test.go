package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("positional grid path", func(t *testing.T) {
		t.Parallel()
		out := &bytes.Buffer{}

		cfg, shouldExit, err := Parse([]string{"grid.hcl"}, out)
		require.NoError(t, err)
		require.False(t, shouldExit)
		assert.Equal(t, "grid.hcl", cfg.GridPath)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("grid flag wins over positional", func(t *testing.T) {
		t.Parallel()
		out := &bytes.Buffer{}

		cfg, _, err := Parse([]string{"--grid", "a.hcl", "b.hcl"}, out)
		require.NoError(t, err)
		assert.Equal(t, "a.hcl", cfg.GridPath)
	})

	t.Run("shorthand flag", func(t *testing.T) {
		t.Parallel()
		out := &bytes.Buffer{}

		cfg, _, err := Parse([]string{"-g", "a.hcl"}, out)
		require.NoError(t, err)
		assert.Equal(t, "a.hcl", cfg.GridPath)
	})

	t.Run("no path prints usage and exits cleanly", func(t *testing.T) {
		t.Parallel()
		out := &bytes.Buffer{}

		cfg, shouldExit, err := Parse(nil, out)
		require.NoError(t, err)
		assert.True(t, shouldExit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	})

	t.Run("log options are normalized", func(t *testing.T) {
		t.Parallel()
		out := &bytes.Buffer{}

		cfg, _, err := Parse([]string{"--log-format", "TEXT", "--log-level", "DEBUG", "grid.hcl"}, out)
		require.NoError(t, err)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("invalid log format", func(t *testing.T) {
		t.Parallel()
		out := &bytes.Buffer{}

		_, _, err := Parse([]string{"--log-format", "yaml", "grid.hcl"}, out)
		require.Error(t, err)

		exitErr, ok := err.(*ExitError)
		require.True(t, ok)
		assert.Equal(t, 2, exitErr.Code)
		assert.Contains(t, exitErr.Message, "invalid log-format")
	})

	t.Run("invalid log level", func(t *testing.T) {
		t.Parallel()
		out := &bytes.Buffer{}

		_, _, err := Parse([]string{"--log-level", "trace", "grid.hcl"}, out)
		require.Error(t, err)

		exitErr, ok := err.(*ExitError)
		require.True(t, ok)
		assert.Equal(t, 2, exitErr.Code)
		assert.Contains(t, exitErr.Message, "invalid log-level")
	})
}
