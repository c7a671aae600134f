// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDir(t *testing.T) {
	t.Run("uses XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		assert.Equal(t, "/custom/config/gatekeep", Dir())
		assert.Equal(t, "/custom/config/gatekeep/config.yaml", DefaultPath())
	})

	t.Run("falls back to HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/test")
		assert.Equal(t, "/home/test/.config/gatekeep", Dir())
	})
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	t.Run("explicit path wins", func(t *testing.T) {
		path, err := Resolve("/etc/gatekeep.yaml")
		require.NoError(t, err)
		assert.Equal(t, "/etc/gatekeep.yaml", path)
	})

	t.Run("missing default is skipped", func(t *testing.T) {
		path, err := Resolve("")
		require.NoError(t, err)
		assert.Empty(t, path)
	})

	t.Run("existing default is used", func(t *testing.T) {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "gatekeep"), 0o700))
		want := filepath.Join(dir, "gatekeep", "config.yaml")
		require.NoError(t, os.WriteFile(want, []byte("log:\n  level: debug\n"), 0o600))

		path, err := Resolve("")
		require.NoError(t, err)
		assert.Equal(t, want, path)
	})
}
