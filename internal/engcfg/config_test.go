// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.

package engcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"
)

func newTestContext(t *testing.T, args []string) *cli.Context {
	t.Helper()
	app := cli.NewApp()
	app.Flags = []cli.Flag{ConfigFileFlag, MapFlag, MaxClientsFlag, FrameMsecFlag}

	var ctx *cli.Context
	app.Action = func(c *cli.Context) error {
		ctx = c
		return nil
	}
	require.NoError(t, app.Run(append([]string{"lcm3d"}, args...)))
	return ctx
}

func TestLoadAppliesDefaultsWithNoOverrides(t *testing.T) {
	ctx := newTestContext(t, nil)
	cfg, err := Load(ctx)
	require.NoError(t, err)
	require.Equal(t, Defaults, cfg)
}

func TestLoadFlagsOverrideFileWhichOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "lcm3.toml")
	require.NoError(t, os.WriteFile(file, []byte("[World]\nMapPath = \"maps/fromfile.bsp\"\nMaxClients = 32\nPVSDistance = 4096\n\n[Net]\nFrameMsec = 50\n"), 0644))

	ctx := newTestContext(t, []string{"--config", file, "--maxclients", "8"})
	cfg, err := Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "maps/fromfile.bsp", cfg.World.MapPath)
	require.Equal(t, int32(8), cfg.World.MaxClients, "flag must win over file")
	require.Equal(t, float32(4096), cfg.World.PVSDistance)
}

func TestLoadRejectsUnknownTOMLField(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "lcm3.toml")
	require.NoError(t, os.WriteFile(file, []byte("[World]\nBogusField = 1\n"), 0644))

	ctx := newTestContext(t, []string{"--config", file})
	_, err := Load(ctx)
	require.Error(t, err)
}

func TestInstallDefaultConfigDoesNotOverwriteExisting(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "template.toml")
	dst := filepath.Join(dir, "lcm3.toml")
	require.NoError(t, os.WriteFile(template, []byte("template"), 0644))
	require.NoError(t, os.WriteFile(dst, []byte("already here"), 0644))

	require.NoError(t, InstallDefaultConfig(template, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "already here", string(got))
}
