// Copyright 2024 The lcm3 Authors
// This file is part of lcm3.
//
// lcm3 is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// lcm3 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with lcm3. If not, see <http://www.gnu.org/licenses/>.

// Package engcfg is the engine's TOML-backed configuration, loaded the way
// cmd/gprobe/config.go loads gprobeConfig: defaults first, then an optional
// file overlay, then command-line flags win last.
package engcfg

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/cespare/cp"
	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"
)

// tomlSettings keeps TOML keys identical to the Go struct field names, and
// turns an unrecognized field into a hard error instead of a silent typo.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// World holds the map and simulation limits applied at level load.
type World struct {
	MapPath         string
	MaxClients      int32
	PVSDistance     float32
}

// Net holds the fixed server tick period.
type Net struct {
	FrameMsec int32
}

// Config is the engine's full configuration, the TOML root.
type Config struct {
	World World
	Net   Net
}

// Defaults mirrors the fixed constants spec.md §6 names, used as the
// baseline before any file or flag overrides are applied.
var Defaults = Config{
	World: World{
		MapPath:     "maps/q3dm1.bsp",
		MaxClients:  64,
		PVSDistance: 8192,
	},
	Net: Net{
		FrameMsec: 50,
	},
}

var (
	// ConfigFileFlag names an optional TOML file to overlay on Defaults.
	ConfigFileFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	// MapFlag overrides World.MapPath.
	MapFlag = cli.StringFlag{
		Name:  "map",
		Usage: "map path to load at startup",
	}
	// MaxClientsFlag overrides World.MaxClients.
	MaxClientsFlag = cli.IntFlag{
		Name:  "maxclients",
		Usage: "maximum connected clients",
	}
	// FrameMsecFlag overrides Net.FrameMsec.
	FrameMsecFlag = cli.IntFlag{
		Name:  "frame-msec",
		Usage: "fixed server tick period in milliseconds",
	}
)

// Load reads file (if non-empty) over Defaults, then applies any flags set
// on ctx, matching makeConfigNode's defaults-then-file-then-flags order.
func Load(ctx *cli.Context) (Config, error) {
	cfg := Defaults

	if file := ctx.GlobalString(ConfigFileFlag.Name); file != "" {
		if err := loadFile(file, &cfg); err != nil {
			return Config{}, err
		}
	}

	if ctx.GlobalIsSet(MapFlag.Name) {
		cfg.World.MapPath = ctx.GlobalString(MapFlag.Name)
	}
	if ctx.GlobalIsSet(MaxClientsFlag.Name) {
		cfg.World.MaxClients = int32(ctx.GlobalInt(MaxClientsFlag.Name))
	}
	if ctx.GlobalIsSet(FrameMsecFlag.Name) {
		cfg.Net.FrameMsec = int32(ctx.GlobalInt(FrameMsecFlag.Name))
	}
	return cfg, nil
}

func loadFile(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// InstallDefaultConfig copies template (a bundled default config TOML)
// to dst if dst does not already exist, for a first-run experience that
// leaves the user with an editable starting file rather than nothing.
func InstallDefaultConfig(template, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return cp.CopyAll(dst, template)
}

// Dump renders cfg back to TOML, for a "dumpconfig"-style diagnostic
// command.
func Dump(cfg Config) ([]byte, error) {
	return tomlSettings.Marshal(&cfg)
}
