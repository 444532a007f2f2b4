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

// Command lcm3d is the engine's server/client host process. It runs the
// startup bootstrap spec.md §6 describes: load both guest images, run the
// boot configuration script, build the world's sectors, settle a handful
// of warmup ticks, connect the loopback client, and start the client-game
// guest. The two independent, blocking image loads run concurrently via
// errgroup; the rest of the sequence is strictly ordered. No filesystem is
// mounted; image paths are read straight from disk.
package main

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/urfave/cli.v1"

	"github.com/lcm3/engine/internal/console"
	"github.com/lcm3/engine/internal/confstr"
	"github.com/lcm3/engine/internal/cvars"
	"github.com/lcm3/engine/internal/debugapi"
	"github.com/lcm3/engine/internal/engcfg"
	"github.com/lcm3/engine/internal/geom"
	"github.com/lcm3/engine/internal/loop"
	"github.com/lcm3/engine/internal/netchan"
	"github.com/lcm3/engine/internal/snapshot"
	"github.com/lcm3/engine/internal/syscall"
	"github.com/lcm3/engine/internal/vlog"
	"github.com/lcm3/engine/internal/vm"
	"github.com/lcm3/engine/internal/world"
)

const settleTicks = 10

func main() {
	app := cli.NewApp()
	app.Name = "lcm3d"
	app.Usage = "run the lcm3 engine host process"
	app.Flags = []cli.Flag{
		engcfg.ConfigFileFlag,
		engcfg.MapFlag,
		engcfg.MaxClientsFlag,
		engcfg.FrameMsecFlag,
		cli.StringFlag{Name: "bootscript", Usage: "boot configuration script path"},
		cli.StringFlag{Name: "serverqvm", Usage: "server-game guest image path"},
		cli.StringFlag{Name: "clientqvm", Usage: "client-game guest image path"},
		cli.StringFlag{Name: "debug-http", Usage: "bind address for the opt-in debug HTTP surface (empty disables it)"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		vlog.Crit("lcm3d exiting", "err", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	log := vlog.New("module", "main")

	cfg, err := engcfg.Load(ctx)
	if err != nil {
		return err
	}

	cvarRegistry := cvars.New()
	strings := confstr.New()
	con := console.New(os.Stdout, cvarRegistry)

	// Both guest image loads are independent, blocking reads; they have
	// no ordering dependency on each other.
	var serverImg, clientImg *vm.Image
	group, _ := errgroup.WithContext(context.Background())
	group.Go(func() error {
		img, err := vm.LoadFile(ctx.GlobalString("serverqvm"))
		if err != nil {
			return err
		}
		serverImg = img
		return nil
	})
	group.Go(func() error {
		img, err := vm.LoadFile(ctx.GlobalString("clientqvm"))
		if err != nil {
			return err
		}
		clientImg = img
		return nil
	})
	if err := group.Wait(); err != nil {
		return err
	}

	// From here, steps are strictly ordered: boot script before the
	// world exists (cvars only), then the world, then the guests that
	// consult it, then settle ticks, then the loopback connection.
	if path := ctx.GlobalString("bootscript"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		err = con.RunScript(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	bounds := geom.Bounds{
		Mins: geom.Vec3{-8192, -8192, -8192},
		Maxs: geom.Vec3{8192, 8192, 8192},
	}
	gameWorld := world.New(bounds, world.NullCollider{})

	serverRouter := syscall.NewServerGame(cvarRegistry, strings, gameWorld, nil, con)
	serverVM := vm.New(serverImg, serverRouter, "server-game")

	clientRouter := syscall.NewClientGame(nil, nil, nil, nil)
	clientVM := vm.New(clientImg, clientRouter, "client-game")

	snapshots := snapshot.New(nil)
	server := loop.NewServer(serverVM, snapshots)
	serverRouter.Clients = server

	if err := server.Init(0); err != nil {
		return err
	}
	for i := 0; i < settleTicks; i++ {
		if err := server.Advance(time.Duration(loop.FrameMsec)*time.Millisecond, nil); err != nil {
			return err
		}
	}

	srvChan, cliChan := netchan.NewPair("loopback")
	conn := netchan.NewConnection()
	conn.BeginConnecting()
	server.Clients[0] = &loop.ServerClient{Num: 0, Channel: srvChan, Conn: conn, Active: true}

	client := loop.NewClient(clientVM, cliChan, conn)
	if err := client.Init(); err != nil {
		return err
	}

	if addr := ctx.GlobalString("debug-http"); addr != "" {
		dbg := debugapi.New(server, nil, nil, nil)
		go func() {
			if err := dbg.Start(addr); err != nil {
				log.Warn("debug http surface stopped", "err", err)
			}
		}()
	}

	log.Info("lcm3d bootstrap complete", "map", cfg.World.MapPath, "maxClients", cfg.World.MaxClients)
	return serveForever(server)
}

// serveForever runs the fixed-tick server loop until interrupted. A real
// deployment wires this to a signal handler; kept minimal here since the
// engine's own tests exercise Advance directly.
func serveForever(server *loop.Server) error {
	ticker := time.NewTicker(time.Duration(loop.FrameMsec) * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if err := server.Advance(time.Duration(loop.FrameMsec)*time.Millisecond, nil); err != nil {
			return err
		}
	}
	return nil
}
