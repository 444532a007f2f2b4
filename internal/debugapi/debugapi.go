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

// Package debugapi is a small, opt-in HTTP surface for local tooling: a
// dashboard or inspector running on the same machine can poll engine
// state or stream reliable server commands over a websocket, without the
// engine itself depending on any particular UI. Off by default; wired up
// only when a server is started with the debug-http flag.
package debugapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjl/memsize"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/lcm3/engine/internal/snapshot"
	"github.com/lcm3/engine/internal/vlog"
)

// StatusSource is the live engine state the /status endpoint reports.
type StatusSource interface {
	LevelTime() int32
}

// MemorySource is scanned with memsize to report the live byte footprint
// of the VM data memory and the snapshot ring, the way the teacher's
// state-DB memory reporting uses memsize.Scan on its trie/DB roots.
type MemorySource interface {
	MemoryRoots() []interface{}
}

// EntitiesSource lists the current tick's linked entities for /entities.
type EntitiesSource interface {
	Entities() []snapshot.EntityView
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server is the debug HTTP surface. It is never required for the engine
// to run a game; Start is only called when an operator opts in.
type Server struct {
	Status   StatusSource
	Memory   MemorySource
	Entities EntitiesSource
	Commands <-chan string

	httpServer *http.Server
	log        vlog.Logger
}

// New builds a debug server around the given collaborators. commands
// feeds the websocket stream of reliable server commands; it may be nil
// if nothing produces one yet.
func New(status StatusSource, memSrc MemorySource, entities EntitiesSource, commands <-chan string) *Server {
	return &Server{Status: status, Memory: memSrc, Entities: entities, Commands: commands, log: vlog.New("module", "debugapi")}
}

// Start binds addr and serves until Stop is called. CORS is wide open
// since the only intended client is a local web UI on a different port.
func (s *Server) Start(addr string) error {
	router := httprouter.New()
	router.GET("/status", s.handleStatus)
	router.GET("/entities", s.handleEntities)
	router.GET("/snapshot/:n", s.handleMemory)
	router.GET("/stream", s.handleStream)

	handler := cors.Default().Handler(router)
	s.httpServer = &http.Server{Addr: addr, Handler: handler}
	s.log.Info("debug http surface listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the HTTP surface down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	status := struct {
		LevelTime int32   `json:"levelTime"`
		CPUPercent float64 `json:"cpuPercent,omitempty"`
		MemUsedPercent float64 `json:"memUsedPercent,omitempty"`
	}{}
	if s.Status != nil {
		status.LevelTime = s.Status.LevelTime()
	}
	if pct, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pct) > 0 {
		status.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status.MemUsedPercent = vm.UsedPercent
	}
	writeJSON(w, status)
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var rows []snapshot.EntityView
	if s.Entities != nil {
		rows = s.Entities.Entities()
	}
	writeJSON(w, rows)
}

// handleMemory reports the live byte footprint of the engine's memory
// roots (VM data memory, snapshot ring), mirroring the teacher's memsize
// based state reporting. The ":n" path parameter is unused here; it
// mirrors the snapshot sequence number a richer inspector would request.
func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var roots []interface{}
	if s.Memory != nil {
		roots = s.Memory.MemoryRoots()
	}
	sizes := memsize.Scan(roots)
	writeJSON(w, struct {
		TotalBytes uint64 `json:"totalBytes"`
	}{TotalBytes: uint64(sizes.Total)})
}

// handleStream upgrades to a websocket and forwards every reliable
// server command received on s.Commands until the connection closes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	if s.Commands == nil {
		return
	}
	for cmd := range s.Commands {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
