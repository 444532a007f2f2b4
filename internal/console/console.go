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

// Package console is the engine's admin surface (spec.md §9 "Singletons"
// reshapes the source's global console/CVar/command system into this
// explicit, owned component): an interactive command buffer built on
// github.com/peterh/liner for line editing, and
// github.com/olekukonko/tablewriter to render the entity and cvar tables a
// server operator asks for. It also runs the "boot configuration script"
// spec.md §6 lists as a startup step — a flat file of commands executed
// in order before the first frame.
package console

import (
	"bufio"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"

	"github.com/lcm3/engine/internal/vlog"
)

// CvarSource is the subset of cvars.Registry the console needs to render
// the cvar table and to run "set" commands.
type CvarSource interface {
	Snapshot() map[string]string
	Set(name, value string)
}

// EntityRow is one row of the entity table (num, origin, linked state),
// supplied by whatever collects it from internal/world at the moment the
// "entities" command runs.
type EntityRow struct {
	Num    int32
	Origin string
	Linked bool
}

// Command is one named admin command, e.g. "set", "map", "entities".
type Command struct {
	Name string
	Run  func(args []string) string
}

// Console owns the command buffer, the registered commands, and output.
// It implements the server-game syscall router's Console interface via
// Print, so guest Printf/Error calls land in the same place as operator
// commands.
type Console struct {
	out      io.Writer
	cvars    CvarSource
	commands map[string]*Command
	log      vlog.Logger
}

// New wires a console to its output stream and cvar registry. out is
// typically os.Stdout for an interactive session, or a buffer in tests.
func New(out io.Writer, cvars CvarSource) *Console {
	c := &Console{out: out, cvars: cvars, commands: make(map[string]*Command), log: vlog.New("module", "console")}
	c.Register(&Command{Name: "set", Run: c.cmdSet})
	c.Register(&Command{Name: "cvarlist", Run: c.cmdCvarList})
	return c
}

// Register adds or replaces a named command.
func (c *Console) Register(cmd *Command) {
	c.commands[cmd.Name] = cmd
}

// Print implements syscall.Console: guest VM_Print/VM_Error text is
// written straight to the console's output stream.
func (c *Console) Print(text string) {
	io.WriteString(c.out, text)
	if !strings.HasSuffix(text, "\n") {
		io.WriteString(c.out, "\n")
	}
}

// Execute runs one whitespace-split command line, returning its output
// (empty for an unknown command, which is only logged, not an error: a
// boot script referencing a command built into a later engine version
// should not abort the whole script).
func (c *Console) Execute(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	cmd, ok := c.commands[fields[0]]
	if !ok {
		c.log.Warn("unknown console command", "name", fields[0])
		return ""
	}
	return cmd.Run(fields[1:])
}

// RunScript executes a boot configuration script (spec.md §6), one
// command per non-empty, non-comment line, in order. A line beginning
// with "//" is a comment.
func (c *Console) RunScript(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if out := c.Execute(line); out != "" {
			c.Print(out)
		}
	}
	return scanner.Err()
}

// Interactive runs a line-edited REPL on in/out until the stream closes
// or "quit" is entered, used for an attached operator terminal.
func (c *Console) Interactive(prompt string) error {
	state := liner.NewLiner()
	defer state.Close()
	state.SetCtrlCAborts(true)

	for {
		line, err := state.Prompt(prompt)
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		state.AppendHistory(line)
		if strings.TrimSpace(line) == "quit" {
			return nil
		}
		if out := c.Execute(line); out != "" {
			c.Print(out)
		}
	}
}

// PrintCvarTable renders every registered cvar, sorted by name, as a
// table on the console's output stream.
func (c *Console) PrintCvarTable() {
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Name", "Value"})

	snap := c.cvars.Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		table.Append([]string{name, snap[name]})
	}
	table.Render()
}

// PrintEntityTable renders rows as a table on the console's output
// stream, for a "entities" admin command.
func (c *Console) PrintEntityTable(rows []EntityRow) {
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Num", "Origin", "Linked"})
	for _, row := range rows {
		linked := "no"
		if row.Linked {
			linked = "yes"
		}
		table.Append([]string{strconv.Itoa(int(row.Num)), row.Origin, linked})
	}
	table.Render()
}

func (c *Console) cmdSet(args []string) string {
	if len(args) < 2 {
		return "usage: set <name> <value>"
	}
	c.cvars.Set(args[0], strings.Join(args[1:], " "))
	return ""
}

func (c *Console) cmdCvarList(args []string) string {
	c.PrintCvarTable()
	return ""
}
