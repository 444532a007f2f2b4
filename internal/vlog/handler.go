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

package vlog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Format renders a Record to bytes.
type Format func(r *Record) []byte

// StreamHandler writes formatted records to w, one per Log call,
// serialized by a mutex (multiple goroutines may log concurrently: the
// loop's server/client ticks and syscall handlers all reach vlog).
func StreamHandler(w io.Writer, fmtr Format) Handler {
	return &streamHandler{w: w, fmtr: fmtr}
}

type streamHandler struct {
	mu   sync.Mutex
	w    io.Writer
	fmtr Format
}

func (h *streamHandler) Log(r *Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(h.fmtr(r))
	return err
}

var lvlColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// TerminalFormat renders records as "LVL[timestamp] msg k=v k=v ...",
// colorizing the level when useColor is true. It does not check the
// destination itself; fatih/color drops the escape codes on its own when
// its NoColor switch is set (by default, when stdout is not a terminal).
func TerminalFormat(useColor bool) Format {
	return func(r *Record) []byte {
		ts := r.Time.Format("15:04:05.000")
		lvl := r.Lvl.String()
		if useColor {
			if c, ok := lvlColor[r.Lvl]; ok {
				lvl = c.Sprint(lvl)
			}
		}
		line := fmt.Sprintf("%-5s[%s] %s", lvl, ts, r.Msg)
		for i := 0; i+1 < len(r.Ctx); i += 2 {
			line += fmt.Sprintf(" %v=%v", r.Ctx[i], r.Ctx[i+1])
		}
		return append([]byte(line), '\n')
	}
}

// StderrIsTerminal reports whether os.Stderr is attached to a real
// terminal, used to decide whether TerminalFormat should colorize.
func StderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewColorableStderr wraps os.Stderr so ANSI color sequences render
// correctly on Windows consoles too (a no-op passthrough on platforms that
// already support ANSI natively).
func NewColorableStderr() io.Writer {
	return colorable.NewColorableStderr()
}
