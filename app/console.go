package app

import (
	"bytes"
	"io"
	"strings"

	"github.com/hashicorp/go-hclog"

	"strideos/hal"
)

// teeConsole writes to the serial port and mirrors output on the screen.
// Input comes from the serial port only.
type teeConsole struct {
	serial hal.Serial
	screen io.Writer
}

func (c *teeConsole) Write(p []byte) (int, error) {
	if c.screen != nil {
		_, _ = c.screen.Write(p)
	}
	if c.serial == nil {
		return len(p), nil
	}
	return c.serial.Write(p)
}

func (c *teeConsole) TryRead() (byte, bool) {
	if c.serial == nil {
		return 0, false
	}
	return c.serial.TryRead()
}

// lineWriter hands each complete line to a hal.Logger.
type lineWriter struct {
	l   hal.Logger
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.l.WriteLineBytes(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) == 0 {
		w.buf = nil
	}
	return len(p), nil
}

func newLogger(l hal.Logger, level string) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	lvl := hclog.LevelFromString(strings.TrimSpace(level))
	if lvl == hclog.NoLevel {
		lvl = hclog.Warn
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "strideos",
		Level:  lvl,
		Output: &lineWriter{l: l},
	})
}
