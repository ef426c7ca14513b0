package hal

import (
	"fmt"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

// HostConfig selects where the host console takes its input from.
type HostConfig struct {
	// TTY names a terminal device to read console input from. Empty means
	// the controlling terminal when stdin is one, and stdin itself otherwise.
	TTY string
	// NoInput leaves console input disconnected.
	NoInput bool
}

type hostHAL struct {
	logger *hostLogger
	fb     *hostFramebuffer
	kbd    *hostKeyboard
	t      *hostTime
	serial *hostSerial

	closers []func() error
}

func newHost(cfg HostConfig) (*hostHAL, error) {
	logger := &hostLogger{w: os.Stderr}
	h := &hostHAL{
		logger: logger,
		fb:     newHostFramebuffer(320, 320),
		kbd:    newHostKeyboard(),
		t:      newHostTime(),
		serial: newHostSerial(os.Stdout),
	}
	if cfg.NoInput {
		return h, nil
	}

	switch {
	case cfg.TTY != "" || isatty.IsTerminal(os.Stdin.Fd()):
		t, err := openTTY(cfg.TTY)
		if err != nil {
			return nil, fmt.Errorf("hal: open tty %q: %w", cfg.TTY, err)
		}
		h.serial.pumpTTY(t)
		h.closers = append(h.closers, t.Close)
	default:
		go h.serial.pump(os.Stdin)
	}
	return h, nil
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input     { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Time() Time       { return h.t }
func (h *hostHAL) Serial() Serial   { return h.serial }

// Close restores the terminal.
func (h *hostHAL) Close() error {
	var first error
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	h.closers = nil
	return first
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu sync.Mutex
	w  *os.File
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}
