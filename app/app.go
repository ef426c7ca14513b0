// Package app assembles a machine out of a HAL and the kernel.
package app

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"strideos/console"
	"strideos/hal"
	"strideos/kernel"
	"strideos/kernel/fs"
	"strideos/kernel/loader"
	"strideos/user/apps"
)

// DefaultStepsPerFrame is how many kernel steps one app step runs.
const DefaultStepsPerFrame = 256

type Config struct {
	// Apps resolves application names. Nil uses the bundled applications.
	Apps *loader.Registry
	// Boot lists the applications to load. Nil uses apps.DefaultBoot.
	Boot []string

	LogLevel      string
	StepBudget    int
	StepsPerFrame int

	// NoScreen keeps console output off the framebuffer.
	NoScreen bool
	// KeepAlive makes the step function swallow the halt, so a window stays
	// up showing the final console.
	KeepAlive bool
}

// System is a booted machine.
type System struct {
	h   hal.HAL
	k   *kernel.Kernel
	con fs.Console
	log hclog.Logger

	stepsPerFrame int
	done          bool
}

// NewSystem boots the configured applications on h.
func NewSystem(h hal.HAL, cfg Config) (*System, error) {
	if cfg.Apps == nil {
		cfg.Apps = apps.Registry()
	}
	if cfg.Boot == nil {
		cfg.Boot = apps.DefaultBoot
	}
	if cfg.StepsPerFrame <= 0 {
		cfg.StepsPerFrame = DefaultStepsPerFrame
	}

	log := newLogger(h.Logger(), cfg.LogLevel)
	con := systemConsole(h, cfg.NoScreen)

	var clock func() uint64
	if t := h.Time(); t != nil {
		clock = t.Micros
	}
	k, err := kernel.New(kernel.Config{
		Console:    con,
		Clock:      clock,
		Logger:     log,
		Apps:       cfg.Apps,
		Boot:       cfg.Boot,
		StepBudget: cfg.StepBudget,
	})
	if err != nil {
		return nil, err
	}
	s := &System{h: h, k: k, con: con, log: log, stepsPerFrame: cfg.StepsPerFrame}
	installPanicHandler(s)

	if err := k.Boot(); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return s, nil
}

// Step runs up to one frame of kernel steps. It returns the kernel's halt
// error once the machine stops.
func (s *System) Step() error {
	if err := s.k.Halted(); err != nil {
		return err
	}
	for i := 0; i < s.stepsPerFrame; i++ {
		if err := s.k.Step(); err != nil {
			if !s.done {
				s.done = true
				s.report(err)
			}
			return err
		}
	}
	return nil
}

// report announces how the machine stopped.
func (s *System) report(err error) {
	if errors.Is(err, kernel.ErrNoRunnableTask) {
		fmt.Fprintln(s.con, "All applications completed!")
		return
	}
	fmt.Fprintf(s.con, "[kernel] halted: %v\n", err)
}

// NewWithConfig boots a system on h and returns its step function. A boot
// failure is returned by the first step.
func NewWithConfig(h hal.HAL, cfg Config) func() error {
	s, err := NewSystem(h, cfg)
	if err != nil {
		return func() error { return err }
	}
	return func() error {
		err := s.Step()
		if err != nil && cfg.KeepAlive {
			return nil
		}
		return err
	}
}

// New boots the default applications on h.
func New(h hal.HAL) func() error {
	return NewWithConfig(h, Config{})
}

// systemConsole returns the device behind every task's stdin and stdout.
func systemConsole(h hal.HAL, noScreen bool) fs.Console {
	tc := &teeConsole{serial: h.Serial()}
	if noScreen {
		return tc
	}
	if d := h.Display(); d != nil {
		if fb := d.Framebuffer(); fb != nil {
			tc.screen = console.New(fb, nil)
		}
	}
	return tc
}
