package kernel

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"strideos/kernel/fs"
	"strideos/kernel/loader"
)

const (
	// BigStride is divided by a task's priority to get its stride increment.
	BigStride uint64 = 1 << 20
	// DefaultPriority is the priority of a freshly loaded task.
	DefaultPriority int64 = 16
	// MaxPriority is the largest priority whose pass BigStride/priority is
	// still nonzero.
	MaxPriority = int64(BigStride)
	// MaxTasks bounds the task arena.
	MaxTasks = 64
	// DefaultStepBudget is how many instructions Step lets a task retire
	// before handing control back to the caller. Running out is not a
	// scheduling event; the same task continues on the next Step.
	DefaultStepBudget = 4096
)

// Config describes the machine the kernel runs on and what it boots.
type Config struct {
	// Console backs stdin and stdout of every task and receives kernel
	// diagnostics.
	Console fs.Console
	// Clock returns microseconds since boot. Nil uses the host monotonic
	// clock.
	Clock func() uint64
	// Logger receives kernel logs. Nil discards them.
	Logger hclog.Logger

	// Apps resolves application names for boot and exec.
	Apps *loader.Registry
	// Boot lists the applications loaded at boot, in slot order. The first
	// one is the init task.
	Boot []string

	MaxTasks   int
	StepBudget int
}

func (c *Config) setDefaults() {
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	if c.Clock == nil {
		start := time.Now()
		c.Clock = func() uint64 { return uint64(time.Since(start).Microseconds()) }
	}
	if c.MaxTasks <= 0 {
		c.MaxTasks = MaxTasks
	}
	if c.StepBudget <= 0 {
		c.StepBudget = DefaultStepBudget
	}
	if c.Apps == nil {
		c.Apps = loader.NewRegistry()
	}
}
