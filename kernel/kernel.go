// Package kernel is the core of strideos: the task control block, the
// stride scheduler, trap classification and the syscall layer.
//
// The kernel is driven from outside. Boot loads the boot applications and
// enters the first one; every Step then lets the current task run on the
// hart until it traps (or its instruction budget is spent) and handles the
// trap. A run ends when Step returns an error, normally a *HaltError
// wrapping ErrNoRunnableTask once every application has finished.
package kernel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"strideos/kernel/hart"
)

// Kernel is one booted machine.
type Kernel struct {
	cfg  Config
	hart *hart.Hart
	mgr  *Manager

	log      hclog.Logger
	trapLog  hclog.Logger
	sysLog   hclog.Logger
	syscalls map[uint64]syscallDesc

	booted bool
	halted error

	panicActive  atomic.Bool
	panicOnce    sync.Once
	panicHandler atomic.Value // func(PanicInfo)
}

// New creates a kernel for cfg. Nothing runs until Boot.
func New(cfg Config) (*Kernel, error) {
	if cfg.Console == nil {
		return nil, ErrNoConsole
	}
	cfg.setDefaults()

	log := cfg.Logger.Named("kernel")
	h := hart.New()
	k := &Kernel{
		cfg:     cfg,
		hart:    h,
		log:     log,
		trapLog: log.Named("trap"),
		sysLog:  log.Named("syscall"),
		mgr:     NewManager(h, cfg.MaxTasks, log.Named("sched")),
	}
	k.syscalls = syscallTable()
	return k, nil
}

// Boot loads the configured boot applications in order and switches into the
// first one.
func (k *Kernel) Boot() error {
	if k.booted {
		return ErrAlreadyBooted
	}
	if len(k.cfg.Boot) == 0 {
		return ErrNothingToBoot
	}
	for _, name := range k.cfg.Boot {
		img, err := k.cfg.Apps.Lookup(name)
		if err != nil {
			return fmt.Errorf("boot: %w", err)
		}
		pid := k.mgr.pids.alloc()
		t, err := newTask(pid, img, k.cfg.Console)
		if err != nil {
			k.mgr.pids.dealloc(pid)
			return fmt.Errorf("boot: %w", err)
		}
		if _, err := k.mgr.Add(t); err != nil {
			k.mgr.pids.dealloc(pid)
			return fmt.Errorf("boot %q: %w", name, err)
		}
		k.log.Info("loaded application", "name", name, "pid", pid)
	}
	if err := k.mgr.RunFirstTask(); err != nil {
		return err
	}
	k.booted = true
	return nil
}

// Step runs the current task until its next trap and handles it. Once the
// kernel has halted every call returns the same *HaltError.
func (k *Kernel) Step() (err error) {
	if k.halted != nil {
		return k.halted
	}
	if !k.booted {
		return ErrNotBooted
	}
	defer k.recoverHalt(&err)

	tr, trapped := k.hart.Enter(k.cfg.StepBudget)
	if !trapped {
		return nil
	}
	k.handleTrap(tr)
	return nil
}

// Run steps the kernel until it halts or ctx is done.
func (k *Kernel) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := k.Step(); err != nil {
			return err
		}
	}
}

// Halted returns the error the kernel stopped with, or nil.
func (k *Kernel) Halted() error { return k.halted }

// consolef prints a kernel diagnostic on the console.
func (k *Kernel) consolef(format string, args ...any) {
	_, _ = fmt.Fprintf(k.cfg.Console, format, args...)
}
