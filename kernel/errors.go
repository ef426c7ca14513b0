package kernel

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRunnableTask ends a run: every task has finished or none can be
	// scheduled.
	ErrNoRunnableTask = errors.New("kernel: no runnable task")
	ErrUnknownSyscall = errors.New("kernel: unknown syscall")
	ErrUnhandledTrap  = errors.New("kernel: unsupported trap")
	ErrReapAliased    = errors.New("kernel: reaped task is still referenced")
	ErrTooManyTasks   = errors.New("kernel: task arena full")
	ErrNoConsole      = errors.New("kernel: no console configured")
	ErrNothingToBoot  = errors.New("kernel: boot list is empty")
	ErrNotBooted      = errors.New("kernel: not booted")
	ErrAlreadyBooted  = errors.New("kernel: already booted")
)

// HaltError is returned once the kernel has stopped. Pid is the task that was
// current at the time, or -1.
type HaltError struct {
	Pid    int
	Reason error
}

func (e *HaltError) Error() string {
	if e.Pid < 0 {
		return fmt.Sprintf("kernel halted: %v", e.Reason)
	}
	return fmt.Sprintf("kernel halted in pid %d: %v", e.Pid, e.Reason)
}

func (e *HaltError) Unwrap() error { return e.Reason }
