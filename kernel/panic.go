package kernel

import (
	"fmt"
	"runtime/debug"
)

// PanicInfo contains details about a kernel halt.
type PanicInfo struct {
	TaskID int
	Value  any
	Stack  []byte
}

// InPanicMode reports whether the kernel has halted.
func (k *Kernel) InPanicMode() bool {
	return k.panicActive.Load()
}

// SetPanicHandler installs the handler run when the kernel halts.
//
// The handler is invoked at most once (on the first halt). It must not panic.
func (k *Kernel) SetPanicHandler(fn func(PanicInfo)) {
	k.panicHandler.Store(fn)
}

func (k *Kernel) triggerPanic(info PanicInfo) {
	k.panicOnce.Do(func() {
		k.panicActive.Store(true)
		info.Stack = debug.Stack()
		if v := k.panicHandler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(info)
			}
		}
	})
}

// halt stops the kernel. It unwinds to Step, which reports err.
func (k *Kernel) halt(err error) {
	pid := -1
	if t := k.mgr.Current(); t != nil {
		pid = t.Pid()
	}
	panic(&HaltError{Pid: pid, Reason: err})
}

// recoverHalt converts a halt, or any other panic raised while handling a
// trap, into the error Step returns.
func (k *Kernel) recoverHalt(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	var he *HaltError
	switch v := r.(type) {
	case *HaltError:
		he = v
	case error:
		he = &HaltError{Pid: -1, Reason: v}
	default:
		he = &HaltError{Pid: -1, Reason: fmt.Errorf("kernel: unexpected panic: %v", v)}
	}
	if he.Pid < 0 {
		if t := k.mgr.Current(); t != nil {
			he.Pid = t.Pid()
		}
	}
	k.log.Error("halt", "pid", he.Pid, "reason", he.Reason)
	k.triggerPanic(PanicInfo{TaskID: he.Pid, Value: r})
	k.halted = he
	*errp = he
}
