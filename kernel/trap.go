package kernel

import (
	"fmt"

	"strideos/kernel/abi"
	"strideos/kernel/hart"
	"strideos/kernel/isa"
)

// handleTrap is the kernel-mode half of the trap state machine. It runs with
// the trapping task current and returns with whichever task should run next
// installed on the hart.
func (k *Kernel) handleTrap(tr hart.Trap) {
	t := k.mgr.Current()
	switch tr.Cause {
	case isa.UserEnvCall:
		in := t.Exclusive()
		cx := in.trap
		cx.Sepc += isa.InstBytes
		id := cx.X[abi.RegID]
		args := [3]uint64{cx.X[abi.RegArg0], cx.X[abi.RegArg1], cx.X[abi.RegArg2]}
		t.Release()

		ret := k.syscall(id, args)

		// exec may have replaced the trap context, so look it up again.
		in = t.Exclusive()
		if !in.status.terminal() && in.trap != nil {
			in.trap.X[abi.RegResult] = uint64(ret)
		}
		t.Release()

	case isa.StoreFault, isa.StorePageFault:
		k.consolef("[kernel] PageFault in application, bad addr = %#x, core dumped.\n", tr.Stval)
		k.trapLog.Warn("page fault", "pid", t.Pid(), "cause", tr.Cause, "stval", fmt.Sprintf("%#x", tr.Stval))
		k.exitCurrent(abi.ExitPageFault)

	case isa.IllegalInstruction:
		k.consolef("[kernel] IllegalInstruction in application, core dumped.\n")
		k.trapLog.Warn("illegal instruction", "pid", t.Pid(), "pc", fmt.Sprintf("%#x", tr.Stval))
		k.exitCurrent(abi.ExitIllegalInstruction)

	default:
		k.halt(fmt.Errorf("%w: %s, stval = %#x", ErrUnhandledTrap, tr.Cause, tr.Stval))
	}
}

// suspendCurrent puts the current task back in the Ready set and schedules.
func (k *Kernel) suspendCurrent() {
	k.mgr.MarkCurrentSuspended()
	k.schedule()
}

// exitCurrent terminates the current task with code and schedules.
func (k *Kernel) exitCurrent(code int32) {
	k.mgr.MarkCurrentExited(code)
	k.schedule()
}

func (k *Kernel) schedule() {
	if err := k.mgr.RunNextTask(); err != nil {
		k.halt(err)
	}
}
