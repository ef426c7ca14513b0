// Package hart models the single hardware thread the kernel runs on: the
// user register file, user-mode execution until the next trap, and the
// privileged switch primitive that moves the hart between tasks.
package hart

import (
	"errors"

	"strideos/kernel/isa"
)

// TrapContext is the user register file saved on trap entry and restored on
// return to user mode.
type TrapContext struct {
	X    [32]uint64
	Sepc uint64
}

// NewTrapContext returns the initial register file of a freshly loaded image.
func NewTrapContext(entry, sp uint64) *TrapContext {
	cx := &TrapContext{Sepc: entry}
	cx.X[isa.SP] = sp
	return cx
}

// Memory is the address space the hart executes in.
type Memory interface {
	Fetch(va uint64) (isa.Inst, error)
	Load(va uint64, size int) (uint64, error)
	Store(va uint64, size int, v uint64) error
}

// TaskContext is what the switch primitive saves for an outgoing task and
// loads for an incoming one.
type TaskContext struct {
	Trap  *TrapContext
	Space Memory
}

// Trap describes why user execution stopped.
type Trap struct {
	Cause isa.Cause
	Stval uint64
}

// Hart executes one task at a time.
type Hart struct {
	active    *TaskContext
	switching bool
	retired   uint64
}

// New returns an idle hart.
func New() *Hart {
	return &Hart{}
}

var errSwitchReentered = errors.New("hart: switch primitive reentered")

// Switch saves the running task's state into prev and makes next the task the
// hart executes on its next Enter. It is the only way control moves between
// tasks and it must not be reentered.
func (h *Hart) Switch(prev, next *TaskContext) {
	if h.switching {
		panic(errSwitchReentered)
	}
	h.switching = true
	defer func() { h.switching = false }()

	if prev != nil && h.active != nil && prev != h.active {
		*prev = *h.active
	}
	h.active = next
}

// Active returns the context the hart is currently executing.
func (h *Hart) Active() *TaskContext { return h.active }

// Retired returns the number of instructions completed so far.
func (h *Hart) Retired() uint64 { return h.retired }

// Enter runs the active task in user mode for at most budget instructions.
// It reports the trap that ended execution, or false if the budget ran out
// first. The register file is written back to the task's TrapContext either
// way.
func (h *Hart) Enter(budget int) (Trap, bool) {
	tc := h.active
	if tc == nil || tc.Trap == nil || tc.Space == nil {
		return Trap{Cause: isa.InstructionFault}, true
	}

	regs := *tc.Trap
	defer func() { *tc.Trap = regs }()

	for i := 0; i < budget; i++ {
		inst, err := tc.Space.Fetch(regs.Sepc)
		if err != nil {
			return faultTrap(err, isa.InstructionPageFault, regs.Sepc), true
		}
		if tr, trapped := step(&regs, tc.Space, inst); trapped {
			return tr, true
		}
		regs.X[isa.Zero] = 0
		h.retired++
	}
	return Trap{}, false
}

func step(regs *TrapContext, mem Memory, in isa.Inst) (Trap, bool) {
	pc := regs.Sepc
	next := pc + isa.InstBytes
	x := &regs.X

	switch in.Op {
	case isa.OpLi:
		x[in.Rd] = uint64(in.Imm)
	case isa.OpAddi:
		x[in.Rd] = x[in.Rs1] + uint64(in.Imm)
	case isa.OpAdd:
		x[in.Rd] = x[in.Rs1] + x[in.Rs2]
	case isa.OpSub:
		x[in.Rd] = x[in.Rs1] - x[in.Rs2]
	case isa.OpLd, isa.OpLbu:
		size := 8
		if in.Op == isa.OpLbu {
			size = 1
		}
		addr := x[in.Rs1] + uint64(in.Imm)
		v, err := mem.Load(addr, size)
		if err != nil {
			return faultTrap(err, isa.LoadPageFault, addr), true
		}
		x[in.Rd] = v
	case isa.OpSd, isa.OpSb:
		size := 8
		if in.Op == isa.OpSb {
			size = 1
		}
		addr := x[in.Rs1] + uint64(in.Imm)
		if err := mem.Store(addr, size, x[in.Rs2]); err != nil {
			return faultTrap(err, isa.StorePageFault, addr), true
		}
	case isa.OpBeq, isa.OpBne, isa.OpBlt, isa.OpBge:
		if branchTaken(in.Op, x[in.Rs1], x[in.Rs2]) {
			next = pc + uint64(in.Imm)
		}
	case isa.OpJal:
		x[in.Rd] = next
		next = pc + uint64(in.Imm)
	case isa.OpEcall:
		return Trap{Cause: isa.UserEnvCall}, true
	default:
		return Trap{Cause: isa.IllegalInstruction, Stval: pc}, true
	}

	regs.Sepc = next
	return Trap{}, false
}

func branchTaken(op isa.Op, a, b uint64) bool {
	switch op {
	case isa.OpBeq:
		return a == b
	case isa.OpBne:
		return a != b
	case isa.OpBlt:
		return int64(a) < int64(b)
	default:
		return int64(a) >= int64(b)
	}
}

func faultTrap(err error, fallback isa.Cause, addr uint64) Trap {
	var f *isa.Fault
	if errors.As(err, &f) {
		return Trap{Cause: f.Cause, Stval: f.Addr}
	}
	return Trap{Cause: fallback, Stval: addr}
}
