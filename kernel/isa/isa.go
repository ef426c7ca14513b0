// Package isa describes the instruction set executed by the simulated hart.
//
// It is a small RV64-flavoured subset: 32 integer registers with the RISC-V
// ABI names, fixed 4-byte instructions and the supervisor exception codes
// reported in scause.
package isa

import "fmt"

// InstBytes is the width of one instruction in the text segment.
const InstBytes = 4

// Reg names an integer register.
type Reg uint8

const (
	Zero Reg = iota
	RA
	SP
	GP
	TP
	T0
	T1
	T2
	S0
	S1
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	T3
	T4
	T5
	T6
)

var regNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return fmt.Sprintf("x%d", uint8(r))
}

// Op is an instruction opcode.
type Op uint8

const (
	OpUnimp Op = iota
	OpLi
	OpAddi
	OpAdd
	OpSub
	OpLd
	OpSd
	OpLbu
	OpSb
	OpBeq
	OpBne
	OpBlt
	OpBge
	OpJal
	OpEcall
)

var opNames = [...]string{
	OpUnimp: "unimp",
	OpLi:    "li",
	OpAddi:  "addi",
	OpAdd:   "add",
	OpSub:   "sub",
	OpLd:    "ld",
	OpSd:    "sd",
	OpLbu:   "lbu",
	OpSb:    "sb",
	OpBeq:   "beq",
	OpBne:   "bne",
	OpBlt:   "blt",
	OpBge:   "bge",
	OpJal:   "jal",
	OpEcall: "ecall",
}

func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Inst is one decoded instruction. Branch and jump immediates are byte
// offsets relative to the instruction's own address.
type Inst struct {
	Op  Op
	Rd  Reg
	Rs1 Reg
	Rs2 Reg
	Imm int64
}

func (in Inst) String() string {
	switch in.Op {
	case OpLi:
		return fmt.Sprintf("li %s, %d", in.Rd, in.Imm)
	case OpAddi:
		return fmt.Sprintf("addi %s, %s, %d", in.Rd, in.Rs1, in.Imm)
	case OpAdd, OpSub:
		return fmt.Sprintf("%s %s, %s, %s", in.Op, in.Rd, in.Rs1, in.Rs2)
	case OpLd, OpLbu:
		return fmt.Sprintf("%s %s, %d(%s)", in.Op, in.Rd, in.Imm, in.Rs1)
	case OpSd, OpSb:
		return fmt.Sprintf("%s %s, %d(%s)", in.Op, in.Rs2, in.Imm, in.Rs1)
	case OpBeq, OpBne, OpBlt, OpBge:
		return fmt.Sprintf("%s %s, %s, %+d", in.Op, in.Rs1, in.Rs2, in.Imm)
	case OpJal:
		return fmt.Sprintf("jal %s, %+d", in.Rd, in.Imm)
	default:
		return in.Op.String()
	}
}

// Cause is a synchronous exception code as reported in scause.
type Cause uint64

const (
	InstructionMisaligned Cause = 0
	InstructionFault      Cause = 1
	IllegalInstruction    Cause = 2
	Breakpoint            Cause = 3
	LoadMisaligned        Cause = 4
	LoadFault             Cause = 5
	StoreMisaligned       Cause = 6
	StoreFault            Cause = 7
	UserEnvCall           Cause = 8
	InstructionPageFault  Cause = 12
	LoadPageFault         Cause = 13
	StorePageFault        Cause = 15
)

func (c Cause) String() string {
	switch c {
	case InstructionMisaligned:
		return "InstructionMisaligned"
	case InstructionFault:
		return "InstructionFault"
	case IllegalInstruction:
		return "IllegalInstruction"
	case Breakpoint:
		return "Breakpoint"
	case LoadMisaligned:
		return "LoadMisaligned"
	case LoadFault:
		return "LoadFault"
	case StoreMisaligned:
		return "StoreMisaligned"
	case StoreFault:
		return "StoreFault"
	case UserEnvCall:
		return "UserEnvCall"
	case InstructionPageFault:
		return "InstructionPageFault"
	case LoadPageFault:
		return "LoadPageFault"
	case StorePageFault:
		return "StorePageFault"
	default:
		return fmt.Sprintf("Exception(%d)", uint64(c))
	}
}

// Fault is a memory access failure raised while executing user code.
type Fault struct {
	Cause Cause
	Addr  uint64
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s at %#x", f.Cause, f.Addr)
}
