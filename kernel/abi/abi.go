// Package abi is the user/kernel calling convention: syscall numbers, the
// register slots they use and the return codes user code can observe.
package abi

import "strideos/kernel/isa"

// Syscall numbers.
const (
	SysClose       = 57
	SysPipe        = 59
	SysRead        = 63
	SysWrite       = 64
	SysExit        = 93
	SysYield       = 124
	SysSetPriority = 140
	SysGetTime     = 169
	SysGetpid      = 172
	SysMunmap      = 215
	SysFork        = 220
	SysExec        = 221
	SysMmap        = 222
	SysWaitpid     = 260
	SysMailRead    = 401
	SysMailWrite   = 402
)

// Register slots: the syscall id travels in a7, arguments in a0..a2 and the
// result comes back in a0.
const (
	RegID     = isa.A7
	RegArg0   = isa.A0
	RegArg1   = isa.A1
	RegArg2   = isa.A2
	RegResult = isa.A0
)

// Return codes shared by several syscalls. Values are operation specific;
// these are the ones user code tests against.
const (
	// Fail is the generic failure.
	Fail = -1
	// Again means the operation could not make progress now; retry after yield.
	// waitpid also returns it for "child exists but has not exited".
	Again = -2
)

// AnyChild is the waitpid selector matching every child.
const AnyChild = -1

// Layout of values the kernel writes into user memory.
const (
	TimeValBytes  = 16 // sec, usec as little-endian uint64
	FdPairBytes   = 16 // read fd, write fd as little-endian uint64
	ExitCodeBytes = 4  // little-endian int32
	MaxPathBytes  = 256
)

// mmap protection bits.
const (
	ProtRead  = 1 << 0
	ProtWrite = 1 << 1
	ProtExec  = 1 << 2
	ProtMask  = ProtRead | ProtWrite | ProtExec
)

// Exit codes the kernel assigns to tasks it terminates.
const (
	ExitPageFault          = -2
	ExitIllegalInstruction = -3
)
