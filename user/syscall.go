package user

import (
	"strideos/kernel/abi"
	"strideos/kernel/isa"
)

// The wrappers below load arguments into a0..a2, the id into a7 and trap.
// The result is left in a0. Argument registers are clobbered.

// Syscall emits the trap for id with whatever is already in a0..a2.
func (p *Program) Syscall(id int64) {
	p.Li(abi.RegID, id)
	p.Ecall()
}

// Write writes the data symbol sym to fd.
func (p *Program) Write(fd int64, sym string) {
	p.Li(isa.A0, fd)
	p.La(isa.A1, sym)
	p.Li(isa.A2, int64(p.Size(sym)))
	p.Syscall(abi.SysWrite)
}

// Print writes the data symbol sym to stdout.
func (p *Program) Print(sym string) { p.Write(1, sym) }

// Exit terminates the task with code.
func (p *Program) Exit(code int64) {
	p.Li(isa.A0, code)
	p.Syscall(abi.SysExit)
}

func (p *Program) Yield() { p.Syscall(abi.SysYield) }

func (p *Program) Getpid() { p.Syscall(abi.SysGetpid) }

func (p *Program) Fork() { p.Syscall(abi.SysFork) }

// GetTime stores a TimeVal into the data symbol sym.
func (p *Program) GetTime(sym string) {
	p.La(isa.A0, sym)
	p.Li(isa.A1, 0)
	p.Syscall(abi.SysGetTime)
}

func (p *Program) SetPriority(prio int64) {
	p.Li(isa.A0, prio)
	p.Syscall(abi.SysSetPriority)
}

// Exec replaces the image with the application named by the NUL-terminated
// data symbol path.
func (p *Program) Exec(path string) {
	p.La(isa.A0, path)
	p.Syscall(abi.SysExec)
}

// Waitpid waits for pid (abi.AnyChild for any) and stores the exit code into
// the data symbol code.
func (p *Program) Waitpid(pid int64, code string) {
	p.Li(isa.A0, pid)
	p.La(isa.A1, code)
	p.Syscall(abi.SysWaitpid)
}

// WaitpidReg is Waitpid with the pid taken from a register.
func (p *Program) WaitpidReg(pid isa.Reg, code string) {
	p.Mv(isa.A0, pid)
	p.La(isa.A1, code)
	p.Syscall(abi.SysWaitpid)
}

// Pipe stores the new read and write fds into the data symbol fds.
func (p *Program) Pipe(fds string) {
	p.La(isa.A0, fds)
	p.Syscall(abi.SysPipe)
}

// Read reads up to the size of the data symbol sym from the fd in register fd.
func (p *Program) Read(fd isa.Reg, sym string) {
	p.Mv(isa.A0, fd)
	p.La(isa.A1, sym)
	p.Li(isa.A2, int64(p.Size(sym)))
	p.Syscall(abi.SysRead)
}

// WriteReg writes n bytes of sym to the fd held in register fd.
func (p *Program) WriteReg(fd isa.Reg, sym string, n int64) {
	p.Mv(isa.A0, fd)
	p.La(isa.A1, sym)
	p.Li(isa.A2, n)
	p.Syscall(abi.SysWrite)
}

func (p *Program) Close(fd isa.Reg) {
	p.Mv(isa.A0, fd)
	p.Syscall(abi.SysClose)
}

// MailWrite sends n bytes of sym to the mailbox of the task whose pid is in
// register pid.
func (p *Program) MailWrite(pid isa.Reg, sym string, n int64) {
	p.Mv(isa.A0, pid)
	p.La(isa.A1, sym)
	p.Li(isa.A2, n)
	p.Syscall(abi.SysMailWrite)
}

// MailRead receives the oldest message into sym.
func (p *Program) MailRead(sym string) {
	p.La(isa.A0, sym)
	p.Li(isa.A1, int64(p.Size(sym)))
	p.Syscall(abi.SysMailRead)
}

func (p *Program) Mmap(start, length, prot int64) {
	p.Li(isa.A0, start)
	p.Li(isa.A1, length)
	p.Li(isa.A2, prot)
	p.Syscall(abi.SysMmap)
}

func (p *Program) Munmap(start, length int64) {
	p.Li(isa.A0, start)
	p.Li(isa.A1, length)
	p.Syscall(abi.SysMunmap)
}

// Retry re-runs the code emitted by body, yielding in between, for as long
// as it leaves abi.Again in a0. Clobbers t0.
func (p *Program) Retry(body func()) {
	top, done := p.Unique("retry"), p.Unique("done")
	p.Label(top)
	body()
	p.Li(isa.T0, abi.Again)
	p.Bne(isa.A0, isa.T0, done)
	p.Yield()
	p.J(top)
	p.Label(done)
}

// WaitChild waits until the child whose pid is in register pid exits and
// stores its exit code into the data symbol code.
func (p *Program) WaitChild(pid isa.Reg, code string) {
	p.Retry(func() { p.WaitpidReg(pid, code) })
}
