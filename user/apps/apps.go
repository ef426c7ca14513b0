// Package apps holds the applications bundled with the kernel image.
package apps

import (
	"strideos/kernel/abi"
	"strideos/kernel/isa"
	"strideos/kernel/loader"
	"strideos/user"
)

// Init is the name of the first application loaded; orphans are handed to it.
const Init = "initproc"

// DefaultBoot is the boot set used when none is configured.
var DefaultBoot = []string{
	Init, "forktest", "pipetest", "mailtest", "mmaptest",
	"prio_low", "prio_high", "exectest", "storefault", "illegal",
}

// All returns every bundled image.
func All() []*loader.Image {
	return []*loader.Image{
		InitProc(),
		Hello(),
		ForkTest(),
		PipeTest(),
		MailTest(),
		MmapTest(),
		Stride("prio_low", 2, 40),
		Stride("prio_high", 32, 40),
		ExecTest(),
		StoreFault(),
		Illegal(),
	}
}

// Registry returns a registry of every bundled image.
func Registry() *loader.Registry {
	return loader.NewRegistry(All()...)
}

// InitProc starts hello in a child and then reaps children until none are
// left.
func InitProc() *loader.Image {
	p := user.New(Init)
	p.CString("hello", "hello")
	p.String("failed", "[initproc] exec hello failed\n")
	p.Zero("code", 8)

	p.Fork()
	p.Bne(isa.A0, isa.Zero, "reap")
	p.Exec("hello")
	p.Print("failed")
	p.Exit(1)

	p.Label("reap")
	p.Waitpid(abi.AnyChild, "code")
	p.Li(isa.T0, abi.Fail)
	p.Beq(isa.A0, isa.T0, "done")
	p.Yield()
	p.J("reap")
	p.Label("done")
	p.Exit(0)
	return p.MustImage()
}

func Hello() *loader.Image {
	p := user.New("hello")
	p.String("msg", "Hello, world!\n")
	p.Print("msg")
	p.Exit(0)
	return p.MustImage()
}

// ForkTest checks that waitpid reports a running child and then collects its
// exit code.
func ForkTest() *loader.Image {
	p := user.New("forktest")
	p.String("ok", "forktest passed\n")
	p.String("bad", "forktest failed\n")
	p.Zero("code", 8)

	p.Fork()
	p.Bne(isa.A0, isa.Zero, "parent")
	p.Yield()
	p.Exit(7)

	p.Label("parent")
	p.Mv(isa.S0, isa.A0)
	p.WaitpidReg(isa.S0, "code")
	p.Li(isa.T0, abi.Again)
	p.Bne(isa.A0, isa.T0, "fail")
	p.WaitChild(isa.S0, "code")
	p.Bne(isa.A0, isa.S0, "fail")
	p.La(isa.T1, "code")
	p.Ld(isa.T1, isa.T1, 0)
	p.Li(isa.T2, 7)
	p.Bne(isa.T1, isa.T2, "fail")
	p.Print("ok")
	p.Exit(0)

	p.Label("fail")
	p.Print("bad")
	p.Exit(1)
	return p.MustImage()
}

// PipeTest sends a message from parent to child through a pipe.
func PipeTest() *loader.Image {
	const msg = "through the pipe\n"
	p := user.New("pipetest")
	p.Zero("fds", abi.FdPairBytes)
	p.String("msg", msg)
	p.Zero("buf", 64)
	p.Zero("code", 8)
	p.String("ok", "pipetest passed\n")

	p.Pipe("fds")
	p.La(isa.T1, "fds")
	p.Ld(isa.S0, isa.T1, 0)
	p.Ld(isa.S1, isa.T1, 8)
	p.Fork()
	p.Bne(isa.A0, isa.Zero, "parent")

	p.Close(isa.S1)
	p.Retry(func() { p.Read(isa.S0, "buf") })
	p.Mv(isa.A2, isa.A0)
	p.Li(isa.A0, 1)
	p.La(isa.A1, "buf")
	p.Syscall(abi.SysWrite)
	p.Close(isa.S0)
	p.Exit(0)

	p.Label("parent")
	p.Mv(isa.S2, isa.A0)
	p.Close(isa.S0)
	p.Retry(func() { p.WriteReg(isa.S1, "msg", int64(len(msg))) })
	p.Close(isa.S1)
	p.WaitChild(isa.S2, "code")
	p.Print("ok")
	p.Exit(0)
	return p.MustImage()
}

// MailTest has a child post a message to its parent's mailbox.
func MailTest() *loader.Image {
	const msg = "mail from child\n"
	p := user.New("mailtest")
	p.String("msg", msg)
	p.Zero("buf", 64)
	p.Zero("code", 8)
	p.String("ok", "mailtest passed\n")

	p.Getpid()
	p.Mv(isa.S0, isa.A0)
	p.Fork()
	p.Bne(isa.A0, isa.Zero, "parent")
	p.MailWrite(isa.S0, "msg", int64(len(msg)))
	p.Exit(0)

	p.Label("parent")
	p.Mv(isa.S1, isa.A0)
	p.Label("poll")
	p.MailRead("buf")
	p.Bge(isa.A0, isa.Zero, "got")
	p.Yield()
	p.J("poll")
	p.Label("got")
	p.Mv(isa.A2, isa.A0)
	p.Li(isa.A0, 1)
	p.La(isa.A1, "buf")
	p.Syscall(abi.SysWrite)
	p.WaitChild(isa.S1, "code")
	p.Print("ok")
	p.Exit(0)
	return p.MustImage()
}

// MmapBase is where MmapTest maps its page.
const MmapBase = 0x1000_0000

// MmapTest maps a page, uses it, unmaps it and checks that a bad request is
// refused.
func MmapTest() *loader.Image {
	p := user.New("mmaptest")
	p.String("ok", "mmaptest passed\n")
	p.String("bad", "mmaptest failed\n")

	p.Mmap(MmapBase, 4096, abi.ProtRead|abi.ProtWrite)
	p.Bne(isa.A0, isa.Zero, "fail")
	p.Li(isa.T0, MmapBase)
	p.Li(isa.T1, 42)
	p.Sb(isa.T1, isa.T0, 7)
	p.Lbu(isa.T2, isa.T0, 7)
	p.Bne(isa.T1, isa.T2, "fail")
	p.Mmap(MmapBase, 4096, abi.ProtRead)
	p.Li(isa.T0, abi.Fail)
	p.Bne(isa.A0, isa.T0, "fail")
	p.Munmap(MmapBase, 4096)
	p.Bne(isa.A0, isa.Zero, "fail")
	p.Mmap(MmapBase+4096, 4096, 0)
	p.Li(isa.T0, abi.Fail)
	p.Bne(isa.A0, isa.T0, "fail")
	p.Print("ok")
	p.Exit(0)

	p.Label("fail")
	p.Print("bad")
	p.Exit(1)
	return p.MustImage()
}

// Stride sets its priority and then yields rounds times before reporting.
func Stride(name string, prio int64, rounds int64) *loader.Image {
	p := user.New(name)
	p.String("done", name+" done\n")

	p.SetPriority(prio)
	p.Li(isa.S0, rounds)
	p.Label("loop")
	p.Beq(isa.S0, isa.Zero, "out")
	p.Yield()
	p.Addi(isa.S0, isa.S0, -1)
	p.J("loop")
	p.Label("out")
	p.Print("done")
	p.Exit(0)
	return p.MustImage()
}

// ExecTest checks that exec of an unknown name fails and leaves the caller
// running.
func ExecTest() *loader.Image {
	p := user.New("exectest")
	p.CString("missing", "no_such_app")
	p.String("ok", "exectest passed\n")
	p.String("bad", "exectest failed\n")

	p.Exec("missing")
	p.Li(isa.T0, abi.Fail)
	p.Bne(isa.A0, isa.T0, "fail")
	p.Print("ok")
	p.Exit(0)
	p.Label("fail")
	p.Print("bad")
	p.Exit(1)
	return p.MustImage()
}

// StoreFault writes through a null pointer.
func StoreFault() *loader.Image {
	p := user.New("storefault")
	p.String("msg", "storefault should not get here\n")
	p.Li(isa.T0, 0)
	p.Sd(isa.T0, isa.T0, 0)
	p.Print("msg")
	p.Exit(0)
	return p.MustImage()
}

// Illegal executes an instruction the hart does not implement.
func Illegal() *loader.Image {
	p := user.New("illegal")
	p.String("msg", "illegal should not get here\n")
	p.Unimp()
	p.Print("msg")
	p.Exit(0)
	return p.MustImage()
}
