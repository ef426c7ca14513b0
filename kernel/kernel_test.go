package kernel

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"strideos/kernel/abi"
	"strideos/kernel/isa"
	"strideos/kernel/loader"
	"strideos/user"
	"strideos/user/apps"
)

type testConsole struct {
	out bytes.Buffer
	in  []byte
}

func (c *testConsole) Write(p []byte) (int, error) { return c.out.Write(p) }

func (c *testConsole) TryRead() (byte, bool) {
	if len(c.in) == 0 {
		return 0, false
	}
	b := c.in[0]
	c.in = c.in[1:]
	return b, true
}

func bootKernel(t *testing.T, reg *loader.Registry, boot ...string) (*Kernel, *testConsole) {
	t.Helper()
	con := &testConsole{}
	k, err := New(Config{
		Console: con,
		Clock:   func() uint64 { return 3_500_000 },
		Apps:    reg,
		Boot:    boot,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := k.Boot(); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	return k, con
}

func runToHalt(t *testing.T, k *Kernel) error {
	t.Helper()
	for i := 0; i < 100000; i++ {
		if err := k.Step(); err != nil {
			return err
		}
	}
	t.Fatal("kernel did not halt")
	return nil
}

// spin yields forever.
func spin(name string) *loader.Image {
	p := user.New(name)
	p.Label("top")
	p.Yield()
	p.J("top")
	return p.MustImage()
}

// checker builds a program that prints "<name> ok" or "<name> bad".
func checker(name string, body func(p *user.Program)) *loader.Image {
	p := user.New(name)
	p.String("ok", name+" ok\n")
	p.String("bad", name+" bad\n")
	body(p)
	p.Print("ok")
	p.Exit(0)
	p.Label("fail")
	p.Print("bad")
	p.Exit(1)
	return p.MustImage()
}

func expectA0(p *user.Program, want int64) {
	p.Li(isa.T0, want)
	p.Bne(isa.A0, isa.T0, "fail")
}

func TestBundledApplications(t *testing.T) {
	k, con := bootKernel(t, apps.Registry(), apps.DefaultBoot...)
	err := runToHalt(t, k)

	var he *HaltError
	if !errors.As(err, &he) || !errors.Is(err, ErrNoRunnableTask) {
		t.Fatalf("run error = %v, want HaltError wrapping ErrNoRunnableTask", err)
	}
	out := con.out.String()
	for _, want := range []string{
		"Hello, world!",
		"forktest passed",
		"through the pipe",
		"pipetest passed",
		"mail from child",
		"mailtest passed",
		"mmaptest passed",
		"exectest passed",
		"prio_low done",
		"prio_high done",
		"[kernel] PageFault in application",
		"[kernel] IllegalInstruction in application",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console output missing %q\n%s", want, out)
		}
	}
	for _, bad := range []string{"failed", "should not get here"} {
		if strings.Contains(out, bad) {
			t.Errorf("console output contains %q\n%s", bad, out)
		}
	}
	if hi, lo := strings.Index(out, "prio_high done"), strings.Index(out, "prio_low done"); hi > lo {
		t.Errorf("prio_high finished after prio_low")
	}
	if got := len(k.mgr.Tasks()); got != 0 {
		t.Errorf("%d tasks left in the arena, want 0", got)
	}
}

func TestFaultKillsOnlyTheTask(t *testing.T) {
	reg := loader.NewRegistry(apps.StoreFault(), apps.Hello(), apps.Illegal())
	k, con := bootKernel(t, reg, "storefault", "hello", "illegal")
	if err := runToHalt(t, k); !errors.Is(err, ErrNoRunnableTask) {
		t.Fatalf("run error = %v, want ErrNoRunnableTask", err)
	}
	out := con.out.String()
	if !strings.Contains(out, "Hello, world!") {
		t.Fatalf("hello did not run after the fault:\n%s", out)
	}
	if !strings.Contains(out, "PageFault") || !strings.Contains(out, "IllegalInstruction") {
		t.Fatalf("fault diagnostics missing:\n%s", out)
	}
}

func TestUnknownSyscallHalts(t *testing.T) {
	p := user.New("bogus")
	p.Syscall(999)
	p.Exit(0)
	k, _ := bootKernel(t, loader.NewRegistry(p.MustImage()), "bogus")

	var infos []PanicInfo
	k.SetPanicHandler(func(info PanicInfo) { infos = append(infos, info) })

	err := runToHalt(t, k)
	if !errors.Is(err, ErrUnknownSyscall) {
		t.Fatalf("run error = %v, want ErrUnknownSyscall", err)
	}
	var he *HaltError
	if !errors.As(err, &he) || he.Pid != 0 {
		t.Fatalf("halt = %#v, want pid 0", he)
	}
	if len(infos) != 1 || infos[0].TaskID != 0 || len(infos[0].Stack) == 0 {
		t.Fatalf("panic handler calls = %+v, want one with pid 0 and a stack", infos)
	}
	if !k.InPanicMode() {
		t.Fatal("InPanicMode() = false after halt")
	}
	if err2 := k.Step(); err2 != err {
		t.Fatalf("Step() after halt = %v, want the same halt error", err2)
	}
}

func TestLoadFaultHalts(t *testing.T) {
	p := user.New("loader")
	p.Li(isa.T0, 0)
	p.Ld(isa.T1, isa.T0, 0)
	p.Exit(0)
	k, _ := bootKernel(t, loader.NewRegistry(p.MustImage()), "loader")
	if err := runToHalt(t, k); !errors.Is(err, ErrUnhandledTrap) {
		t.Fatalf("run error = %v, want ErrUnhandledTrap", err)
	}
}

func TestForkWaitpidExitCode(t *testing.T) {
	img := checker("fw", func(p *user.Program) {
		p.Zero("code", 8)
		p.Waitpid(abi.AnyChild, "code")
		expectA0(p, abi.Fail)

		p.Fork()
		p.Bne(isa.A0, isa.Zero, "parent")
		p.Yield()
		p.Exit(7)
		p.Label("parent")
		p.Mv(isa.S0, isa.A0)
		p.Waitpid(abi.AnyChild, "code")
		expectA0(p, abi.Again)
		p.WaitpidReg(isa.S0, "code")
		expectA0(p, abi.Again)
		p.Waitpid(12345, "code")
		expectA0(p, abi.Fail)
		p.WaitChild(isa.S0, "code")
		p.Bne(isa.A0, isa.S0, "fail")
		p.La(isa.T1, "code")
		p.Ld(isa.T1, isa.T1, 0)
		p.Li(isa.T2, 7)
		p.Bne(isa.T1, isa.T2, "fail")
		p.Waitpid(abi.AnyChild, "code")
		expectA0(p, abi.Fail)
	})
	k, con := bootKernel(t, loader.NewRegistry(img), "fw")
	if err := runToHalt(t, k); !errors.Is(err, ErrNoRunnableTask) {
		t.Fatalf("run error = %v, want ErrNoRunnableTask", err)
	}
	if got := con.out.String(); got != "fw ok\n" {
		t.Fatalf("console = %q, want %q", got, "fw ok\n")
	}
}

func TestReapAliasedChildHalts(t *testing.T) {
	p := user.New("alias")
	p.Zero("code", 8)
	p.Fork()
	p.Bne(isa.A0, isa.Zero, "parent")
	p.Exit(3)
	p.Label("parent")
	p.Mv(isa.S0, isa.A0)
	p.Yield()
	p.WaitChild(isa.S0, "code")
	p.Exit(0)
	k, _ := bootKernel(t, loader.NewRegistry(p.MustImage()), "alias")

	parent := k.mgr.Current()
	var child *TaskControlBlock
	for i := 0; i < 1000 && child == nil; i++ {
		if err := k.Step(); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		in := parent.Exclusive()
		kids := append([]*TaskControlBlock(nil), in.children...)
		parent.Release()
		if len(kids) == 1 && kids[0].Status() == Zombie {
			child = kids[0]
		}
	}
	if child == nil {
		t.Fatal("child never became a zombie")
	}
	if child.refs != 1 {
		t.Fatalf("zombie refs = %d, want 1", child.refs)
	}
	child.refs++

	if err := runToHalt(t, k); !errors.Is(err, ErrReapAliased) {
		t.Fatalf("run error = %v, want ErrReapAliased", err)
	}
}

func TestOrphansAreAdoptedByInit(t *testing.T) {
	// The middle task forks a child that outlives it.
	mid := user.New("mid")
	mid.Fork()
	mid.Bne(isa.A0, isa.Zero, "parent")
	mid.Yield()
	mid.Yield()
	mid.Exit(5)
	mid.Label("parent")
	mid.Exit(0)

	k, _ := bootKernel(t, loader.NewRegistry(spin("init"), mid.MustImage()), "init", "mid")
	initTask := k.mgr.slots[0]

	var adopted []*TaskControlBlock
	for i := 0; i < 1000 && len(adopted) == 0; i++ {
		if err := k.Step(); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
		in := initTask.Exclusive()
		adopted = append(adopted, in.children...)
		initTask.Release()
	}
	if len(adopted) != 1 {
		t.Fatalf("init has %d children, want 1", len(adopted))
	}
	orphan := adopted[0]
	in := orphan.Exclusive()
	parent := in.parent
	orphan.Release()
	if parent != initTask {
		t.Fatal("orphan's parent is not init")
	}
}

func TestSetPriorityRejectsOutOfRange(t *testing.T) {
	img := checker("prio", func(p *user.Program) {
		p.SetPriority(0)
		expectA0(p, abi.Fail)
		p.SetPriority(-4)
		expectA0(p, abi.Fail)
		p.SetPriority(MaxPriority + 1)
		expectA0(p, abi.Fail)
		p.SetPriority(5)
		expectA0(p, 5)
	})
	k, con := bootKernel(t, loader.NewRegistry(img), "prio")
	_ = runToHalt(t, k)
	if got := con.out.String(); got != "prio ok\n" {
		t.Fatalf("console = %q, want %q", got, "prio ok\n")
	}
}

func TestGetTime(t *testing.T) {
	img := checker("time", func(p *user.Program) {
		p.Zero("tv", abi.TimeValBytes)
		p.GetTime("tv")
		expectA0(p, 0)
		p.La(isa.S0, "tv")
		p.Ld(isa.T1, isa.S0, 0)
		p.Li(isa.T2, 3)
		p.Bne(isa.T1, isa.T2, "fail")
		p.Ld(isa.T1, isa.S0, 8)
		p.Li(isa.T2, 500_000)
		p.Bne(isa.T1, isa.T2, "fail")
	})
	k, con := bootKernel(t, loader.NewRegistry(img), "time")
	_ = runToHalt(t, k)
	if got := con.out.String(); got != "time ok\n" {
		t.Fatalf("console = %q, want %q", got, "time ok\n")
	}
}

func TestExecKeepsPidAndFds(t *testing.T) {
	img := checker("ex", func(p *user.Program) {
		p.CString("target", "pidprint")
		p.CString("missing", "nope")
		p.Exec("missing")
		expectA0(p, abi.Fail)
		p.Exec("target")
	})
	// pidprint exits with its pid as the code.
	pp := user.New("pidprint")
	pp.String("msg", "exec'd\n")
	pp.Print("msg")
	pp.Getpid()
	pp.Syscall(abi.SysExit)

	k, con := bootKernel(t, loader.NewRegistry(img, pp.MustImage()), "ex")
	first := k.mgr.Current()
	_ = runToHalt(t, k)
	if got := con.out.String(); got != "exec'd\n" {
		t.Fatalf("console = %q, want %q", got, "exec'd\n")
	}
	if first.ExitCode() != int32(first.Pid()) {
		t.Fatalf("exit code = %d, want pid %d", first.ExitCode(), first.Pid())
	}
	if first.Name() != "pidprint" {
		t.Fatalf("Name() = %q after exec, want %q", first.Name(), "pidprint")
	}
}

func TestStdinReadAgain(t *testing.T) {
	img := checker("in", func(p *user.Program) {
		p.Zero("buf", 4)
		p.Li(isa.S0, FdStdin)
		p.Read(isa.S0, "buf")
		expectA0(p, abi.Again)
	})
	k, con := bootKernel(t, loader.NewRegistry(img), "in")
	_ = runToHalt(t, k)
	if got := con.out.String(); got != "in ok\n" {
		t.Fatalf("console = %q, want %q", got, "in ok\n")
	}
}

func TestNewRequiresConsole(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoConsole) {
		t.Fatalf("New() error = %v, want ErrNoConsole", err)
	}
}

func TestBootUnknownApp(t *testing.T) {
	k, err := New(Config{Console: &testConsole{}, Boot: []string{"ghost"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := k.Boot(); !errors.Is(err, loader.ErrAppNotFound) {
		t.Fatalf("Boot() error = %v, want ErrAppNotFound", err)
	}
}

func TestMailboxSlotIsNotReused(t *testing.T) {
	img := checker("fd3", func(p *user.Program) {
		p.Zero("fds", abi.FdPairBytes)
		p.Zero("buf", 8)
		p.Li(isa.S1, FdMailbox)
		p.Close(isa.S1)
		expectA0(p, 0)
		p.Pipe("fds")
		expectA0(p, 0)
		p.La(isa.S0, "fds")
		p.Ld(isa.T1, isa.S0, 0)
		p.Li(isa.T2, FdMailbox)
		p.Beq(isa.T1, isa.T2, "fail")
		p.Ld(isa.T1, isa.S0, 8)
		p.Beq(isa.T1, isa.T2, "fail")

		// Without a mailbox both mail calls fail, and the pipe is untouched.
		p.Ld(isa.S2, isa.S0, 8)
		p.WriteReg(isa.S2, "buf", 4)
		expectA0(p, 4)
		p.MailRead("buf")
		expectA0(p, abi.Fail)
		p.Getpid()
		p.Mv(isa.S3, isa.A0)
		p.MailWrite(isa.S3, "buf", 4)
		expectA0(p, abi.Fail)
		p.Ld(isa.S2, isa.S0, 0)
		p.Read(isa.S2, "buf")
		expectA0(p, 4)
	})
	k, con := bootKernel(t, loader.NewRegistry(img), "fd3")
	_ = runToHalt(t, k)
	if got := con.out.String(); got != "fd3 ok\n" {
		t.Fatalf("console = %q, want %q", got, "fd3 ok\n")
	}
}

func TestRunStopsAtHalt(t *testing.T) {
	k, con := bootKernel(t, apps.Registry(), "hello")
	err := k.Run(context.Background())
	if !errors.Is(err, ErrNoRunnableTask) {
		t.Fatalf("Run() error = %v, want ErrNoRunnableTask", err)
	}
	if k.Halted() != err {
		t.Fatalf("Halted() = %v, want %v", k.Halted(), err)
	}
	if !strings.Contains(con.out.String(), "Hello, world!") {
		t.Fatalf("console = %q", con.out.String())
	}
}

func TestRunHonorsContext(t *testing.T) {
	k, _ := bootKernel(t, loader.NewRegistry(spin("spin")), "spin")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := k.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if k.Halted() != nil {
		t.Fatalf("Halted() = %v after cancellation, want nil", k.Halted())
	}
}
