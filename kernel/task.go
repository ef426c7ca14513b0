package kernel

import (
	"fmt"

	"strideos/kernel/abi"
	"strideos/kernel/excl"
	"strideos/kernel/fs"
	"strideos/kernel/hart"
	"strideos/kernel/loader"
	"strideos/kernel/mm"
)

// TaskStatus is the scheduling state of a task.
type TaskStatus uint8

const (
	UnInit TaskStatus = iota
	Ready
	Running
	Zombie
	Exited
)

func (s TaskStatus) String() string {
	switch s {
	case UnInit:
		return "uninit"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Zombie:
		return "zombie"
	case Exited:
		return "exited"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

func (s TaskStatus) terminal() bool { return s == Zombie || s == Exited }

// Fixed fd slots every task starts with.
const (
	FdStdin   = 0
	FdStdout  = 1
	FdStderr  = 2
	FdMailbox = 3
)

// TaskControlBlock is the kernel's record of one task.
//
// refs counts owning references: one for the arena slot while the task is
// schedulable and one for the parent's children list. A task is destroyed
// when the count reaches zero.
type TaskControlBlock struct {
	pid   int
	name  string
	refs  int
	inner excl.Cell[taskInner]
}

type taskInner struct {
	status TaskStatus
	// cx is the slot the switch primitive saves to and restores from. Its
	// Trap and Space always mirror trap and space.
	cx       hart.TaskContext
	trap     *hart.TrapContext
	space    mm.MemorySet
	priority int64
	stride   uint64
	fds      []fs.File
	parent   *TaskControlBlock
	children []*TaskControlBlock
	exitCode int32
}

func (in *taskInner) setImage(space mm.MemorySet, trap *hart.TrapContext) {
	in.space = space
	in.trap = trap
	in.cx = hart.TaskContext{Trap: trap, Space: space}
}

// allocFd installs f in the lowest free slot and returns its index. The
// mailbox slot is never handed out, even after it has been closed.
func (in *taskInner) allocFd(f fs.File) int {
	for i, slot := range in.fds {
		if slot == nil && i != FdMailbox {
			in.fds[i] = f
			return i
		}
	}
	in.fds = append(in.fds, f)
	return len(in.fds) - 1
}

// mailbox returns the task's mailbox, or nil once it has been closed.
func (in *taskInner) mailbox() *fs.Mailbox {
	mb, _ := in.file(FdMailbox).(*fs.Mailbox)
	return mb
}

// file returns the file at fd, or nil.
func (in *taskInner) file(fd uint64) fs.File {
	if fd >= uint64(len(in.fds)) {
		return nil
	}
	return in.fds[fd]
}

func newTask(pid int, img *loader.Image, con fs.Console) (*TaskControlBlock, error) {
	space, entry, sp, err := loader.Load(img)
	if err != nil {
		return nil, err
	}
	t := &TaskControlBlock{pid: pid, name: img.Name}
	in := t.inner.Exclusive()
	in.setImage(space, hart.NewTrapContext(entry, sp))
	in.priority = DefaultPriority
	in.fds = []fs.File{
		FdStdin:   fs.NewStdin(con),
		FdStdout:  fs.NewStdout(con),
		FdStderr:  fs.NewStdout(con),
		FdMailbox: fs.NewMailbox(),
	}
	in.status = Ready
	t.inner.Release()
	return t, nil
}

// Pid returns the task's process id.
func (t *TaskControlBlock) Pid() int { return t.pid }

// Name returns the image the task is running.
func (t *TaskControlBlock) Name() string { return t.name }

// Exclusive borrows the mutable state. Release it before borrowing any other
// task or switching.
func (t *TaskControlBlock) Exclusive() *taskInner { return t.inner.Exclusive() }

// Release ends a borrow taken with Exclusive.
func (t *TaskControlBlock) Release() { t.inner.Release() }

// Status returns the task's scheduling state.
func (t *TaskControlBlock) Status() TaskStatus {
	in := t.Exclusive()
	defer t.Release()
	return in.status
}

// Stride returns the task's current pass value.
func (t *TaskControlBlock) Stride() uint64 {
	in := t.Exclusive()
	defer t.Release()
	return in.stride
}

// Priority returns the task's priority.
func (t *TaskControlBlock) Priority() int64 {
	in := t.Exclusive()
	defer t.Release()
	return in.priority
}

// ExitCode returns the code recorded by exit.
func (t *TaskControlBlock) ExitCode() int32 {
	in := t.Exclusive()
	defer t.Release()
	return in.exitCode
}

// fork creates a child with a copy of t's address space, registers and fd
// table. The child gets its own empty mailbox and a0 = 0.
func (t *TaskControlBlock) fork(pid int) *TaskControlBlock {
	child := &TaskControlBlock{pid: pid, name: t.name, refs: 1}

	in := t.Exclusive()
	trap := *in.trap
	trap.X[abi.RegResult] = 0
	space := in.space.Clone()
	fds := make([]fs.File, len(in.fds))
	for i, f := range in.fds {
		if f == nil || i == FdMailbox {
			continue
		}
		f.Retain()
		fds[i] = f
	}
	if len(fds) <= FdMailbox {
		fds = append(fds, make([]fs.File, FdMailbox+1-len(fds))...)
	}
	fds[FdMailbox] = fs.NewMailbox()
	priority, stride := in.priority, in.stride
	in.children = append(in.children, child)
	t.Release()

	cin := child.Exclusive()
	cin.setImage(space, &trap)
	cin.priority = priority
	cin.stride = stride
	cin.fds = fds
	cin.parent = t
	cin.status = Ready
	child.Release()
	return child
}

// exec replaces t's image in place. Pid, fds and family links are kept.
func (t *TaskControlBlock) exec(img *loader.Image) error {
	space, entry, sp, err := loader.Load(img)
	if err != nil {
		return err
	}
	in := t.Exclusive()
	in.setImage(space, hart.NewTrapContext(entry, sp))
	t.Release()
	t.name = img.Name
	return nil
}
