package kernel

import (
	"encoding/binary"
	"errors"
	"fmt"

	"strideos/kernel/abi"
	"strideos/kernel/mm"
)

func (k *Kernel) sysExit(code int32) int64 {
	k.sysLog.Debug("exit", "pid", k.mgr.Current().Pid(), "code", code)
	k.exitCurrent(code)
	return 0
}

func (k *Kernel) sysYield() int64 {
	k.suspendCurrent()
	return 0
}

// sysGetTime writes a TimeVal (seconds, microseconds) to tv.
func (k *Kernel) sysGetTime(tv uint64) int64 {
	us := k.cfg.Clock()
	if err := k.putUser(tv, us/1_000_000, us%1_000_000); err != nil {
		return abi.Fail
	}
	return 0
}

func (k *Kernel) sysGetpid() int64 {
	return int64(k.mgr.Current().Pid())
}

func (k *Kernel) sysSetPriority(prio int64) int64 {
	if !k.mgr.SetPriority(prio) {
		return abi.Fail
	}
	return prio
}

func (k *Kernel) sysFork() int64 {
	parent := k.mgr.Current()
	pid := k.mgr.pids.alloc()
	child := parent.fork(pid)
	if _, err := k.mgr.Add(child); err != nil {
		k.sysLog.Warn("fork failed", "pid", parent.Pid(), "err", err)
		k.unfork(parent, child)
		return abi.Fail
	}
	k.sysLog.Debug("fork", "parent", parent.Pid(), "child", pid)
	return int64(pid)
}

// unfork undoes a fork whose child could not be scheduled.
func (k *Kernel) unfork(parent, child *TaskControlBlock) {
	in := parent.Exclusive()
	for i, c := range in.children {
		if c == child {
			in.children = append(in.children[:i], in.children[i+1:]...)
			break
		}
	}
	parent.Release()

	cin := child.Exclusive()
	fds := cin.fds
	cin.fds = nil
	cin.status = Exited
	child.Release()
	for _, f := range fds {
		if f != nil {
			f.Release()
		}
	}
	k.mgr.drop(child)
}

// sysExec loads the application named by the NUL-terminated string at path
// over the current task.
func (k *Kernel) sysExec(path uint64) int64 {
	name, err := k.userString(path, abi.MaxPathBytes)
	if err != nil {
		k.consolef("[kernel] Illegal access in exec from pid %d: %#x\n", k.mgr.Current().Pid(), path)
		return abi.Fail
	}
	img, err := k.cfg.Apps.Lookup(name)
	if err != nil {
		k.sysLog.Debug("exec failed", "name", name, "err", err)
		return abi.Fail
	}
	t := k.mgr.Current()
	if err := t.exec(img); err != nil {
		k.sysLog.Warn("exec failed", "name", name, "err", err)
		return abi.Fail
	}
	k.sysLog.Debug("exec", "pid", t.Pid(), "name", name)
	return 0
}

var errUnterminated = errors.New("string not terminated")

// userString reads a NUL-terminated string of at most limit bytes.
func (k *Kernel) userString(ptr uint64, limit int) (string, error) {
	space := k.currentSpace()
	out := make([]byte, 0, 32)
	for i := 0; i < limit; i++ {
		b, err := space.Load(ptr+uint64(i), 1)
		if err != nil {
			return "", err
		}
		if b == 0 {
			return string(out), nil
		}
		out = append(out, byte(b))
	}
	return "", fmt.Errorf("%#x: %w", ptr, errUnterminated)
}

// sysWaitpid reaps a terminated child matching pid (-1 for any). It returns
// -1 when nothing matches and -2 when every match is still running.
func (k *Kernel) sysWaitpid(pid int64, code uint64) int64 {
	t := k.mgr.Current()
	in := t.Exclusive()
	children := append([]*TaskControlBlock(nil), in.children...)
	t.Release()

	var (
		found  bool
		zombie *TaskControlBlock
	)
	for _, c := range children {
		if pid != abi.AnyChild && int64(c.Pid()) != pid {
			continue
		}
		found = true
		if c.Status().terminal() {
			zombie = c
			break
		}
	}
	if !found {
		return abi.Fail
	}
	if zombie == nil {
		return abi.Again
	}

	in = t.Exclusive()
	for i, c := range in.children {
		if c == zombie {
			in.children = append(in.children[:i], in.children[i+1:]...)
			break
		}
	}
	t.Release()

	if zombie.refs != 1 {
		k.halt(fmt.Errorf("%w: pid %d has %d references", ErrReapAliased, zombie.Pid(), zombie.refs))
	}
	exitCode := zombie.ExitCode()
	k.mgr.drop(zombie)

	var raw [abi.ExitCodeBytes]byte
	binary.LittleEndian.PutUint32(raw[:], uint32(exitCode))
	buf, err := k.userBuffer(code, abi.ExitCodeBytes)
	if err == nil {
		buf.CopyFrom(raw[:])
	}
	k.sysLog.Debug("reaped", "parent", t.Pid(), "child", zombie.Pid(), "code", exitCode)
	return int64(zombie.Pid())
}

// sysMmap maps [start, start+length) with the rwx bits of prot.
func (k *Kernel) sysMmap(start, length, prot uint64) int64 {
	if prot&^abi.ProtMask != 0 || prot&abi.ProtMask == 0 {
		return abi.Fail
	}
	va := mm.VirtAddr(start)
	if !va.Aligned() || length == 0 {
		return abi.Fail
	}
	end := start + length
	if end < start || end > mm.MaxUserVA {
		return abi.Fail
	}

	perm := mm.PermU
	if prot&abi.ProtRead != 0 {
		perm |= mm.PermR
	}
	if prot&abi.ProtWrite != 0 {
		perm |= mm.PermW
	}
	if prot&abi.ProtExec != 0 {
		perm |= mm.PermX
	}

	space := k.currentSpace()
	if space.Conflicts(va, mm.VirtAddr(end)) {
		return abi.Fail
	}
	space.InsertFramedArea(va, mm.VirtAddr(end), perm)
	return 0
}

// sysMunmap removes the area starting at start. The range must lie inside
// that area.
func (k *Kernel) sysMunmap(start, length uint64) int64 {
	va := mm.VirtAddr(start)
	if !va.Aligned() || length == 0 {
		return abi.Fail
	}
	end := start + length
	if end < start || end > mm.MaxUserVA {
		return abi.Fail
	}
	space := k.currentSpace()
	if !space.Contains(va, mm.VirtAddr(end)) || !space.AreaStartsAt(va.Floor()) {
		return abi.Fail
	}
	if !space.RemoveAreaWithStart(va.Floor()) {
		return abi.Fail
	}
	return 0
}
