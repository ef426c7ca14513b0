package kernel

import (
	"encoding/binary"
	"fmt"

	"strideos/kernel/abi"
	"strideos/kernel/fs"
	"strideos/kernel/mm"
)

// ptrArg describes a user range a syscall touches: the pointer is in
// argument addr, its length in argument lenArg (or the fixed size when
// lenArg is negative), capped at limit when limit is non-zero.
type ptrArg struct {
	addr   int
	lenArg int
	size   uint64
	limit  uint64
	perm   mm.MapPermission
}

func (p ptrArg) span(args [3]uint64) (start, n uint64) {
	n = p.size
	if p.lenArg >= 0 {
		n = args[p.lenArg]
	}
	if p.limit != 0 && n > p.limit {
		n = p.limit
	}
	return args[p.addr], n
}

type syscallDesc struct {
	name string
	fn   func(k *Kernel, a [3]uint64) int64
	ptrs []ptrArg
}

func syscallTable() map[uint64]syscallDesc {
	return map[uint64]syscallDesc{
		abi.SysWrite: {
			name: "write",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysWrite(a[0], a[1], a[2]) },
			ptrs: []ptrArg{{addr: 1, lenArg: 2, perm: mm.PermR}},
		},
		abi.SysRead: {
			name: "read",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysRead(a[0], a[1], a[2]) },
			ptrs: []ptrArg{{addr: 1, lenArg: 2, perm: mm.PermW}},
		},
		abi.SysClose: {
			name: "close",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysClose(a[0]) },
		},
		abi.SysPipe: {
			name: "pipe",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysPipe(a[0]) },
			ptrs: []ptrArg{{addr: 0, lenArg: -1, size: abi.FdPairBytes, perm: mm.PermW}},
		},
		abi.SysMailRead: {
			name: "mailread",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysMailRead(a[0], a[1]) },
			ptrs: []ptrArg{{addr: 0, lenArg: 1, limit: fs.MaxMessageBytes, perm: mm.PermW}},
		},
		abi.SysMailWrite: {
			name: "mailwrite",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysMailWrite(a[0], a[1], a[2]) },
			ptrs: []ptrArg{{addr: 1, lenArg: 2, limit: fs.MaxMessageBytes, perm: mm.PermR}},
		},
		abi.SysExit: {
			name: "exit",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysExit(int32(a[0])) },
		},
		abi.SysYield: {
			name: "yield",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysYield() },
		},
		abi.SysGetTime: {
			name: "get_time",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysGetTime(a[0]) },
			ptrs: []ptrArg{{addr: 0, lenArg: -1, size: abi.TimeValBytes, perm: mm.PermW}},
		},
		abi.SysGetpid: {
			name: "getpid",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysGetpid() },
		},
		abi.SysSetPriority: {
			name: "set_priority",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysSetPriority(int64(a[0])) },
		},
		abi.SysFork: {
			name: "fork",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysFork() },
		},
		abi.SysExec: {
			name: "exec",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysExec(a[0]) },
		},
		abi.SysWaitpid: {
			name: "waitpid",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysWaitpid(int64(a[0]), a[1]) },
			ptrs: []ptrArg{{addr: 1, lenArg: -1, size: abi.ExitCodeBytes, perm: mm.PermW}},
		},
		abi.SysMmap: {
			name: "mmap",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysMmap(a[0], a[1], a[2]) },
		},
		abi.SysMunmap: {
			name: "munmap",
			fn:   func(k *Kernel, a [3]uint64) int64 { return k.sysMunmap(a[0], a[1]) },
		},
	}
}

// syscall validates the user ranges of id and dispatches it. Unknown ids halt
// the kernel.
func (k *Kernel) syscall(id uint64, args [3]uint64) int64 {
	d, ok := k.syscalls[id]
	if !ok {
		k.halt(fmt.Errorf("%w: %d", ErrUnknownSyscall, id))
	}
	pid := k.mgr.Current().Pid()
	if p, ok := k.checkArgs(d, args); !ok {
		start, n := p.span(args)
		k.consolef("[kernel] Illegal access in %s from pid %d: [%#x, %#x)\n", d.name, pid, start, start+n)
		k.sysLog.Warn("illegal access", "syscall", d.name, "pid", pid, "addr", fmt.Sprintf("%#x", start), "len", n)
		return abi.Fail
	}
	ret := d.fn(k, args)
	k.sysLog.Trace(d.name, "pid", pid, "args", args, "ret", ret)
	return ret
}

// checkArgs reports the first pointer argument the current task may not
// access.
func (k *Kernel) checkArgs(d syscallDesc, args [3]uint64) (ptrArg, bool) {
	if len(d.ptrs) == 0 {
		return ptrArg{}, true
	}
	space := k.currentSpace()
	for _, p := range d.ptrs {
		start, n := p.span(args)
		end := start + n
		if end < start || !space.Accessible(mm.VirtAddr(start), mm.VirtAddr(end), p.perm) {
			return p, false
		}
	}
	return ptrArg{}, true
}

func (k *Kernel) currentSpace() mm.MemorySet {
	t := k.mgr.Current()
	in := t.Exclusive()
	defer t.Release()
	return in.space
}

// userBuffer translates [ptr, ptr+n) in the current address space.
func (k *Kernel) userBuffer(ptr, n uint64) (fs.UserBuffer, error) {
	bufs, err := k.currentSpace().Translate(mm.VirtAddr(ptr), int(n))
	if err != nil {
		return fs.UserBuffer{}, err
	}
	return fs.NewUserBuffer(bufs), nil
}

// putUser writes little-endian words to ptr in the current address space.
func (k *Kernel) putUser(ptr uint64, words ...uint64) error {
	raw := make([]byte, 8*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint64(raw[8*i:], w)
	}
	buf, err := k.userBuffer(ptr, uint64(len(raw)))
	if err != nil {
		return err
	}
	buf.CopyFrom(raw)
	return nil
}
