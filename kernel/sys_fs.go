package kernel

import (
	"errors"

	"strideos/kernel/abi"
	"strideos/kernel/fs"
)

// fileResult maps a file operation outcome to a syscall return value.
func fileResult(n int, err error) int64 {
	switch {
	case err == nil:
		return int64(n)
	case errors.Is(err, fs.ErrEmpty), errors.Is(err, fs.ErrFull):
		return abi.Again
	default:
		return abi.Fail
	}
}

// currentFile returns the current task's file at fd. The task is released
// before the file is used.
func (k *Kernel) currentFile(fd uint64) fs.File {
	t := k.mgr.Current()
	in := t.Exclusive()
	defer t.Release()
	return in.file(fd)
}

func (k *Kernel) sysWrite(fd, buf, n uint64) int64 {
	f := k.currentFile(fd)
	if f == nil || !f.Writable() {
		return abi.Fail
	}
	ub, err := k.userBuffer(buf, n)
	if err != nil {
		return abi.Fail
	}
	return fileResult(f.Write(ub))
}

func (k *Kernel) sysRead(fd, buf, n uint64) int64 {
	f := k.currentFile(fd)
	if f == nil || !f.Readable() {
		return abi.Fail
	}
	ub, err := k.userBuffer(buf, n)
	if err != nil {
		return abi.Fail
	}
	return fileResult(f.Read(ub))
}

func (k *Kernel) sysClose(fd uint64) int64 {
	t := k.mgr.Current()
	in := t.Exclusive()
	f := in.file(fd)
	if f != nil {
		in.fds[fd] = nil
	}
	t.Release()
	if f == nil {
		return abi.Fail
	}
	f.Release()
	return 0
}

// sysPipe creates a pipe and stores its read and write fds at fds.
func (k *Kernel) sysPipe(fds uint64) int64 {
	r, w := fs.MakePipe()
	t := k.mgr.Current()
	in := t.Exclusive()
	rfd := in.allocFd(r)
	wfd := in.allocFd(w)
	t.Release()
	if err := k.putUser(fds, uint64(rfd), uint64(wfd)); err != nil {
		return abi.Fail
	}
	return 0
}

// sysMailWrite posts up to 256 bytes to the mailbox of task pid.
func (k *Kernel) sysMailWrite(pid, buf, n uint64) int64 {
	target := k.mgr.Lookup(int(pid))
	if target == nil {
		return abi.Fail
	}
	in := target.Exclusive()
	mb := in.mailbox()
	target.Release()
	if mb == nil {
		return abi.Fail
	}
	if n > fs.MaxMessageBytes {
		n = fs.MaxMessageBytes
	}
	if mb.IsFull() {
		return abi.Fail
	}
	if n == 0 {
		return 0
	}
	ub, err := k.userBuffer(buf, n)
	if err != nil {
		return abi.Fail
	}
	written, err := mb.Write(ub)
	if err != nil {
		return abi.Fail
	}
	return int64(written)
}

// sysMailRead takes the oldest message from the caller's mailbox.
func (k *Kernel) sysMailRead(buf, n uint64) int64 {
	t := k.mgr.Current()
	mb := t.Exclusive().mailbox()
	t.Release()
	if mb == nil || mb.IsEmpty() {
		return abi.Fail
	}
	if n > fs.MaxMessageBytes {
		n = fs.MaxMessageBytes
	}
	ub, err := k.userBuffer(buf, n)
	if err != nil {
		return abi.Fail
	}
	read, err := mb.Read(ub)
	if err != nil {
		return abi.Fail
	}
	return int64(read)
}
