package kernel

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"strideos/kernel/abi"
	"strideos/kernel/fs"
	"strideos/kernel/loader"
	"strideos/kernel/mm"
)

const scratchBase = 0x2000_0000

// bootSpinner boots a kernel whose current task yields forever and gives it
// a read-write scratch page at scratchBase.
func bootSpinner(t *testing.T, names ...string) (*Kernel, *testConsole) {
	t.Helper()
	if len(names) == 0 {
		names = []string{"spin"}
	}
	imgs := make([]*loader.Image, 0, len(names))
	for _, n := range names {
		imgs = append(imgs, spin(n))
	}
	k, con := bootKernel(t, loader.NewRegistry(imgs...), names...)
	if ret := k.sysMmap(scratchBase, 2*mm.PageSize, abi.ProtRead|abi.ProtWrite); ret != 0 {
		t.Fatalf("mmap scratch = %d, want 0", ret)
	}
	return k, con
}

func poke(t *testing.T, k *Kernel, va uint64, data []byte) {
	t.Helper()
	buf, err := k.userBuffer(va, uint64(len(data)))
	if err != nil {
		t.Fatalf("userBuffer(%#x) error = %v", va, err)
	}
	buf.CopyFrom(data)
}

func peek(t *testing.T, k *Kernel, va uint64, n int) []byte {
	t.Helper()
	buf, err := k.userBuffer(va, uint64(n))
	if err != nil {
		t.Fatalf("userBuffer(%#x) error = %v", va, err)
	}
	return buf.Bytes()
}

func call(k *Kernel, id uint64, a0, a1, a2 uint64) int64 {
	return k.syscall(id, [3]uint64{a0, a1, a2})
}

func TestMmapRules(t *testing.T) {
	k, _ := bootSpinner(t)
	const base = 0x4000_0000
	tests := []struct {
		name   string
		start  uint64
		length uint64
		prot   uint64
		want   int64
	}{
		{"zero prot", base, mm.PageSize, 0, abi.Fail},
		{"high prot bit", base, mm.PageSize, 0b1001, abi.Fail},
		{"misaligned", base + 8, mm.PageSize, abi.ProtRead, abi.Fail},
		{"zero length", base, 0, abi.ProtRead, abi.Fail},
		{"beyond user space", mm.MaxUserVA - mm.PageSize, 2 * mm.PageSize, abi.ProtRead, abi.Fail},
		{"wraps", base, ^uint64(0), abi.ProtRead, abi.Fail},
		{"overlaps scratch", scratchBase + mm.PageSize, mm.PageSize, abi.ProtRead, abi.Fail},
		{"ok", base, 3 * mm.PageSize, abi.ProtRead | abi.ProtWrite, 0},
		{"overlaps previous", base + 2*mm.PageSize, mm.PageSize, abi.ProtRead, abi.Fail},
		{"partial page", base + 4*mm.PageSize, 10, abi.ProtExec, 0},
	}
	for _, tt := range tests {
		if got := call(k, abi.SysMmap, tt.start, tt.length, tt.prot); got != tt.want {
			t.Errorf("%s: mmap(%#x, %#x, %#b) = %d, want %d", tt.name, tt.start, tt.length, tt.prot, got, tt.want)
		}
	}

	space := k.currentSpace()
	if !space.Accessible(mm.VirtAddr(base), mm.VirtAddr(base+3*mm.PageSize), mm.PermR|mm.PermW) {
		t.Fatal("mapped range is not user read-write")
	}
	if space.Accessible(mm.VirtAddr(base+4*mm.PageSize), mm.VirtAddr(base+5*mm.PageSize), mm.PermR) {
		t.Fatal("exec-only mapping is readable")
	}
}

func TestMunmapRules(t *testing.T) {
	k, _ := bootSpinner(t)
	const base = 0x4000_0000
	if got := call(k, abi.SysMmap, base, 2*mm.PageSize, abi.ProtRead); got != 0 {
		t.Fatalf("mmap = %d, want 0", got)
	}

	tests := []struct {
		name   string
		start  uint64
		length uint64
		want   int64
	}{
		{"misaligned", base + 1, mm.PageSize, abi.Fail},
		{"not at area start", base + mm.PageSize, mm.PageSize, abi.Fail},
		{"past area end", base, 3 * mm.PageSize, abi.Fail},
		{"unmapped", 0x5000_0000, mm.PageSize, abi.Fail},
		{"zero length", base, 0, abi.Fail},
		{"exact", base, 2 * mm.PageSize, 0},
		{"again", base, 2 * mm.PageSize, abi.Fail},
	}
	for _, tt := range tests {
		if got := call(k, abi.SysMunmap, tt.start, tt.length, 0); got != tt.want {
			t.Errorf("%s: munmap(%#x, %#x) = %d, want %d", tt.name, tt.start, tt.length, got, tt.want)
		}
	}
	if k.currentSpace().Contains(mm.VirtAddr(base), mm.VirtAddr(base+1)) {
		t.Fatal("area still mapped after munmap")
	}
	if got := call(k, abi.SysMmap, base, mm.PageSize, abi.ProtRead); got != 0 {
		t.Fatalf("mmap after munmap = %d, want 0", got)
	}
}

func TestIllegalPointerIsRejected(t *testing.T) {
	k, con := bootSpinner(t)
	if got := call(k, abi.SysWrite, 1, 0, 16); got != abi.Fail {
		t.Fatalf("write(1, NULL, 16) = %d, want -1", got)
	}
	if !strings.Contains(con.out.String(), "[kernel] Illegal access") {
		t.Fatalf("console = %q, want an illegal access diagnostic", con.out.String())
	}

	// Text is mapped but not writable from the kernel's point of view.
	if got := call(k, abi.SysRead, 0, loader.TextBase, 4); got != abi.Fail {
		t.Fatalf("read into text = %d, want -1", got)
	}
	if got := call(k, abi.SysWrite, 1, scratchBase+2*mm.PageSize-4, 8); got != abi.Fail {
		t.Fatalf("write past scratch = %d, want -1", got)
	}
	if got := call(k, abi.SysGetTime, ^uint64(0)-4, 0, 0); got != abi.Fail {
		t.Fatalf("get_time at wrapping address = %d, want -1", got)
	}
}

func TestWriteCrossesPages(t *testing.T) {
	k, con := bootSpinner(t)
	msg := []byte("split across a page boundary\n")
	va := uint64(scratchBase + mm.PageSize - 5)
	poke(t, k, va, msg)
	if got := call(k, abi.SysWrite, 1, va, uint64(len(msg))); got != int64(len(msg)) {
		t.Fatalf("write = %d, want %d", got, len(msg))
	}
	if got := con.out.String(); got != string(msg) {
		t.Fatalf("console = %q, want %q", got, msg)
	}
	if got := call(k, abi.SysWrite, 42, va, 1); got != abi.Fail {
		t.Fatalf("write to bad fd = %d, want -1", got)
	}
	if got := call(k, abi.SysWrite, FdStdin, va, 1); got != abi.Fail {
		t.Fatalf("write to stdin = %d, want -1", got)
	}
}

func TestPipeSyscalls(t *testing.T) {
	k, _ := bootSpinner(t)
	if got := call(k, abi.SysPipe, scratchBase, 0, 0); got != 0 {
		t.Fatalf("pipe = %d, want 0", got)
	}
	raw := peek(t, k, scratchBase, abi.FdPairBytes)
	rfd := binary.LittleEndian.Uint64(raw[:8])
	wfd := binary.LittleEndian.Uint64(raw[8:])
	if rfd != 4 || wfd != 5 {
		t.Fatalf("pipe fds = %d, %d, want 4, 5", rfd, wfd)
	}

	in := uint64(scratchBase + 64)
	out := uint64(scratchBase + 256)
	poke(t, k, in, []byte("abcdef"))
	if got := call(k, abi.SysRead, rfd, out, 8); got != abi.Again {
		t.Fatalf("read empty pipe = %d, want -2", got)
	}
	if got := call(k, abi.SysWrite, wfd, in, 6); got != 6 {
		t.Fatalf("write pipe = %d, want 6", got)
	}
	if got := call(k, abi.SysWrite, rfd, in, 6); got != abi.Fail {
		t.Fatalf("write to read end = %d, want -1", got)
	}
	if got := call(k, abi.SysRead, rfd, out, 4); got != 4 {
		t.Fatalf("read pipe = %d, want 4", got)
	}
	if got := call(k, abi.SysRead, rfd, out+4, 8); got != 2 {
		t.Fatalf("read rest = %d, want 2", got)
	}
	if got := string(peek(t, k, out, 6)); got != "abcdef" {
		t.Fatalf("read bytes = %q, want %q", got, "abcdef")
	}

	if got := call(k, abi.SysClose, wfd, 0, 0); got != 0 {
		t.Fatalf("close = %d, want 0", got)
	}
	if got := call(k, abi.SysClose, wfd, 0, 0); got != abi.Fail {
		t.Fatalf("second close = %d, want -1", got)
	}
	if got := call(k, abi.SysRead, rfd, out, 8); got != 0 {
		t.Fatalf("read after writer closed = %d, want 0 (EOF)", got)
	}

	// The freed slot is reused.
	if got := call(k, abi.SysPipe, scratchBase, 0, 0); got != 0 {
		t.Fatalf("pipe = %d, want 0", got)
	}
	raw = peek(t, k, scratchBase, abi.FdPairBytes)
	if got := binary.LittleEndian.Uint64(raw[:8]); got != 5 {
		t.Fatalf("new read fd = %d, want 5", got)
	}
}

func TestMailboxSyscalls(t *testing.T) {
	k, _ := bootSpinner(t, "a", "b")
	self := uint64(k.mgr.Current().Pid())
	other := uint64(k.mgr.slots[1].Pid())

	msg := uint64(scratchBase)
	poke(t, k, msg, bytes.Repeat([]byte("x"), 300))
	out := uint64(scratchBase + mm.PageSize)

	if got := call(k, abi.SysMailRead, out, 64, 0); got != abi.Fail {
		t.Fatalf("mailread on empty mailbox = %d, want -1", got)
	}
	if got := call(k, abi.SysMailWrite, 9999, msg, 4); got != abi.Fail {
		t.Fatalf("mailwrite to missing pid = %d, want -1", got)
	}
	if got := call(k, abi.SysMailWrite, self, msg, 300); got != fs.MaxMessageBytes {
		t.Fatalf("mailwrite(300 bytes) = %d, want %d", got, fs.MaxMessageBytes)
	}
	if got := call(k, abi.SysMailRead, out, 10, 0); got != 10 {
		t.Fatalf("mailread(10) = %d, want 10", got)
	}
	if got := call(k, abi.SysMailRead, out, 64, 0); got != abi.Fail {
		t.Fatalf("mailread after discard = %d, want -1", got)
	}

	for i := 0; i < fs.MailboxCapacity; i++ {
		if got := call(k, abi.SysMailWrite, other, msg, 8); got != 8 {
			t.Fatalf("mailwrite #%d = %d, want 8", i, got)
		}
	}
	if got := call(k, abi.SysMailWrite, other, msg, 8); got != abi.Fail {
		t.Fatalf("mailwrite to full mailbox = %d, want -1", got)
	}
	if got := call(k, abi.SysMailWrite, other, msg, 0); got != abi.Fail {
		t.Fatalf("empty mailwrite to full mailbox = %d, want -1", got)
	}
	if got := call(k, abi.SysMailWrite, self, msg, 0); got != 0 {
		t.Fatalf("empty mailwrite = %d, want 0", got)
	}

	poke(t, k, msg, []byte{0xff, 0xfe, 0xfd})
	if got := call(k, abi.SysMailWrite, self, msg, 3); got != abi.Fail {
		t.Fatalf("mailwrite(invalid UTF-8) = %d, want -1", got)
	}
	if got := call(k, abi.SysMailRead, out, 64, 0); got != abi.Fail {
		t.Fatalf("invalid message was queued: mailread = %d", got)
	}
}

func TestWaitpidWithoutChildren(t *testing.T) {
	k, _ := bootSpinner(t)
	if got := call(k, abi.SysWaitpid, ^uint64(0), scratchBase, 0); got != abi.Fail {
		t.Fatalf("waitpid(-1) = %d, want -1", got)
	}
	if got := call(k, abi.SysGetpid, 0, 0, 0); got != int64(k.mgr.Current().Pid()) {
		t.Fatalf("getpid = %d, want %d", got, k.mgr.Current().Pid())
	}
}
