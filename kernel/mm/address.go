// Package mm is the address-space collaborator of the kernel: page-granular
// mapped areas with permissions, conflict and containment queries, and the
// user-memory access the hart and the syscalls need.
package mm

import "strings"

const (
	PageSizeBits = 12
	PageSize     = 1 << PageSizeBits

	// MaxUserVA bounds user virtual addresses (the lower half of Sv39).
	MaxUserVA uint64 = 1 << 38
)

// VirtAddr is a user virtual address.
type VirtAddr uint64

// VirtPageNum is a virtual page number.
type VirtPageNum uint64

// Floor returns the page containing va.
func (va VirtAddr) Floor() VirtPageNum { return VirtPageNum(uint64(va) / PageSize) }

// Ceil returns the first page at or above va.
func (va VirtAddr) Ceil() VirtPageNum {
	return VirtPageNum((uint64(va) + PageSize - 1) / PageSize)
}

// PageOffset returns the offset of va inside its page.
func (va VirtAddr) PageOffset() uint64 { return uint64(va) & (PageSize - 1) }

// Aligned reports whether va is page aligned.
func (va VirtAddr) Aligned() bool { return va.PageOffset() == 0 }

// Addr returns the first address of the page.
func (vpn VirtPageNum) Addr() VirtAddr { return VirtAddr(uint64(vpn) * PageSize) }

// MapPermission is the permission set of a mapped area. The bit positions
// follow the Sv39 PTE flags.
type MapPermission uint8

const (
	PermR MapPermission = 1 << 1
	PermW MapPermission = 1 << 2
	PermX MapPermission = 1 << 3
	PermU MapPermission = 1 << 4
)

func (p MapPermission) String() string {
	var b strings.Builder
	for _, f := range []struct {
		bit MapPermission
		c   byte
	}{{PermR, 'R'}, {PermW, 'W'}, {PermX, 'X'}, {PermU, 'U'}} {
		if p&f.bit != 0 {
			b.WriteByte(f.c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}
