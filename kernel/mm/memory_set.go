package mm

import (
	"errors"
	"fmt"

	"strideos/kernel/isa"
)

var (
	ErrUnmapped   = errors.New("mm: address not mapped")
	ErrNotFramed  = errors.New("mm: area has no data frames")
	ErrOutOfRange = errors.New("mm: range outside user space")
)

// MemorySet is the capability the kernel holds over one task's address space.
type MemorySet interface {
	// Conflicts reports whether any page of [start, end) is already mapped.
	Conflicts(start, end VirtAddr) bool
	// Contains reports whether [start, end) lies inside a single mapped area.
	Contains(start, end VirtAddr) bool
	// AreaStartsAt reports whether a mapped area begins at vpn.
	AreaStartsAt(vpn VirtPageNum) bool
	InsertFramedArea(start, end VirtAddr, perm MapPermission)
	RemoveAreaWithStart(vpn VirtPageNum) bool
	// Accessible reports whether every page of [start, end) is mapped
	// user-accessible with at least perm.
	Accessible(start, end VirtAddr, perm MapPermission) bool
	// Translate returns the frame slices backing [start, start+n).
	Translate(start VirtAddr, n int) ([][]byte, error)
	Clone() MemorySet

	Fetch(va uint64) (isa.Inst, error)
	Load(va uint64, size int) (uint64, error)
	Store(va uint64, size int, v uint64) error
}

// Area describes one mapped area.
type Area struct {
	Start VirtAddr
	End   VirtAddr
	Perm  MapPermission
}

func (a Area) String() string {
	return fmt.Sprintf("[%#x, %#x) %s", uint64(a.Start), uint64(a.End), a.Perm)
}

type mapArea struct {
	start  VirtPageNum
	end    VirtPageNum
	perm   MapPermission
	frames map[VirtPageNum][]byte
	text   []isa.Inst
}

func (a *mapArea) covers(vpn VirtPageNum) bool {
	return vpn >= a.start && vpn < a.end
}

// AddressSpace is the host implementation of MemorySet. Data areas are backed
// by zeroed page frames; text areas hold decoded instructions.
type AddressSpace struct {
	areas []*mapArea
}

// NewAddressSpace returns an empty address space.
func NewAddressSpace() *AddressSpace {
	return &AddressSpace{}
}

// InsertFramedArea maps [start, end) rounded out to whole pages.
func (s *AddressSpace) InsertFramedArea(start, end VirtAddr, perm MapPermission) {
	a := &mapArea{
		start:  start.Floor(),
		end:    end.Ceil(),
		perm:   perm,
		frames: make(map[VirtPageNum][]byte),
	}
	for vpn := a.start; vpn < a.end; vpn++ {
		a.frames[vpn] = make([]byte, PageSize)
	}
	s.areas = append(s.areas, a)
}

// MapText maps an instruction area starting at the page-aligned start.
func (s *AddressSpace) MapText(start VirtAddr, text []isa.Inst, perm MapPermission) error {
	if !start.Aligned() {
		return fmt.Errorf("map text at %#x: %w", uint64(start), ErrOutOfRange)
	}
	end := start + VirtAddr(len(text)*isa.InstBytes)
	if s.Conflicts(start, end) {
		return fmt.Errorf("map text at %#x: overlaps an existing area", uint64(start))
	}
	s.areas = append(s.areas, &mapArea{
		start: start.Floor(),
		end:   end.Ceil(),
		perm:  perm,
		text:  text,
	})
	return nil
}

// WriteBytes copies data into framed memory regardless of permissions. It is
// used by the loader to populate a fresh image.
func (s *AddressSpace) WriteBytes(va VirtAddr, data []byte) error {
	bufs, err := s.Translate(va, len(data))
	if err != nil {
		return err
	}
	for _, b := range bufs {
		n := copy(b, data)
		data = data[n:]
	}
	return nil
}

// Areas returns the mapped areas in insertion order.
func (s *AddressSpace) Areas() []Area {
	out := make([]Area, 0, len(s.areas))
	for _, a := range s.areas {
		out = append(out, Area{Start: a.start.Addr(), End: a.end.Addr(), Perm: a.perm})
	}
	return out
}

func (s *AddressSpace) area(vpn VirtPageNum) *mapArea {
	for _, a := range s.areas {
		if a.covers(vpn) {
			return a
		}
	}
	return nil
}

func (s *AddressSpace) Conflicts(start, end VirtAddr) bool {
	lo, hi := start.Floor(), end.Ceil()
	for _, a := range s.areas {
		if lo < a.end && a.start < hi {
			return true
		}
	}
	return false
}

func (s *AddressSpace) Contains(start, end VirtAddr) bool {
	lo, hi := start.Floor(), end.Ceil()
	if lo >= hi {
		return false
	}
	for _, a := range s.areas {
		if a.start <= lo && hi <= a.end {
			return true
		}
	}
	return false
}

func (s *AddressSpace) AreaStartsAt(vpn VirtPageNum) bool {
	for _, a := range s.areas {
		if a.start == vpn {
			return true
		}
	}
	return false
}

func (s *AddressSpace) RemoveAreaWithStart(vpn VirtPageNum) bool {
	for i, a := range s.areas {
		if a.start == vpn {
			s.areas = append(s.areas[:i], s.areas[i+1:]...)
			return true
		}
	}
	return false
}

func (s *AddressSpace) Accessible(start, end VirtAddr, perm MapPermission) bool {
	if end < start || uint64(end) > MaxUserVA {
		return false
	}
	if start == end {
		return true
	}
	want := perm | PermU
	lo, hi := start.Floor(), end.Ceil()
	for vpn := lo; vpn < hi; {
		a := s.area(vpn)
		if a == nil || a.perm&want != want {
			return false
		}
		vpn = a.end
	}
	return true
}

func (s *AddressSpace) Translate(start VirtAddr, n int) ([][]byte, error) {
	if n < 0 || uint64(start)+uint64(n) > MaxUserVA {
		return nil, ErrOutOfRange
	}
	var out [][]byte
	va := start
	for n > 0 {
		vpn := va.Floor()
		a := s.area(vpn)
		if a == nil {
			return nil, fmt.Errorf("translate %#x: %w", uint64(va), ErrUnmapped)
		}
		frame := a.frames[vpn]
		if frame == nil {
			return nil, fmt.Errorf("translate %#x: %w", uint64(va), ErrNotFramed)
		}
		off := int(va.PageOffset())
		take := PageSize - off
		if take > n {
			take = n
		}
		out = append(out, frame[off:off+take])
		va += VirtAddr(take)
		n -= take
	}
	return out, nil
}

// Clone returns a deep copy: data frames are duplicated, text is shared
// because it is never written.
func (s *AddressSpace) Clone() MemorySet {
	c := &AddressSpace{areas: make([]*mapArea, 0, len(s.areas))}
	for _, a := range s.areas {
		na := &mapArea{start: a.start, end: a.end, perm: a.perm, text: a.text}
		if a.frames != nil {
			na.frames = make(map[VirtPageNum][]byte, len(a.frames))
			for vpn, f := range a.frames {
				nf := make([]byte, len(f))
				copy(nf, f)
				na.frames[vpn] = nf
			}
		}
		c.areas = append(c.areas, na)
	}
	return c
}

func (s *AddressSpace) Fetch(va uint64) (isa.Inst, error) {
	if va%isa.InstBytes != 0 {
		return isa.Inst{}, &isa.Fault{Cause: isa.InstructionMisaligned, Addr: va}
	}
	if va >= MaxUserVA {
		return isa.Inst{}, &isa.Fault{Cause: isa.InstructionFault, Addr: va}
	}
	a := s.area(VirtAddr(va).Floor())
	if a == nil || a.text == nil || a.perm&(PermX|PermU) != PermX|PermU {
		return isa.Inst{}, &isa.Fault{Cause: isa.InstructionPageFault, Addr: va}
	}
	idx := (va - uint64(a.start.Addr())) / isa.InstBytes
	if idx >= uint64(len(a.text)) {
		return isa.Inst{}, &isa.Fault{Cause: isa.InstructionPageFault, Addr: va}
	}
	return a.text[idx], nil
}

func (s *AddressSpace) Load(va uint64, size int) (uint64, error) {
	if va >= MaxUserVA || va+uint64(size) > MaxUserVA {
		return 0, &isa.Fault{Cause: isa.LoadFault, Addr: va}
	}
	var v uint64
	for i := 0; i < size; i++ {
		b, ok := s.byteAt(va+uint64(i), PermR)
		if !ok {
			return 0, &isa.Fault{Cause: isa.LoadPageFault, Addr: va + uint64(i)}
		}
		v |= uint64(*b) << (8 * i)
	}
	return v, nil
}

func (s *AddressSpace) Store(va uint64, size int, v uint64) error {
	if va >= MaxUserVA || va+uint64(size) > MaxUserVA {
		return &isa.Fault{Cause: isa.StoreFault, Addr: va}
	}
	ptrs := make([]*byte, size)
	for i := range ptrs {
		b, ok := s.byteAt(va+uint64(i), PermW)
		if !ok {
			return &isa.Fault{Cause: isa.StorePageFault, Addr: va + uint64(i)}
		}
		ptrs[i] = b
	}
	for i, b := range ptrs {
		*b = byte(v >> (8 * i))
	}
	return nil
}

func (s *AddressSpace) byteAt(va uint64, perm MapPermission) (*byte, bool) {
	vpn := VirtAddr(va).Floor()
	a := s.area(vpn)
	if a == nil || a.perm&(perm|PermU) != perm|PermU {
		return nil, false
	}
	frame := a.frames[vpn]
	if frame == nil {
		return nil, false
	}
	return &frame[VirtAddr(va).PageOffset()], true
}
