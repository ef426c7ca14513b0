// Package user builds application images for the kernel: a small assembler
// with labels and data symbols, plus wrappers for the syscall ABI.
package user

import (
	"fmt"

	"strideos/kernel/isa"
	"strideos/kernel/loader"
)

type fixupKind uint8

const (
	fixBranch fixupKind = iota
	fixData
)

type fixup struct {
	at   int
	kind fixupKind
	name string
}

// Program accumulates instructions and data for one image. Errors are
// sticky and reported by Image.
type Program struct {
	name   string
	text   []isa.Inst
	data   []byte
	syms   map[string]int
	sizes  map[string]int
	labels map[string]int
	fixups []fixup
	nlabel int
	err    error
}

// New starts a program called name.
func New(name string) *Program {
	return &Program{
		name:   name,
		syms:   make(map[string]int),
		sizes:  make(map[string]int),
		labels: make(map[string]int),
	}
}

func (p *Program) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %s", p.name, fmt.Sprintf(format, args...))
	}
}

func (p *Program) emit(in isa.Inst) {
	p.text = append(p.text, in)
}

// Label marks the next instruction.
func (p *Program) Label(name string) {
	if _, ok := p.labels[name]; ok {
		p.fail("duplicate label %q", name)
		return
	}
	p.labels[name] = len(p.text)
}

// Unique returns a label name not used before in this program.
func (p *Program) Unique(prefix string) string {
	p.nlabel++
	return fmt.Sprintf(".%s%d", prefix, p.nlabel)
}

// Bytes places b in the data segment under sym, 8-byte aligned.
func (p *Program) Bytes(sym string, b []byte) {
	if _, ok := p.syms[sym]; ok {
		p.fail("duplicate symbol %q", sym)
		return
	}
	for len(p.data)%8 != 0 {
		p.data = append(p.data, 0)
	}
	p.syms[sym] = len(p.data)
	p.sizes[sym] = len(b)
	p.data = append(p.data, b...)
}

// String places s in the data segment without a terminator.
func (p *Program) String(sym, s string) { p.Bytes(sym, []byte(s)) }

// CString places s followed by a NUL byte.
func (p *Program) CString(sym, s string) { p.Bytes(sym, append([]byte(s), 0)) }

// Zero reserves n zeroed bytes.
func (p *Program) Zero(sym string, n int) { p.Bytes(sym, make([]byte, n)) }

// Size returns the length of a data symbol.
func (p *Program) Size(sym string) int {
	n, ok := p.sizes[sym]
	if !ok {
		p.fail("unknown symbol %q", sym)
	}
	return n
}

func (p *Program) Li(rd isa.Reg, imm int64) {
	p.emit(isa.Inst{Op: isa.OpLi, Rd: rd, Imm: imm})
}

func (p *Program) Mv(rd, rs isa.Reg) {
	p.emit(isa.Inst{Op: isa.OpAddi, Rd: rd, Rs1: rs})
}

func (p *Program) Addi(rd, rs1 isa.Reg, imm int64) {
	p.emit(isa.Inst{Op: isa.OpAddi, Rd: rd, Rs1: rs1, Imm: imm})
}

func (p *Program) Add(rd, rs1, rs2 isa.Reg) {
	p.emit(isa.Inst{Op: isa.OpAdd, Rd: rd, Rs1: rs1, Rs2: rs2})
}

func (p *Program) Sub(rd, rs1, rs2 isa.Reg) {
	p.emit(isa.Inst{Op: isa.OpSub, Rd: rd, Rs1: rs1, Rs2: rs2})
}

func (p *Program) Ld(rd, base isa.Reg, off int64) {
	p.emit(isa.Inst{Op: isa.OpLd, Rd: rd, Rs1: base, Imm: off})
}

func (p *Program) Sd(src, base isa.Reg, off int64) {
	p.emit(isa.Inst{Op: isa.OpSd, Rs1: base, Rs2: src, Imm: off})
}

func (p *Program) Lbu(rd, base isa.Reg, off int64) {
	p.emit(isa.Inst{Op: isa.OpLbu, Rd: rd, Rs1: base, Imm: off})
}

func (p *Program) Sb(src, base isa.Reg, off int64) {
	p.emit(isa.Inst{Op: isa.OpSb, Rs1: base, Rs2: src, Imm: off})
}

// La loads the address of a data symbol.
func (p *Program) La(rd isa.Reg, sym string) {
	p.fixups = append(p.fixups, fixup{at: len(p.text), kind: fixData, name: sym})
	p.emit(isa.Inst{Op: isa.OpLi, Rd: rd})
}

func (p *Program) branch(op isa.Op, rs1, rs2 isa.Reg, label string) {
	p.fixups = append(p.fixups, fixup{at: len(p.text), kind: fixBranch, name: label})
	p.emit(isa.Inst{Op: op, Rs1: rs1, Rs2: rs2})
}

func (p *Program) Beq(rs1, rs2 isa.Reg, label string) { p.branch(isa.OpBeq, rs1, rs2, label) }
func (p *Program) Bne(rs1, rs2 isa.Reg, label string) { p.branch(isa.OpBne, rs1, rs2, label) }
func (p *Program) Blt(rs1, rs2 isa.Reg, label string) { p.branch(isa.OpBlt, rs1, rs2, label) }
func (p *Program) Bge(rs1, rs2 isa.Reg, label string) { p.branch(isa.OpBge, rs1, rs2, label) }

// J jumps to label.
func (p *Program) J(label string) {
	p.fixups = append(p.fixups, fixup{at: len(p.text), kind: fixBranch, name: label})
	p.emit(isa.Inst{Op: isa.OpJal, Rd: isa.Zero})
}

func (p *Program) Ecall() { p.emit(isa.Inst{Op: isa.OpEcall}) }

// Unimp emits an instruction that always traps as illegal.
func (p *Program) Unimp() { p.emit(isa.Inst{Op: isa.OpUnimp}) }

// Image resolves labels and symbols and returns the loadable image.
func (p *Program) Image() (*loader.Image, error) {
	if p.err != nil {
		return nil, p.err
	}
	text := append([]isa.Inst(nil), p.text...)
	dataBase := loader.DataBase(len(text))
	for _, f := range p.fixups {
		switch f.kind {
		case fixBranch:
			target, ok := p.labels[f.name]
			if !ok {
				return nil, fmt.Errorf("%s: unknown label %q", p.name, f.name)
			}
			text[f.at].Imm = int64(target-f.at) * isa.InstBytes
		case fixData:
			off, ok := p.syms[f.name]
			if !ok {
				return nil, fmt.Errorf("%s: unknown symbol %q", p.name, f.name)
			}
			text[f.at].Imm = int64(dataBase) + int64(off)
		}
	}
	return &loader.Image{
		Name: p.name,
		Text: text,
		Data: append([]byte(nil), p.data...),
	}, nil
}

// MustImage is Image for programs built at init time.
func (p *Program) MustImage() *loader.Image {
	img, err := p.Image()
	if err != nil {
		panic(err)
	}
	return img
}
