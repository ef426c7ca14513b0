package fs

import "strideos/kernel/excl"

// RingBufferSize is the capacity of a pipe in bytes.
const RingBufferSize = 32

type pipeRing struct {
	head    uint32
	tail    uint32
	buf     [RingBufferSize]byte
	readers int
	writers int
}

func (r *pipeRing) len() int { return int(r.head - r.tail) }

func (r *pipeRing) push(b byte) bool {
	if r.len() >= RingBufferSize {
		return false
	}
	r.buf[r.head%RingBufferSize] = b
	r.head++
	return true
}

func (r *pipeRing) pop() (byte, bool) {
	if r.head == r.tail {
		return 0, false
	}
	b := r.buf[r.tail%RingBufferSize]
	r.tail++
	return b, true
}

// Pipe is one end of a unidirectional byte channel.
type Pipe struct {
	readable bool
	ring     *excl.Cell[pipeRing]
}

// MakePipe returns the read and write ends of a new pipe. Each end starts
// with one reference.
func MakePipe() (read, write *Pipe) {
	ring := excl.New(pipeRing{readers: 1, writers: 1})
	return &Pipe{readable: true, ring: ring}, &Pipe{ring: ring}
}

func (p *Pipe) Readable() bool { return p.readable }
func (p *Pipe) Writable() bool { return !p.readable }

// Read drains up to buf.Len() bytes. An empty pipe whose write ends are all
// released reads as end of file (0, nil).
func (p *Pipe) Read(buf UserBuffer) (int, error) {
	if !p.readable {
		return 0, ErrNotReadable
	}
	r := p.ring.Exclusive()
	defer p.ring.Release()

	if r.len() == 0 {
		if r.writers == 0 {
			return 0, nil
		}
		return 0, ErrEmpty
	}
	n := 0
	for _, seg := range buf.Buffers {
		for i := range seg {
			b, ok := r.pop()
			if !ok {
				return n, nil
			}
			seg[i] = b
			n++
		}
	}
	return n, nil
}

// Write stores as many bytes as fit.
func (p *Pipe) Write(buf UserBuffer) (int, error) {
	if p.readable {
		return 0, ErrNotWritable
	}
	r := p.ring.Exclusive()
	defer p.ring.Release()

	if r.readers == 0 {
		return 0, ErrBrokenPipe
	}
	if r.len() >= RingBufferSize {
		return 0, ErrFull
	}
	n := 0
	for _, seg := range buf.Buffers {
		for _, b := range seg {
			if !r.push(b) {
				return n, nil
			}
			n++
		}
	}
	return n, nil
}

func (p *Pipe) IsFull() bool {
	r := p.ring.Exclusive()
	defer p.ring.Release()
	return r.len() >= RingBufferSize
}

func (p *Pipe) IsEmpty() bool {
	r := p.ring.Exclusive()
	defer p.ring.Release()
	return r.len() == 0
}

func (p *Pipe) Retain() {
	p.ring.With(func(r *pipeRing) {
		if p.readable {
			r.readers++
		} else {
			r.writers++
		}
	})
}

func (p *Pipe) Release() {
	p.ring.With(func(r *pipeRing) {
		if p.readable {
			r.readers--
		} else {
			r.writers--
		}
	})
}
