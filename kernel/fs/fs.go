// Package fs is the file abstraction shared by stdio, pipes and mailboxes.
// Every file operation is synchronous and non-blocking: a caller that cannot
// make progress gets ErrEmpty or ErrFull and is expected to poll.
package fs

import "errors"

var (
	ErrEmpty       = errors.New("fs: nothing to read")
	ErrFull        = errors.New("fs: no room to write")
	ErrBrokenPipe  = errors.New("fs: pipe has no readers")
	ErrNotReadable = errors.New("fs: file is not readable")
	ErrNotWritable = errors.New("fs: file is not writable")
	ErrInvalidText = errors.New("fs: message is not valid UTF-8")
)

// File is a byte-stream or message capability held in task fd tables.
//
// A file may sit in any number of fd slots at once. Each slot owns one
// reference: Retain is called when a slot starts referring to the file and
// Release when the slot drops it.
type File interface {
	Readable() bool
	Writable() bool
	Read(buf UserBuffer) (int, error)
	Write(buf UserBuffer) (int, error)
	IsFull() bool
	IsEmpty() bool
	Retain()
	Release()
}

// UserBuffer is a user virtual range seen as the page-sized pieces that back it.
type UserBuffer struct {
	Buffers [][]byte
}

// NewUserBuffer wraps translated page slices.
func NewUserBuffer(bufs [][]byte) UserBuffer {
	return UserBuffer{Buffers: bufs}
}

// Len returns the total length in bytes.
func (b UserBuffer) Len() int {
	n := 0
	for _, p := range b.Buffers {
		n += len(p)
	}
	return n
}

// Bytes gathers the buffer into one slice.
func (b UserBuffer) Bytes() []byte {
	out := make([]byte, 0, b.Len())
	for _, p := range b.Buffers {
		out = append(out, p...)
	}
	return out
}

// CopyFrom scatters src into the buffer and returns the bytes copied.
func (b UserBuffer) CopyFrom(src []byte) int {
	n := 0
	for _, p := range b.Buffers {
		if len(src) == 0 {
			break
		}
		c := copy(p, src)
		src = src[c:]
		n += c
	}
	return n
}
