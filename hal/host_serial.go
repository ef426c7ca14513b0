package hal

import (
	"bufio"
	"io"
	"sync"
	"unicode/utf8"

	tty "github.com/mattn/go-tty"
)

const serialInputDepth = 256

type hostSerial struct {
	mu sync.Mutex
	w  io.Writer
	in chan byte
}

func newHostSerial(w io.Writer) *hostSerial {
	return &hostSerial{w: w, in: make(chan byte, serialInputDepth)}
}

func (s *hostSerial) Write(p []byte) (int, error) {
	if s.w == nil {
		return 0, ErrNotImplemented
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *hostSerial) TryRead() (byte, bool) {
	select {
	case b := <-s.in:
		return b, true
	default:
		return 0, false
	}
}

// feed queues one input byte, dropping it when the queue is full.
func (s *hostSerial) feed(b byte) bool {
	select {
	case s.in <- b:
		return true
	default:
		return false
	}
}

func (s *hostSerial) feedRune(r rune) {
	var buf [utf8.UTFMax]byte
	n := utf8.EncodeRune(buf[:], r)
	for _, b := range buf[:n] {
		s.feed(b)
	}
}

// pump copies r into the input queue until it fails.
func (s *hostSerial) pump(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		s.feed(b)
	}
}

func openTTY(path string) (*tty.TTY, error) {
	if path == "" {
		return tty.Open()
	}
	return tty.OpenDevice(path)
}

// pumpTTY feeds runes typed on t. The terminal stays in non-canonical mode
// until t is closed, so keys arrive without waiting for a newline.
func (s *hostSerial) pumpTTY(t *tty.TTY) {
	go func() {
		for {
			r, err := t.ReadRune()
			if err != nil {
				return
			}
			if r == '\r' {
				r = '\n'
			}
			s.feedRune(r)
		}
	}()
}
