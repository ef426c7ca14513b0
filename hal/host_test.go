package hal

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestSerialInput(t *testing.T) {
	s := newHostSerial(nil)
	if _, ok := s.TryRead(); ok {
		t.Fatal("TryRead() on empty queue ok = true")
	}
	s.pump(strings.NewReader("ab"))
	s.feedRune('é')

	var got []byte
	for {
		b, ok := s.TryRead()
		if !ok {
			break
		}
		got = append(got, b)
	}
	if string(got) != "abé" {
		t.Fatalf("input = %q, want %q", got, "abé")
	}
}

func TestSerialInputDropsWhenFull(t *testing.T) {
	s := newHostSerial(nil)
	for i := 0; i < serialInputDepth; i++ {
		if !s.feed('x') {
			t.Fatalf("feed() #%d = false", i)
		}
	}
	if s.feed('y') {
		t.Fatal("feed() into a full queue = true")
	}
}

func TestSerialWrite(t *testing.T) {
	var out bytes.Buffer
	s := newHostSerial(&out)
	if n, err := s.Write([]byte("hi\n")); n != 3 || err != nil {
		t.Fatalf("Write() = %d, %v, want 3, nil", n, err)
	}
	if out.String() != "hi\n" {
		t.Fatalf("output = %q", out.String())
	}
	if _, err := newHostSerial(nil).Write([]byte("x")); err != ErrNotImplemented {
		t.Fatalf("Write() without output error = %v, want ErrNotImplemented", err)
	}
}

func TestFramebufferClear(t *testing.T) {
	fb := NewMemoryFramebuffer(4, 2)
	fb.ClearRGB(0xff, 0, 0)
	buf := fb.Buffer()
	if len(buf) != 4*2*2 {
		t.Fatalf("len(Buffer()) = %d, want 16", len(buf))
	}
	for i := 0; i < len(buf); i += 2 {
		if p := uint16(buf[i]) | uint16(buf[i+1])<<8; p != 0xF800 {
			t.Fatalf("pixel %d = %#04x, want 0xf800", i/2, p)
		}
	}
}

func TestExpandRGB565(t *testing.T) {
	src := []byte{0x00, 0xF8, 0xE0, 0x07, 0x1F, 0x00}
	dst := make([]byte, 12)
	expandRGB565(dst, src)
	want := []byte{255, 0, 0, 255, 0, 255, 0, 255, 0, 0, 255, 255}
	if !bytes.Equal(dst, want) {
		t.Fatalf("expandRGB565() = %v, want %v", dst, want)
	}
}

func TestHostTimeIsMonotonic(t *testing.T) {
	tm := newHostTime()
	a := tm.Micros()
	time.Sleep(2 * time.Millisecond)
	if b := tm.Micros(); b < a+1000 {
		t.Fatalf("Micros() = %d after 2ms, want at least %d", b, a+1000)
	}
}
