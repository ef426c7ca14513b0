//go:build cgo

package hal

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"

	"strideos/internal/buildinfo"
)

// RunWindow starts a desktop window that displays the framebuffer and types
// keyboard input into the serial console. It blocks until the window closes
// or the app fails.
func RunWindow(newApp func(HAL) func() error) error {
	h, err := newHost(HostConfig{NoInput: true})
	if err != nil {
		return err
	}
	defer h.Close()
	step := newApp(h)

	g := &hostGame{h: h, step: step}
	ebiten.SetWindowTitle("strideos (" + buildinfo.Short() + ")")
	ebiten.SetWindowSize(h.fb.width*2, h.fb.height*2)
	ebiten.SetTPS(60)
	return ebiten.RunGame(g)
}

type hostGame struct {
	h       *hostHAL
	img     *image.RGBA
	fbImg   *ebiten.Image
	scratch []byte
	step    func() error
}

func (g *hostGame) Update() error {
	g.h.kbd.poll()
	g.forwardKeys()
	if g.step != nil {
		if err := g.step(); err != nil {
			return err
		}
	}
	return nil
}

// forwardKeys turns pending key presses into console bytes.
func (g *hostGame) forwardKeys() {
	events := g.h.Input().Keyboard().Events()
	for {
		select {
		case ev := <-events:
			if b, ok := keyByte(ev); ok {
				g.h.serial.feed(b)
			} else if ev.Press && ev.Rune != 0 {
				g.h.serial.feedRune(ev.Rune)
			}
		default:
			return
		}
	}
}

func keyByte(ev KeyEvent) (byte, bool) {
	if !ev.Press {
		return 0, false
	}
	switch ev.Code {
	case KeyEnter:
		return '\n', true
	case KeyBackspace:
		return 0x7f, true
	case KeyTab:
		return '\t', true
	case KeyEscape:
		return 0x1b, true
	}
	return 0, false
}

func (g *hostGame) Draw(screen *ebiten.Image) {
	fb := g.h.fb
	if g.img == nil || g.img.Bounds().Dx() != fb.width || g.img.Bounds().Dy() != fb.height {
		g.img = image.NewRGBA(image.Rect(0, 0, fb.width, fb.height))
		g.scratch = make([]byte, len(fb.buf))
		if g.fbImg != nil {
			g.fbImg.Deallocate()
		}
		g.fbImg = ebiten.NewImage(fb.width, fb.height)
	}

	fb.snapshotRGB565(g.scratch)
	expandRGB565(g.img.Pix, g.scratch)

	g.fbImg.WritePixels(g.img.Pix)
	screen.DrawImage(g.fbImg, nil)
}

func (g *hostGame) Layout(outsideWidth, outsideHeight int) (int, int) {
	return g.h.fb.width, g.h.fb.height
}
