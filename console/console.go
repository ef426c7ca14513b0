// Package console runs a tinyterm terminal on a HAL framebuffer.
package console

import (
	"sync"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"

	"strideos/hal"
)

// Console mirrors text output onto a framebuffer. It is safe for concurrent
// writers.
type Console struct {
	mu  sync.Mutex
	d   *fbDisplay
	cfg tinyterm.Config
	t   *tinyterm.Terminal
}

// New clears fb and returns a console drawing with font. A nil font selects
// the bundled Proggy font.
func New(fb hal.Framebuffer, font *tinyfont.Font) *Console {
	if font == nil {
		font = &proggy.TinySZ8pt7b
	}
	height := int16(font.GetYAdvance())
	offset := -int16(font.GetGlyph('M').Info().YOffset)
	if offset <= 0 || offset >= height {
		offset = height - 1
	}
	c := &Console{
		d: &fbDisplay{fb: fb},
		cfg: tinyterm.Config{
			Font:              font,
			FontHeight:        height,
			FontOffset:        offset,
			UseSoftwareScroll: true,
		},
	}
	c.reset()
	return c
}

// Write draws p and presents the framebuffer.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t == nil {
		return len(p), nil
	}
	n, err := c.t.Write(p)
	if derr := c.d.Display(); err == nil {
		err = derr
	}
	return n, err
}

// Reset clears the screen and homes the cursor.
func (c *Console) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Console) reset() {
	if c.d.fb == nil || c.cfg.FontHeight <= 0 || c.d.fb.Height() < int(c.cfg.FontHeight) {
		return
	}
	c.d.fb.ClearRGB(0, 0, 0)
	c.t = tinyterm.NewTerminal(c.d)
	c.t.Configure(&c.cfg)
	_ = c.d.Display()
}
