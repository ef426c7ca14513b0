// Package loader keeps the application images the kernel can run and maps
// them into fresh address spaces.
package loader

import (
	"errors"
	"fmt"

	"strideos/kernel/isa"
	"strideos/kernel/mm"
)

// User address-space layout.
const (
	TextBase      uint64 = 0x10000
	UserStackTop  uint64 = 0x8000_0000
	UserStackSize uint64 = 2 * mm.PageSize
)

var ErrAppNotFound = errors.New("loader: no application with that name")

// Image is a loadable application: instructions mapped at TextBase and an
// initialized data segment mapped right after them.
type Image struct {
	Name string
	Text []isa.Inst
	Data []byte
}

// DataBase returns where the data segment of an image with textLen
// instructions is mapped.
func DataBase(textLen int) uint64 {
	end := TextBase + uint64(textLen*isa.InstBytes)
	return pageRoundUp(end) + mm.PageSize
}

func pageRoundUp(v uint64) uint64 {
	return (v + mm.PageSize - 1) &^ (mm.PageSize - 1)
}

// Load maps img into a new address space and returns it with the entry
// point and initial user stack pointer.
func Load(img *Image) (space *mm.AddressSpace, entry, sp uint64, err error) {
	if len(img.Text) == 0 {
		return nil, 0, 0, fmt.Errorf("load %q: empty text", img.Name)
	}
	space = mm.NewAddressSpace()
	if err := space.MapText(mm.VirtAddr(TextBase), img.Text, mm.PermR|mm.PermX|mm.PermU); err != nil {
		return nil, 0, 0, fmt.Errorf("load %q: %w", img.Name, err)
	}

	if len(img.Data) > 0 {
		base := DataBase(len(img.Text))
		end := base + uint64(len(img.Data))
		space.InsertFramedArea(mm.VirtAddr(base), mm.VirtAddr(end), mm.PermR|mm.PermW|mm.PermU)
		if err := space.WriteBytes(mm.VirtAddr(base), img.Data); err != nil {
			return nil, 0, 0, fmt.Errorf("load %q: %w", img.Name, err)
		}
	}

	space.InsertFramedArea(
		mm.VirtAddr(UserStackTop-UserStackSize),
		mm.VirtAddr(UserStackTop),
		mm.PermR|mm.PermW|mm.PermU,
	)
	return space, TextBase, UserStackTop, nil
}

// Registry finds images by name.
type Registry struct {
	images map[string]*Image
	order  []string
}

// NewRegistry returns a registry holding imgs. Later images replace earlier
// ones with the same name.
func NewRegistry(imgs ...*Image) *Registry {
	r := &Registry{images: make(map[string]*Image)}
	for _, img := range imgs {
		r.Add(img)
	}
	return r
}

// Add registers img.
func (r *Registry) Add(img *Image) {
	if _, ok := r.images[img.Name]; !ok {
		r.order = append(r.order, img.Name)
	}
	r.images[img.Name] = img
}

// Lookup returns the image called name.
func (r *Registry) Lookup(name string) (*Image, error) {
	img, ok := r.images[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAppNotFound, name)
	}
	return img, nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
