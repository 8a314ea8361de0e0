package engine

import (
	"image"
	"sync"
)

// Surface is the drawing buffer an engine renders into. Pixels are stored
// non-premultiplied and persist between renders so they can be read back and
// encoded after the fact.
type Surface struct {
	mu    sync.Mutex
	buf   *image.NRGBA
	bound bool
}

// NewSurface returns a w×h surface. Either dimension may be zero; loading an
// image resizes the surface to fit it.
func NewSurface(w, h int) *Surface {
	return &Surface{buf: image.NewNRGBA(image.Rect(0, 0, max(w, 0), max(h, 0)))}
}

// Width returns the surface width in pixels.
func (s *Surface) Width() int {
	return s.buf.Bounds().Dx()
}

// Height returns the surface height in pixels.
func (s *Surface) Height() int {
	return s.buf.Bounds().Dy()
}

// Image returns a copy of the current drawing buffer.
func (s *Surface) Image() *image.NRGBA {
	out := image.NewNRGBA(s.buf.Bounds())
	copy(out.Pix, s.buf.Pix)
	return out
}

func (s *Surface) resize(w, h int) {
	if s.buf.Bounds().Dx() == w && s.buf.Bounds().Dy() == h {
		return
	}
	s.buf = image.NewNRGBA(image.Rect(0, 0, w, h))
}

func (s *Surface) bind() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound {
		return false
	}
	s.bound = true
	return true
}

func (s *Surface) unbind() {
	s.mu.Lock()
	s.bound = false
	s.mu.Unlock()
}
