// Package engine renders graded photos: it holds the source image and LUT as
// textures, runs the grading program once per output pixel and encodes the
// result.
package engine

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/parallel"
	"k8s.io/klog/v2"

	"github.com/tstromberg/grade/pkg/adjust"
	"github.com/tstromberg/grade/pkg/lut"
)

var (
	// ErrUnsupported means no rendering context could be bound to the surface.
	ErrUnsupported = errors.New("rendering context unavailable")
	// ErrCompile means the grading program failed to link.
	ErrCompile = errors.New("program compile failed")
	// ErrDisposed is returned by every call on a disposed engine.
	ErrDisposed = errors.New("engine disposed")
	// ErrEncode is returned when the surface cannot be encoded.
	ErrEncode = errors.New("encode failed")
)

// Engine owns a surface, the compiled program and the image and LUT
// textures. An Engine is not safe for concurrent use.
type Engine struct {
	surface *Surface
	program *program

	image     *texture
	lut       *texture
	lutSize   int
	lutActive bool

	disposed bool
}

// New binds a rendering context to s. Only one engine may be bound to a
// surface at a time.
func New(s *Surface) (*Engine, error) {
	return newEngine(s, defaultPasses)
}

func newEngine(s *Surface, passes []pass) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("nil surface: %w", ErrUnsupported)
	}
	if !s.bind() {
		return nil, fmt.Errorf("surface already bound: %w", ErrUnsupported)
	}

	p, err := compile(passes)
	if err != nil {
		s.unbind()
		return nil, err
	}

	klog.V(1).Infof("engine bound to %dx%d surface, %d passes", s.Width(), s.Height(), len(p.passes))
	return &Engine{surface: s, program: p}, nil
}

// Surface returns the drawing surface.
func (e *Engine) Surface() *Surface {
	return e.surface
}

// LoadImage replaces the image texture and resizes the surface to the image.
func (e *Engine) LoadImage(img image.Image) error {
	if e.disposed {
		return ErrDisposed
	}
	if img == nil {
		return errors.New("nil image")
	}

	t := upload(img)
	e.surface.resize(t.w, t.h)
	e.image = t
	klog.V(1).Infof("loaded %dx%d image", t.w, t.h)
	return nil
}

// LoadLUT replaces the LUT texture with the atlas of l and activates it.
func (e *Engine) LoadLUT(l *lut.LUT) error {
	if e.disposed {
		return ErrDisposed
	}
	if err := l.Validate(); err != nil {
		return fmt.Errorf("load lut: %w", err)
	}

	atlas := l.Atlas()
	e.lut = &texture{img: atlas, w: atlas.Bounds().Dx(), h: atlas.Bounds().Dy()}
	e.lutSize = l.Size
	e.lutActive = true
	klog.V(1).Infof("loaded LUT %q (%d³)", l.Title, l.Size)
	return nil
}

// ClearLUT drops the LUT texture. Sliders still apply on the next render.
func (e *Engine) ClearLUT() error {
	if e.disposed {
		return ErrDisposed
	}
	e.lut = nil
	e.lutSize = 0
	e.lutActive = false
	return nil
}

// LUTActive reports whether a LUT is loaded.
func (e *Engine) LUTActive() bool {
	return e.lutActive
}

// Render draws the loaded image through the program with a. It does nothing
// until an image has been loaded. Output depends only on the image, the LUT
// and a.
func (e *Engine) Render(a adjust.Adjustments) error {
	if e.disposed {
		return ErrDisposed
	}
	if e.image == nil {
		return nil
	}

	u := e.uniforms(a)
	dst := e.surface.buf
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	if w == 0 || h == 0 {
		return nil
	}
	sx := float64(e.image.w) / float64(w)
	sy := float64(e.image.h) / float64(h)

	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			ty := (float64(y)+0.5)*sy - 0.5
			for x := 0; x < w; x++ {
				src := e.image.sample((float64(x)+0.5)*sx-0.5, ty)
				c := e.program.run(&u, src.rgb)

				o := dst.PixOffset(x, y)
				dst.Pix[o+0] = toByte(c.r)
				dst.Pix[o+1] = toByte(c.g)
				dst.Pix[o+2] = toByte(c.b)
				dst.Pix[o+3] = toByte(src.a)
			}
		}
	})

	klog.V(2).Infof("rendered %dx%d: %s lut=%v", w, h, a, e.lutActive)
	return nil
}

// Dispose releases the textures and program and unbinds the surface.
func (e *Engine) Dispose() {
	if e.disposed {
		return
	}
	e.image = nil
	e.lut = nil
	e.program = nil
	e.lutActive = false
	e.disposed = true
	e.surface.unbind()
}

func (e *Engine) uniforms(a adjust.Adjustments) uniforms {
	return uniforms{
		exposure:    a.Exposure,
		contrast:    a.Contrast / 100,
		highlights:  a.Highlights / 100,
		shadows:     a.Shadows / 100,
		whites:      a.Whites / 100,
		blacks:      a.Blacks / 100,
		temperature: a.Temperature / 100,
		tint:        a.Tint / 100,
		vibrance:    a.Vibrance / 100,
		saturation:  a.Saturation / 100,
		lutActive:   e.lutActive,
		lutSize:     e.lutSize,
		lut:         e.lut,
	}
}

func toByte(v float64) uint8 {
	return uint8(math.Round(clamp01(v) * 255))
}
