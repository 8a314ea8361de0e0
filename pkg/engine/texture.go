package engine

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// texture is an immutable pixel store sampled with linear filtering and
// clamp-to-edge wrapping. Texel centers sit on integer coordinates.
type texture struct {
	img  *image.NRGBA
	w, h int
}

// upload copies src into a fresh texture, converting to NRGBA.
func upload(src image.Image) *texture {
	b := src.Bounds()
	img := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)
	return &texture{img: img, w: b.Dx(), h: b.Dy()}
}

func (t *texture) fetch(x, y int) vec4 {
	x = min(max(x, 0), t.w-1)
	y = min(max(y, 0), t.h-1)
	o := t.img.PixOffset(x, y)
	p := t.img.Pix[o : o+4 : o+4]
	return vec4{
		vec3{float64(p[0]) / 255, float64(p[1]) / 255, float64(p[2]) / 255},
		float64(p[3]) / 255,
	}
}

// sample filters bilinearly around texel-space position (x, y).
func (t *texture) sample(x, y float64) vec4 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	fx := x - x0
	fy := y - y0
	ix, iy := int(x0), int(y0)

	c00 := t.fetch(ix, iy)
	if fx == 0 && fy == 0 {
		return c00
	}
	c10 := t.fetch(ix+1, iy)
	c01 := t.fetch(ix, iy+1)
	c11 := t.fetch(ix+1, iy+1)
	return c00.mix(c10, fx).mix(c01.mix(c11, fx), fy)
}

// lookup treats the texture as a LUT atlas of edge size and returns the
// trilinear interpolation of c through the cube. Each blue slice is sampled
// bilinearly, clamped to its own block, then the two nearest slices are
// blended.
func (t *texture) lookup(size int, c vec3) vec3 {
	n := float64(size - 1)
	rx := c.r * n
	gy := c.g * n
	bz := c.b * n

	b0 := math.Floor(bz)
	b1 := math.Min(b0+1, n)
	fb := bz - b0

	s0 := t.slice(size, int(b0), rx, gy)
	if fb == 0 {
		return s0
	}
	s1 := t.slice(size, int(b1), rx, gy)
	return s0.mix(s1, fb)
}

func (t *texture) slice(size, b int, x, y float64) vec3 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)
	fx := x - x0
	fy := y - y0
	ix0, iy0 := int(x0), int(y0)
	ix1 := min(ix0+1, size-1)
	iy1 := min(iy0+1, size-1)
	off := b * size

	c00 := t.fetch(off+ix0, iy0).rgb
	c10 := t.fetch(off+ix1, iy0).rgb
	c01 := t.fetch(off+ix0, iy1).rgb
	c11 := t.fetch(off+ix1, iy1).rgb
	return c00.mix(c10, fx).mix(c01.mix(c11, fx), fy)
}
