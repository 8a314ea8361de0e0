package lut

import (
	"image"
	"math"
)

// Atlas packs the cube into a 2D image so a 2D texture can stand in for a 3D
// one: Size rows indexed by green, Size*Size columns made of one Size-wide
// block per blue slice with red varying fastest inside the block.
func (l *LUT) Atlas() *image.NRGBA {
	n := l.Size
	img := image.NewNRGBA(image.Rect(0, 0, n*n, n))

	i := 0
	for b := 0; b < n; b++ {
		for g := 0; g < n; g++ {
			for r := 0; r < n; r++ {
				o := img.PixOffset(b*n+r, g)
				img.Pix[o+0] = toByte(l.Data[i])
				img.Pix[o+1] = toByte(l.Data[i+1])
				img.Pix[o+2] = toByte(l.Data[i+2])
				img.Pix[o+3] = 255
				i += 3
			}
		}
	}
	return img
}

func toByte(v float64) uint8 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}
