package engine

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tstromberg/grade/pkg/adjust"
	"github.com/tstromberg/grade/pkg/lut"
)

// gradient returns a w×h image covering a spread of colors and alphas.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: uint8((x + y) * 255 / max(w+h-2, 1)),
				A: uint8(255 - x),
			})
		}
	}
	return img
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(NewSurface(0, 0))
	require.NoError(t, err)
	t.Cleanup(e.Dispose)
	return e
}

func luma(c color.NRGBA) float64 {
	return 0.2126*float64(c.R) + 0.7152*float64(c.G) + 0.0722*float64(c.B)
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrUnsupported)

	s := NewSurface(4, 4)
	e, err := New(s)
	require.NoError(t, err)

	_, err = New(s)
	assert.ErrorIs(t, err, ErrUnsupported, "second engine on a bound surface")

	e.Dispose()
	e2, err := New(s)
	require.NoError(t, err, "surface is free again after dispose")
	e2.Dispose()
}

func TestCompile(t *testing.T) {
	_, err := compile(nil)
	assert.ErrorIs(t, err, ErrCompile)

	_, err = compile([]pass{{"lut", stageLUT, lutPass}, {"exposure", stageTone, exposurePass}})
	assert.ErrorIs(t, err, ErrCompile)

	_, err = compile([]pass{{"broken", stageTone, nil}})
	assert.ErrorIs(t, err, ErrCompile)

	s := NewSurface(1, 1)
	_, err = newEngine(s, []pass{{"saturation", stageColor, saturationPass}, {"contrast", stageTone, contrastPass}})
	require.ErrorIs(t, err, ErrCompile)
	e, err := New(s)
	require.NoError(t, err, "failed compile must not leave the surface bound")
	e.Dispose()
}

func TestToneRunsBeforeColor(t *testing.T) {
	u := &uniforms{highlights: 0.6, temperature: 0.8}
	c := vec3{0.7, 0.6, 0.5}

	p, err := compile(defaultPasses)
	require.NoError(t, err)
	got := p.run(u, c)
	assert.Equal(t, temperaturePass(u, highlightsPass(u, c)), got)

	reversed := &program{passes: []pass{
		{"temperature", stageColor, temperaturePass},
		{"highlights", stageTone, highlightsPass},
	}}
	other := reversed.run(u, c)
	assert.Greater(t, math.Abs(got.r-other.r), 1e-3, "stacked tone and color edits depend on order")
}

func TestRenderBeforeLoadIsNoop(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Render(adjust.Adjustments{Exposure: 2}))
	assert.Equal(t, 0, e.Surface().Width())
}

func TestLoadImageResizesSurface(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadImage(gradient(7, 3)))
	assert.Equal(t, 7, e.Surface().Width())
	assert.Equal(t, 3, e.Surface().Height())

	require.NoError(t, e.LoadImage(gradient(2, 5)))
	assert.Equal(t, 2, e.Surface().Width())
	assert.Equal(t, 5, e.Surface().Height())
}

func TestNeutralIsIdentity(t *testing.T) {
	e := newTestEngine(t)
	src := gradient(16, 9)
	require.NoError(t, e.LoadImage(src))
	require.NoError(t, e.Render(adjust.Neutral()))

	assert.Equal(t, src.Pix, e.Surface().Image().Pix)
}

func TestNeutralIsIdentityFromNonNRGBA(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 5, 5))
	for i := range src.Pix {
		src.Pix[i] = uint8(i * 7)
	}
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 255
	}

	e := newTestEngine(t)
	require.NoError(t, e.LoadImage(src))
	require.NoError(t, e.Render(adjust.Neutral()))

	out := e.Surface().Image()
	for y := 0; y < 5; y++ {
		for x := 0; x < 5; x++ {
			want := src.RGBAAt(x, y)
			got := out.NRGBAAt(x, y)
			assert.Equal(t, color.NRGBA{want.R, want.G, want.B, want.A}, got)
		}
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.LoadImage(gradient(32, 32)))
	require.NoError(t, e.LoadLUT(lut.Identity(5)))

	a := adjust.Adjustments{Exposure: 0.7, Contrast: 20, Shadows: 30, Temperature: -15, Vibrance: 40}
	require.NoError(t, e.Render(a))
	first, err := e.ToBlob(context.Background(), "image/png", 1)
	require.NoError(t, err)

	require.NoError(t, e.Render(a))
	second, err := e.ToBlob(context.Background(), "image/png", 1)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first.Data, second.Data))
}

func TestExposureIsMonotonic(t *testing.T) {
	e := newTestEngine(t)
	src := gradient(20, 20)
	require.NoError(t, e.LoadImage(src))

	require.NoError(t, e.Render(adjust.Neutral()))
	base := e.Surface().Image()
	require.NoError(t, e.Render(adjust.Adjustments{Exposure: 1}))
	brighter := e.Surface().Image()

	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			assert.GreaterOrEqual(t, luma(brighter.NRGBAAt(x, y)), luma(base.NRGBAAt(x, y)), "pixel %d,%d", x, y)
		}
	}
	assert.Greater(t, luma(brighter.NRGBAAt(10, 10)), luma(base.NRGBAAt(10, 10)))
}

func TestSliderDirections(t *testing.T) {
	mid := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	mid.SetNRGBA(0, 0, color.NRGBA{R: 120, G: 110, B: 100, A: 255})

	tests := []struct {
		name  string
		a     adjust.Adjustments
		check func(t *testing.T, c color.NRGBA)
	}{
		{"warmer", adjust.Adjustments{Temperature: 50}, func(t *testing.T, c color.NRGBA) {
			assert.Greater(t, c.R, uint8(120))
			assert.Less(t, c.B, uint8(100))
		}},
		{"magenta", adjust.Adjustments{Tint: 50}, func(t *testing.T, c color.NRGBA) {
			assert.Less(t, c.G, uint8(110))
		}},
		{"desaturated", adjust.Adjustments{Saturation: -100}, func(t *testing.T, c color.NRGBA) {
			assert.Equal(t, c.R, c.G)
			assert.Equal(t, c.G, c.B)
		}},
		{"shadows lifted", adjust.Adjustments{Shadows: 100}, func(t *testing.T, c color.NRGBA) {
			assert.Greater(t, c.G, uint8(110))
		}},
		{"darker", adjust.Adjustments{Exposure: -1}, func(t *testing.T, c color.NRGBA) {
			assert.Equal(t, uint8(60), c.R)
		}},
		{"flat contrast", adjust.Adjustments{Contrast: -100}, func(t *testing.T, c color.NRGBA) {
			assert.Equal(t, color.NRGBA{128, 128, 128, 255}, c)
		}},
		{"vibrance", adjust.Adjustments{Vibrance: 100}, func(t *testing.T, c color.NRGBA) {
			assert.Greater(t, int(c.R)-int(c.B), 20)
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t)
			require.NoError(t, e.LoadImage(mid))
			require.NoError(t, e.Render(tc.a))
			tc.check(t, e.Surface().Image().NRGBAAt(0, 0))
		})
	}
}

func TestLUTApplied(t *testing.T) {
	// invert every channel
	inv := &lut.LUT{Title: "invert", Size: 2}
	for b := 0; b < 2; b++ {
		for g := 0; g < 2; g++ {
			for r := 0; r < 2; r++ {
				inv.Data = append(inv.Data, float64(1-r), float64(1-g), float64(1-b))
			}
		}
	}

	src := gradient(9, 9)
	e := newTestEngine(t)
	require.NoError(t, e.LoadImage(src))
	require.NoError(t, e.LoadLUT(inv))
	assert.True(t, e.LUTActive())
	require.NoError(t, e.Render(adjust.Neutral()))

	out := e.Surface().Image()
	for y := 0; y < 9; y++ {
		for x := 0; x < 9; x++ {
			s := src.NRGBAAt(x, y)
			o := out.NRGBAAt(x, y)
			assert.InDelta(t, 255-int(s.R), int(o.R), 1)
			assert.InDelta(t, 255-int(s.G), int(o.G), 1)
			assert.InDelta(t, 255-int(s.B), int(o.B), 1)
			assert.Equal(t, s.A, o.A)
		}
	}

	require.NoError(t, e.ClearLUT())
	assert.False(t, e.LUTActive())
	require.NoError(t, e.Render(adjust.Neutral()))
	assert.Equal(t, src.Pix, e.Surface().Image().Pix)
}

func TestIdentityLUTIsNearIdentity(t *testing.T) {
	src := gradient(12, 12)
	e := newTestEngine(t)
	require.NoError(t, e.LoadImage(src))
	require.NoError(t, e.LoadLUT(lut.Identity(17)))
	require.NoError(t, e.Render(adjust.Neutral()))

	out := e.Surface().Image()
	for i := range src.Pix {
		assert.InDelta(t, int(src.Pix[i]), int(out.Pix[i]), 1, "byte %d", i)
	}
}

func TestLoadLUTRejectsInvalid(t *testing.T) {
	e := newTestEngine(t)
	err := e.LoadLUT(&lut.LUT{Size: 3, Data: []float64{0, 0, 0}})
	assert.ErrorIs(t, err, lut.ErrSize)
	assert.False(t, e.LUTActive())

	assert.NotPanics(t, func() {
		err = e.LoadLUT(&lut.LUT{Size: 4194304})
	})
	assert.ErrorIs(t, err, lut.ErrSize)
	assert.False(t, e.LUTActive())
}

func TestToBlob(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.ToBlob(context.Background(), "", 0)
	assert.ErrorIs(t, err, ErrEncode, "empty surface")

	require.NoError(t, e.LoadImage(gradient(8, 6)))
	require.NoError(t, e.Render(adjust.Neutral()))

	for _, mt := range []string{"", "image/jpeg", "image/jpg", "image/png", "image/bmp", "image/tiff"} {
		b, err := e.ToBlob(context.Background(), mt, 0.8)
		require.NoError(t, err, mt)
		assert.NotZero(t, b.Size(), mt)

		cfg, format, err := image.DecodeConfig(bytes.NewReader(b.Data))
		require.NoError(t, err, mt)
		assert.Equal(t, 8, cfg.Width)
		assert.Equal(t, 6, cfg.Height)
		assert.Equal(t, Extension(b.Type), map[string]string{"jpeg": "jpg", "png": "png", "bmp": "bmp", "tiff": "tif"}[format])
	}

	_, err = e.ToBlob(context.Background(), "image/gif", 1)
	assert.ErrorIs(t, err, ErrEncode)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.ToBlob(ctx, "image/png", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPNGRoundTripIsExact(t *testing.T) {
	src := gradient(10, 10)
	e := newTestEngine(t)
	require.NoError(t, e.LoadImage(src))
	require.NoError(t, e.Render(adjust.Neutral()))

	b, err := e.ToBlob(context.Background(), "image/png", 1)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(b.Data))
	require.NoError(t, err)

	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			assert.Equal(t, src.NRGBAAt(x, y), color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA))
		}
	}
}

func TestDisposed(t *testing.T) {
	e, err := New(NewSurface(1, 1))
	require.NoError(t, err)
	e.Dispose()
	e.Dispose()

	assert.ErrorIs(t, e.LoadImage(gradient(1, 1)), ErrDisposed)
	assert.ErrorIs(t, e.LoadLUT(lut.Identity(2)), ErrDisposed)
	assert.ErrorIs(t, e.ClearLUT(), ErrDisposed)
	assert.ErrorIs(t, e.Render(adjust.Neutral()), ErrDisposed)
	_, err = e.ToBlob(context.Background(), "", 0)
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestSampleClampsToEdge(t *testing.T) {
	tex := upload(gradient(3, 3))
	assert.Equal(t, tex.fetch(0, 0), tex.sample(-4, -4))
	assert.Equal(t, tex.fetch(2, 2), tex.sample(10, 10))

	mid := tex.sample(0.5, 0)
	a, b := tex.fetch(0, 0), tex.fetch(1, 0)
	assert.InDelta(t, (a.rgb.r+b.rgb.r)/2, mid.rgb.r, 1e-9)
}
