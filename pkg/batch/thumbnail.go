package batch

import (
	"fmt"
	"image"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"k8s.io/klog/v2"
)

// ThumbOpts are thumbnail options. A zero X or Y keeps the aspect ratio.
type ThumbOpts struct {
	X       int
	Y       int
	Quality int
}

// DefaultThumbOpts sizes the preview strip.
var DefaultThumbOpts = ThumbOpts{Y: 180, Quality: 75}

func createThumb(i image.Image, t ThumbOpts) (image.Image, error) {
	x := t.X
	y := t.Y

	if i.Bounds().Dy() == 0 {
		return nil, fmt.Errorf("no Y for %v", i.Bounds())
	}

	if i.Bounds().Dx() == 0 {
		return nil, fmt.Errorf("no X for %v", i.Bounds())
	}

	if t.X == 0 && t.Y == 0 {
		return nil, fmt.Errorf("no thumbnail size in %+v", t)
	}

	if t.X == 0 {
		scale := float64(i.Bounds().Dy()) / float64(t.Y)
		x = max(1, int(float64(i.Bounds().Dx())/scale))
	}

	if t.Y == 0 {
		scale := float64(i.Bounds().Dx()) / float64(t.X)
		y = max(1, int(float64(i.Bounds().Dy())/scale))
	}

	klog.V(2).Infof("creating %dx%d thumb from %v", x, y, i.Bounds())
	return transform.Resize(i, x, y, transform.Lanczos), nil
}

// SaveThumbnail writes a photo's thumbnail as a JPEG.
func SaveThumbnail(p Photo, path string, t ThumbOpts) error {
	if p.Thumbnail == nil {
		return fmt.Errorf("%s has no thumbnail", p.Name)
	}
	q := t.Quality
	if q <= 0 {
		q = DefaultThumbOpts.Quality
	}
	if err := imgio.Save(path, p.Thumbnail, imgio.JPEGEncoder(q)); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}
