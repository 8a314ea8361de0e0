package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"math"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/dustin/go-humanize"
	"golang.org/x/image/tiff"
	"k8s.io/klog/v2"
)

const (
	// DefaultType is used when no MIME type is given.
	DefaultType = "image/jpeg"
	// DefaultQuality is used when the quality is outside (0, 1].
	DefaultQuality = 0.92
)

// Blob is an encoded image.
type Blob struct {
	Type string
	Data []byte
}

// Size returns the encoded length in bytes.
func (b *Blob) Size() int {
	return len(b.Data)
}

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/bmp":  "bmp",
	"image/tiff": "tif",
}

// Extension returns the file extension, without a dot, for a supported MIME
// type, or "" if the type is not supported.
func Extension(mimeType string) string {
	return extensions[normalizeType(mimeType)]
}

func normalizeType(mimeType string) string {
	t := strings.ToLower(strings.TrimSpace(mimeType))
	switch t {
	case "":
		return DefaultType
	case "image/jpg":
		return "image/jpeg"
	case "image/tif":
		return "image/tiff"
	}
	return t
}

func encoderFor(mimeType string, quality float64) (imgio.Encoder, error) {
	if quality <= 0 || quality > 1 || math.IsNaN(quality) {
		quality = DefaultQuality
	}

	switch mimeType {
	case "image/jpeg":
		return imgio.JPEGEncoder(max(1, int(math.Round(quality*100)))), nil
	case "image/png":
		return imgio.PNGEncoder(), nil
	case "image/bmp":
		return imgio.BMPEncoder(), nil
	case "image/tiff":
		return func(w io.Writer, img image.Image) error {
			return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
		}, nil
	}
	return nil, fmt.Errorf("unsupported type %q: %w", mimeType, ErrEncode)
}

// ToBlob encodes the current surface contents. An empty mimeType means JPEG;
// quality applies to JPEG only. ctx is checked before encoding starts; an
// encode in progress always runs to completion.
func (e *Engine) ToBlob(ctx context.Context, mimeType string, quality float64) (*Blob, error) {
	if e.disposed {
		return nil, ErrDisposed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := normalizeType(mimeType)
	enc, err := encoderFor(t, quality)
	if err != nil {
		return nil, err
	}

	if e.surface.Width() == 0 || e.surface.Height() == 0 {
		return nil, fmt.Errorf("empty surface: %w", ErrEncode)
	}

	var buf bytes.Buffer
	if err := enc(&buf, e.surface.buf); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", t, err, ErrEncode)
	}

	klog.V(1).Infof("encoded %dx%d %s: %s", e.surface.Width(), e.surface.Height(), t, humanize.Bytes(uint64(buf.Len())))
	return &Blob{Type: t, Data: buf.Bytes()}, nil
}
