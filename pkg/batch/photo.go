// Package batch manages a collection of photos, each with its own adjustments
// and LUT, previews the active one and exports them all as an archive.
package batch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path/filepath"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/anthonynsimon/bild/imgio"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/tstromberg/grade/pkg/adjust"
	"github.com/tstromberg/grade/pkg/lut"
)

// Source produces the decoded pixels of a photo. Sources that also implement
// io.Closer are closed when their photo is removed.
type Source interface {
	Name() string
	Decode(ctx context.Context) (image.Image, error)
}

// FileSource decodes an image file from disk on every call.
type FileSource struct {
	Path string
}

// Name returns the file name.
func (f FileSource) Name() string {
	return filepath.Base(f.Path)
}

// Decode reads and decodes the file.
func (f FileSource) Decode(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imgio.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("imgio.Open: %w", err)
	}
	return img, nil
}

// MemorySource decodes an encoded image held in memory.
type MemorySource struct {
	Filename string
	Data     []byte
}

// Name returns the original file name.
func (m *MemorySource) Name() string {
	return m.Filename
}

// Decode decodes the buffered image.
func (m *MemorySource) Decode(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Data == nil {
		return nil, fmt.Errorf("%s: source released", m.Filename)
	}
	img, _, err := image.Decode(bytes.NewReader(m.Data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", m.Filename, err)
	}
	return img, nil
}

// Close releases the buffer.
func (m *MemorySource) Close() error {
	m.Data = nil
	return nil
}

// State is where a photo is in its edit lifecycle.
type State int

const (
	// Unedited photos have neutral adjustments and no LUT.
	Unedited State = iota
	// Edited photos differ from neutral. Edits live in memory only.
	Edited
	// Exported photos have been written to an archive. They stay editable.
	Exported
)

func (s State) String() string {
	switch s {
	case Unedited:
		return "unedited"
	case Edited:
		return "edited"
	case Exported:
		return "exported"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Photo is one image in a session together with its own settings.
type Photo struct {
	ID        string
	Name      string
	Source    Source
	Thumbnail image.Image

	Adjustments adjust.Adjustments
	LUT         *lut.LUT

	Exported bool
}

// State reports the photo's lifecycle state.
func (p Photo) State() State {
	if p.Exported {
		return Exported
	}
	if !p.Adjustments.IsNeutral() || p.LUT != nil {
		return Edited
	}
	return Unedited
}
