package batch

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/tstromberg/grade/pkg/adjust"
	"github.com/tstromberg/grade/pkg/engine"
	"github.com/tstromberg/grade/pkg/lut"
)

var (
	// ErrNotFound is returned for an unknown photo id.
	ErrNotFound = errors.New("photo not found")
	// ErrNoActive is returned by edits when no photo is selected.
	ErrNoActive = errors.New("no active photo")
	// ErrEmpty is returned when exporting a session without photos.
	ErrEmpty = errors.New("no photos")
)

// Option configures a Session.
type Option func(*Session)

// WithThumbOpts sets the thumbnail size used when photos are added.
func WithThumbOpts(t ThumbOpts) Option {
	return func(s *Session) {
		s.thumb = t
	}
}

// Session is an editing session over a collection of photos. It drives one
// engine and is meant to be used from a single goroutine.
type Session struct {
	engine *engine.Engine
	thumb  ThumbOpts

	photos []*Photo
	active string
}

// NewSession returns an empty session rendering through e.
func NewSession(e *engine.Engine, opts ...Option) *Session {
	s := &Session{engine: e, thumb: DefaultThumbOpts}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Engine returns the engine the session renders with.
func (s *Session) Engine() *engine.Engine {
	return s.engine
}

// Add decodes src once to build its thumbnail and appends it as an unedited
// photo.
func (s *Session) Add(ctx context.Context, src Source) (Photo, error) {
	img, err := src.Decode(ctx)
	if err != nil {
		return Photo{}, fmt.Errorf("decode %s: %w", src.Name(), err)
	}

	thumb, err := createThumb(img, s.thumb)
	if err != nil {
		return Photo{}, fmt.Errorf("thumbnail %s: %w", src.Name(), err)
	}

	p := &Photo{
		ID:        uuid.NewString(),
		Name:      src.Name(),
		Source:    src,
		Thumbnail: thumb,
	}
	s.photos = append(s.photos, p)
	klog.V(1).Infof("added %s as %s (%v)", p.Name, p.ID, img.Bounds())
	return *p, nil
}

// Photos returns copies of every photo in collection order.
func (s *Session) Photos() []Photo {
	ps := make([]Photo, 0, len(s.photos))
	for _, p := range s.photos {
		ps = append(ps, *p)
	}
	return ps
}

// Photo returns a copy of the photo with id.
func (s *Session) Photo(id string) (Photo, bool) {
	p := s.find(id)
	if p == nil {
		return Photo{}, false
	}
	return *p, true
}

// Active returns the selected photo.
func (s *Session) Active() (Photo, bool) {
	if s.active == "" {
		return Photo{}, false
	}
	return s.Photo(s.active)
}

// Select makes id the active photo and renders it with its own settings.
func (s *Session) Select(ctx context.Context, id string) error {
	p := s.find(id)
	if p == nil {
		return fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	if err := s.load(ctx, p); err != nil {
		return err
	}
	s.active = id
	return nil
}

// SetAdjustments stores a on the active photo and re-renders.
func (s *Session) SetAdjustments(a adjust.Adjustments) error {
	p, err := s.current()
	if err != nil {
		return err
	}
	if err := a.Validate(); err != nil {
		return err
	}
	p.Adjustments = a
	return s.engine.Render(p.Adjustments)
}

// Adjust moves one named slider on the active photo.
func (s *Session) Adjust(name string, v float64) error {
	p, err := s.current()
	if err != nil {
		return err
	}
	a, err := p.Adjustments.Set(name, v)
	if err != nil {
		return err
	}
	return s.SetAdjustments(a)
}

// SetLUT assigns l to the active photo and re-renders. If the engine rejects
// l the photo keeps its previous LUT.
func (s *Session) SetLUT(l *lut.LUT) error {
	p, err := s.current()
	if err != nil {
		return err
	}
	if err := s.engine.LoadLUT(l); err != nil {
		return err
	}
	p.LUT = l
	return s.engine.Render(p.Adjustments)
}

// LoadLUT parses a .cube document and assigns it to the active photo. A parse
// failure leaves the current LUT in place.
func (s *Session) LoadLUT(r io.Reader) (*lut.LUT, error) {
	if _, err := s.current(); err != nil {
		return nil, err
	}
	l, err := lut.Parse(r)
	if err != nil {
		return nil, err
	}
	if err := s.SetLUT(l); err != nil {
		return nil, err
	}
	return l, nil
}

// ClearLUT removes the LUT from the active photo.
func (s *Session) ClearLUT() error {
	p, err := s.current()
	if err != nil {
		return err
	}
	p.LUT = nil
	if err := s.engine.ClearLUT(); err != nil {
		return err
	}
	return s.engine.Render(p.Adjustments)
}

// SetPhoto replaces the settings of any photo without selecting it. The
// active photo is re-rendered if it is the one changed.
func (s *Session) SetPhoto(id string, a adjust.Adjustments, l *lut.LUT) error {
	p := s.find(id)
	if p == nil {
		return fmt.Errorf("%q: %w", id, ErrNotFound)
	}
	if err := a.Validate(); err != nil {
		return err
	}
	if l != nil {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	p.Adjustments = a
	p.LUT = l

	if id != s.active {
		return nil
	}
	if err := s.applyLUT(p); err != nil {
		return err
	}
	return s.engine.Render(p.Adjustments)
}

// ApplyToAll copies the active photo's adjustments and LUT onto every photo,
// replacing their own settings.
func (s *Session) ApplyToAll() error {
	src, err := s.current()
	if err != nil {
		return err
	}
	for _, p := range s.photos {
		p.Adjustments = src.Adjustments
		p.LUT = src.LUT
	}
	klog.Infof("applied %s to %d photos", src.Adjustments, len(s.photos))
	return nil
}

// Remove drops a photo and releases its source.
func (s *Session) Remove(id string) error {
	for i, p := range s.photos {
		if p.ID != id {
			continue
		}
		s.photos = append(s.photos[:i], s.photos[i+1:]...)
		if s.active == id {
			s.active = ""
		}
		return release(p)
	}
	return fmt.Errorf("%q: %w", id, ErrNotFound)
}

// Close removes every photo, releasing their sources.
func (s *Session) Close() error {
	var errs []error
	for _, p := range s.photos {
		if err := release(p); err != nil {
			errs = append(errs, err)
		}
	}
	s.photos = nil
	s.active = ""
	return errors.Join(errs...)
}

func release(p *Photo) error {
	if c, ok := p.Source.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close %s: %w", p.Name, err)
		}
	}
	return nil
}

func (s *Session) find(id string) *Photo {
	for _, p := range s.photos {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Session) current() (*Photo, error) {
	if s.active == "" {
		return nil, ErrNoActive
	}
	p := s.find(s.active)
	if p == nil {
		return nil, fmt.Errorf("%q: %w", s.active, ErrNotFound)
	}
	return p, nil
}

// load pushes a photo's image, LUT and adjustments through the engine.
func (s *Session) load(ctx context.Context, p *Photo) error {
	img, err := p.Source.Decode(ctx)
	if err != nil {
		return fmt.Errorf("decode %s: %w", p.Name, err)
	}
	if err := s.engine.LoadImage(img); err != nil {
		return fmt.Errorf("load %s: %w", p.Name, err)
	}
	if err := s.applyLUT(p); err != nil {
		return err
	}
	if err := s.engine.Render(p.Adjustments); err != nil {
		return fmt.Errorf("render %s: %w", p.Name, err)
	}
	return nil
}

func (s *Session) applyLUT(p *Photo) error {
	if p.LUT == nil {
		return s.engine.ClearLUT()
	}
	if err := s.engine.LoadLUT(p.LUT); err != nil {
		return fmt.Errorf("lut for %s: %w", p.Name, err)
	}
	return nil
}
