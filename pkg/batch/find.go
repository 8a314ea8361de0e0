package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"

	"github.com/tstromberg/grade/pkg/adjust"
	"github.com/tstromberg/grade/pkg/lut"
)

// imageExts are the file extensions Find picks up.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// SidecarExt is appended to a photo's file name to find its recipe.
var SidecarExt = ".yaml"

// Find returns the image files under root in lexical order, skipping dot
// files and directories.
func Find(root string) ([]string, error) {
	found := []string{}

	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != filepath.Clean(root) && filepath.Base(path)[0] == '.' {
				if de.IsDir() {
					return godirwalk.SkipThis
				}
				return nil
			}

			if de.IsDir() || !imageExts[strings.ToLower(filepath.Ext(path))] {
				return nil
			}

			klog.V(1).Infof("found %s", path)
			found = append(found, path)
			return nil
		},
	})

	return found, err
}

// CollectOptions controls Collect.
type CollectOptions struct {
	// Sidecars loads "<photo>.yaml" recipes sitting next to each photo.
	Sidecars bool
	// Library resolves recipe LUT names to presets before trying file paths.
	Library *lut.Library
}

// Collect adds every image under root to s.
func Collect(ctx context.Context, s *Session, root string, opts CollectOptions) ([]Photo, error) {
	klog.Infof("collect: %s", root)

	paths, err := Find(root)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}

	ps := []Photo{}
	for _, path := range paths {
		p, err := s.Add(ctx, FileSource{Path: path})
		if err != nil {
			return nil, fmt.Errorf("add: %w", err)
		}

		if opts.Sidecars {
			if err := applySidecar(s, p, path, opts.Library); err != nil {
				return nil, err
			}
			p, _ = s.Photo(p.ID)
		}
		ps = append(ps, p)
	}

	klog.Infof("collected %d photos from %s", len(ps), root)
	return ps, nil
}

func applySidecar(s *Session, p Photo, path string, lib *lut.Library) error {
	sc := path + SidecarExt
	if _, err := os.Stat(sc); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	r, err := adjust.LoadRecipe(sc)
	if err != nil {
		return fmt.Errorf("sidecar: %w", err)
	}

	var l *lut.LUT
	if r.LUT != "" {
		l, err = ResolveLUT(r.LUT, lib, filepath.Dir(sc))
		if err != nil {
			return fmt.Errorf("sidecar %s: %w", sc, err)
		}
	}

	klog.V(1).Infof("%s: sidecar %s lut=%q", p.Name, r.Adjustments, r.LUT)
	return s.SetPhoto(p.ID, r.Adjustments, l)
}

// ResolveLUT finds a LUT by preset name in lib, falling back to a .cube path
// relative to dir.
func ResolveLUT(ref string, lib *lut.Library, dir string) (*lut.LUT, error) {
	if lib != nil {
		if l, ok := lib.Get(ref); ok {
			return l, nil
		}
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	return lut.Load(path)
}
