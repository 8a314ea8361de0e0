package lut

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/karrick/godirwalk"
	"github.com/otiai10/copy"
	"k8s.io/klog/v2"
)

// Library is a directory of preset .cube files, keyed by file name without
// the extension.
type Library struct {
	dir string

	mu      sync.RWMutex
	presets map[string]*LUT
}

// OpenLibrary scans dir for presets. Files that fail to parse are skipped.
func OpenLibrary(dir string) (*Library, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	lib := &Library{dir: dir}
	if err := lib.Reload(); err != nil {
		return nil, err
	}
	return lib, nil
}

// Dir returns the preset directory.
func (lib *Library) Dir() string {
	return lib.dir
}

// Reload rescans the preset directory.
func (lib *Library) Reload() error {
	found := map[string]*LUT{}

	err := godirwalk.Walk(lib.dir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != filepath.Clean(lib.dir) && filepath.Base(path)[0] == '.' {
				if de.IsDir() {
					return godirwalk.SkipThis
				}
				return nil
			}
			if de.IsDir() || !strings.EqualFold(filepath.Ext(path), ".cube") {
				return nil
			}

			l, err := Load(path)
			if err != nil {
				klog.Warningf("skipping preset %s: %v", path, err)
				return nil
			}
			name := presetName(path)
			if l.Title == "" {
				l.Title = name
			}
			klog.V(1).Infof("loaded preset %q (%d³)", name, l.Size)
			found[name] = l
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", lib.dir, err)
	}

	lib.mu.Lock()
	lib.presets = found
	lib.mu.Unlock()

	klog.Infof("preset library %s: %d presets", lib.dir, len(found))
	return nil
}

// Names returns the preset names in sorted order.
func (lib *Library) Names() []string {
	lib.mu.RLock()
	defer lib.mu.RUnlock()

	names := make([]string, 0, len(lib.presets))
	for n := range lib.presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns the named preset.
func (lib *Library) Get(name string) (*LUT, bool) {
	lib.mu.RLock()
	defer lib.mu.RUnlock()

	l, ok := lib.presets[name]
	return l, ok
}

// Install copies the .cube file at src into the library. The file is parsed
// first so a broken LUT never lands in the directory.
func (lib *Library) Install(src string) (string, *LUT, error) {
	l, err := Load(src)
	if err != nil {
		return "", nil, err
	}

	dest := filepath.Join(lib.dir, filepath.Base(src))
	if filepath.Clean(src) != filepath.Clean(dest) {
		if err := copy.Copy(src, dest); err != nil {
			return "", nil, fmt.Errorf("copy: %w", err)
		}
	}

	name := presetName(dest)
	if l.Title == "" {
		l.Title = name
	}

	lib.mu.Lock()
	if lib.presets == nil {
		lib.presets = map[string]*LUT{}
	}
	lib.presets[name] = l
	lib.mu.Unlock()

	klog.Infof("installed preset %q from %s", name, src)
	return name, l, nil
}

// Watch reloads the library whenever the directory changes, until ctx is done.
func (lib *Library) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(lib.dir); err != nil {
		return fmt.Errorf("watch %s: %w", lib.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			klog.V(1).Infof("preset event: %s", event)
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				if err := lib.Reload(); err != nil {
					klog.Errorf("reload failed: %v", err)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			klog.Errorf("watch error: %v", err)
		}
	}
}

func presetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
