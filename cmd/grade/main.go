package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"k8s.io/klog/v2"

	"github.com/tstromberg/grade/internal/config"
	"github.com/tstromberg/grade/pkg/adjust"
	"github.com/tstromberg/grade/pkg/batch"
	"github.com/tstromberg/grade/pkg/engine"
	"github.com/tstromberg/grade/pkg/lut"
)

var (
	inDir     = flag.String("in", "", "Location of input directory")
	outPath   = flag.String("out", "", "Location of output ZIP archive")
	lutPath   = flag.String("lut", "", "Path to a .cube LUT to apply")
	preset    = flag.String("preset", "", "Name of a preset in the preset directory to apply")
	install   = flag.String("install", "", "Install this .cube file into the preset directory")
	recipe    = flag.String("recipe", "", "YAML recipe of adjustments (and optional lut) to apply")
	sidecars  = flag.Bool("sidecars", false, "read <photo>.yaml recipes next to each photo")
	outType   = flag.String("type", "", "output MIME type (image/jpeg, image/png, image/bmp, image/tiff)")
	quality   = flag.Float64("quality", 0, "JPEG quality in (0, 1]")
	thumbDir  = flag.String("thumbs", "", "write preview thumbnails to this directory")
	watchFlag = flag.Bool("watch", false, "watch for changes to --in and re-export")

	sliders = map[string]*float64{}
)

func init() {
	for _, n := range adjust.Names {
		lo, hi := adjust.Range(n)
		sliders[n] = flag.Float64(n, 0, fmt.Sprintf("%s adjustment [%g, %g]", n, lo, hi))
	}
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *inDir == "" {
		klog.Exitf("--in is a required flag")
	}

	if *outPath == "" {
		klog.Exitf("--out is a required flag")
	}

	if *thumbDir != "" && within(*thumbDir, *inDir) {
		klog.Exitf("--thumbs must not be inside --in")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(ctx)
	if err != nil {
		klog.Exitf("config: %v", err)
	}
	if *outType != "" {
		cfg.OutputType = *outType
	}
	if *quality != 0 {
		cfg.Quality = *quality
	}

	var lib *lut.Library
	if cfg.PresetDir != "" {
		lib, err = lut.OpenLibrary(cfg.PresetDir)
		if err != nil {
			klog.Exitf("presets: %v", err)
		}
		if *install != "" {
			name, _, err := lib.Install(*install)
			if err != nil {
				klog.Exitf("install: %v", err)
			}
			klog.Infof("preset %q available: %v", name, lib.Names())
		}
	} else if *install != "" || *preset != "" {
		klog.Exitf("--install and --preset need GRADE_PRESET_DIR")
	}

	g, err := loadGrade(lib)
	if err != nil {
		klog.Exitf("grade: %v", err)
	}

	dirs, err := run(ctx, cfg, lib, g)
	if err != nil {
		klog.Exitf("export failed: %v", err)
	}

	if !*watchFlag {
		return
	}

	var wg sync.WaitGroup
	if lib != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lib.Watch(ctx); err != nil {
				klog.Errorf("preset watch: %v", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := watch(ctx, dirs, func() {
			if _, err := run(ctx, cfg, lib, g); err != nil {
				klog.Errorf("export failed: %v", err)
			}
		}); err != nil {
			klog.Errorf("watch: %v", err)
		}
	}()

	wg.Wait()
}

// within reports whether path is dir or somewhere below it.
func within(path, dir string) bool {
	p, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	d, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(d, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// grade is the look requested on the command line.
type grade struct {
	adjustments adjust.Adjustments
	lut         *lut.LUT
	set         bool
}

// loadGrade merges --recipe, the slider flags and --lut/--preset, in that order.
func loadGrade(lib *lut.Library) (grade, error) {
	g := grade{}

	if *recipe != "" {
		r, err := adjust.LoadRecipe(*recipe)
		if err != nil {
			return g, err
		}
		g.adjustments = r.Adjustments
		g.set = true
		if r.LUT != "" {
			g.lut, err = batch.ResolveLUT(r.LUT, lib, filepath.Dir(*recipe))
			if err != nil {
				return g, fmt.Errorf("recipe lut: %w", err)
			}
		}
	}

	var err error
	flag.Visit(func(f *flag.Flag) {
		v, ok := sliders[f.Name]
		if !ok || err != nil {
			return
		}
		g.adjustments, err = g.adjustments.Set(f.Name, *v)
		g.set = true
	})
	if err != nil {
		return g, err
	}
	if err := g.adjustments.Validate(); err != nil {
		return g, err
	}

	switch {
	case *lutPath != "":
		l, err := lut.Load(*lutPath)
		if err != nil {
			return g, err
		}
		g.lut = l
		g.set = true
	case *preset != "":
		l, ok := lib.Get(*preset)
		if !ok {
			return g, fmt.Errorf("unknown preset %q (have %s)", *preset, strings.Join(lib.Names(), ", "))
		}
		g.lut = l
		g.set = true
	}

	klog.Infof("grade: %s lut=%v", g.adjustments, g.lut != nil)
	return g, nil
}

// run collects --in, grades every photo and exports the archive. It returns
// the directories that held photos.
func run(ctx context.Context, cfg *config.Config, lib *lut.Library, g grade) ([]string, error) {
	e, err := engine.New(engine.NewSurface(0, 0))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	defer e.Dispose()

	s := batch.NewSession(e, batch.WithThumbOpts(batch.ThumbOpts{Y: cfg.ThumbHeight, Quality: batch.DefaultThumbOpts.Quality}))
	defer s.Close()

	ps, err := batch.Collect(ctx, s, *inDir, batch.CollectOptions{Sidecars: *sidecars, Library: lib})
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, fmt.Errorf("no photos in %s", *inDir)
	}

	if g.set {
		if err := applyGrade(ctx, s, ps, g); err != nil {
			return nil, err
		}
	}

	if *thumbDir != "" {
		if err := saveThumbs(s.Photos(), *thumbDir); err != nil {
			return nil, err
		}
	}

	if err := export(ctx, s, cfg, *outPath); err != nil {
		return nil, err
	}

	dirs := []string{*inDir}
	for _, p := range ps {
		if src, ok := p.Source.(batch.FileSource); ok {
			dirs = append(dirs, filepath.Dir(src.Path))
		}
	}
	slices.Sort(dirs)
	return slices.Compact(dirs), nil
}

// applyGrade sets g on every photo. With sidecars, photos that already carry
// a recipe keep it.
func applyGrade(ctx context.Context, s *batch.Session, ps []batch.Photo, g grade) error {
	if *sidecars {
		for _, p := range ps {
			if p.State() != batch.Unedited {
				klog.V(1).Infof("%s: keeping sidecar grade", p.Name)
				continue
			}
			if err := s.SetPhoto(p.ID, g.adjustments, g.lut); err != nil {
				return fmt.Errorf("%s: %w", p.Name, err)
			}
		}
		return nil
	}

	if err := s.Select(ctx, ps[0].ID); err != nil {
		return err
	}
	if err := s.SetAdjustments(g.adjustments); err != nil {
		return err
	}
	if g.lut != nil {
		if err := s.SetLUT(g.lut); err != nil {
			return err
		}
	}
	return s.ApplyToAll()
}

func saveThumbs(ps []batch.Photo, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	for _, p := range ps {
		path := filepath.Join(dir, strings.TrimSuffix(p.Name, filepath.Ext(p.Name))+".jpg")
		if err := batch.SaveThumbnail(p, path, batch.DefaultThumbOpts); err != nil {
			return fmt.Errorf("thumbnail %s: %w", p.Name, err)
		}
	}
	klog.Infof("wrote %d thumbnails to %s", len(ps), dir)
	return nil
}

// export writes the archive next to path and renames it into place, so a
// failed export never leaves a partial file behind.
func export(ctx context.Context, s *batch.Session, cfg *config.Config, path string) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".grade-*.zip")
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer os.Remove(f.Name())

	start := time.Now()
	res, err := s.Export(ctx, f, batch.ExportOptions{
		Type:    cfg.OutputType,
		Quality: cfg.Quality,
		Progress: func(p batch.Progress) {
			klog.Infof("[%3.0f%%] %s", p.Fraction()*100, p.Name)
		},
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	klog.Infof("wrote %s: %d photos, %s in %s", path, len(res.Files), humanize.Bytes(uint64(res.Bytes)), time.Since(start).Round(time.Millisecond))
	return nil
}

// watch calls rebuild whenever anything in dirs changes, until ctx is done.
func watch(ctx context.Context, dirs []string, rebuild func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()

	klog.Infof("watching %d dirs ...", len(dirs))
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	out, _ := filepath.Abs(*outPath)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if p, _ := filepath.Abs(event.Name); p == out || strings.HasPrefix(filepath.Base(p), ".grade-") {
				continue
			}
			klog.V(1).Infof("event: %s", event)
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				rebuild()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				rebuild()
				continue
			}
			klog.Errorf("watch error: %v", err)
		}
	}
}
