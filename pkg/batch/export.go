package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zip"
	"k8s.io/klog/v2"

	"github.com/tstromberg/grade/pkg/engine"
)

// ExportOptions controls how photos are encoded.
type ExportOptions struct {
	// Type is the output MIME type, JPEG if empty.
	Type string
	// Quality is the JPEG quality in (0, 1], engine.DefaultQuality if unset.
	Quality float64
	// Progress, if set, is called after each photo is archived.
	Progress func(Progress)
}

// Progress reports how far an export has come.
type Progress struct {
	Done  int
	Total int
	Name  string
}

// Fraction returns Done/Total.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Done) / float64(p.Total)
}

// ExportResult describes a finished archive.
type ExportResult struct {
	Files []string
	Bytes int64
}

// Export renders every photo with its own settings, in collection order, and
// writes a ZIP archive of the results to w. Nothing is written unless every
// photo succeeds. The active photo is reloaded afterwards, or deselected if it
// can no longer be decoded.
func (s *Session) Export(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	if len(s.photos) == 0 {
		return nil, ErrEmpty
	}

	ext := engine.Extension(opts.Type)
	if ext == "" {
		return nil, fmt.Errorf("unsupported type %q: %w", opts.Type, engine.ErrEncode)
	}

	defer s.restore(ctx)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	taken := map[string]bool{}
	res := &ExportResult{}
	total := len(s.photos)
	start := time.Now()

	for i, p := range s.photos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		klog.V(1).Infof("exporting %d/%d: %s", i+1, total, p.Name)
		if err := s.load(ctx, p); err != nil {
			return nil, fmt.Errorf("export %s: %w", p.Name, err)
		}

		b, err := s.engine.ToBlob(ctx, opts.Type, opts.Quality)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", p.Name, err)
		}

		name := uniqueName(archiveName(p.Name, ext), taken)
		method := zip.Deflate
		if ext == "jpg" {
			method = zip.Store
		}
		f, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: time.Now()})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := f.Write(b.Data); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		res.Files = append(res.Files, name)

		if opts.Progress != nil {
			opts.Progress(Progress{Done: i + 1, Total: total, Name: name})
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	n, err := io.Copy(w, &buf)
	if err != nil {
		return nil, fmt.Errorf("write archive: %w", err)
	}
	res.Bytes = n

	for _, p := range s.photos {
		p.Exported = true
	}

	klog.Infof("exported %d photos (%s) in %s", total, humanize.Bytes(uint64(n)), time.Since(start).Round(time.Millisecond))
	return res, nil
}

// restore reloads the active photo into the engine after an export, even if
// ctx was cancelled. If that fails the photo is deselected, since the engine
// now holds another photo's pixels.
func (s *Session) restore(ctx context.Context) {
	p, err := s.current()
	if err != nil {
		return
	}
	if err := s.load(context.WithoutCancel(ctx), p); err != nil {
		klog.Warningf("unable to restore %s, deselecting: %v", p.Name, err)
		s.active = ""
	}
}

// unsafeChars matches characters that are awkward in archive entry names.
var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// archiveName returns "<stem>_edited.<ext>" for a source file name.
func archiveName(source, ext string) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = unsafeChars.ReplaceAllString(strings.TrimSpace(stem), "-")
	stem = strings.Trim(stem, ".")
	if stem == "" {
		stem = "photo"
	}
	return fmt.Sprintf("%s_edited.%s", stem, ext)
}

// uniqueName appends -2, -3, ... to the stem until name is unused.
func uniqueName(name string, taken map[string]bool) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 2; taken[strings.ToLower(candidate)]; i++ {
		candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
	taken[strings.ToLower(candidate)] = true
	return candidate
}
