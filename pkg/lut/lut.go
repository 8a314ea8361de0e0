// Package lut reads 3D color lookup tables in the .cube text format and packs
// them into 2D texture atlases for the render pipeline.
package lut

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

// ErrSize is returned when the cube edge length cannot be determined.
var ErrSize = errors.New("inconsistent LUT size")

// MaxSize is the largest cube edge length accepted.
const MaxSize = 256

// fits reports whether an n³ cube holds exactly triples entries.
func fits(n, triples int) bool {
	return n > 0 && n <= MaxSize && n*n*n == triples
}

// ParseError describes a .cube file that could not be turned into a LUT.
type ParseError struct {
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("cube line %d: %s", e.Line, e.Msg)
	}
	return "cube: " + e.Msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// LUT is a parsed 3D lookup table. Data holds Size³ RGB triples in file order,
// red varying fastest, then green, then blue.
type LUT struct {
	Title string
	Size  int
	Data  []float64
}

// Triples returns the number of RGB entries in the cube.
func (l *LUT) Triples() int {
	return len(l.Data) / 3
}

// Validate checks that the data length matches the declared size.
func (l *LUT) Validate() error {
	if l == nil {
		return &ParseError{Msg: "nil LUT", Err: ErrSize}
	}
	if len(l.Data)%3 != 0 || !fits(l.Size, len(l.Data)/3) {
		return &ParseError{Msg: fmt.Sprintf("size %d does not match %d values", l.Size, len(l.Data)), Err: ErrSize}
	}
	return nil
}

// Identity returns a cube of edge length n (at least 2) that maps every color
// to itself.
func Identity(n int) *LUT {
	if n < 2 {
		n = 2
	}
	l := &LUT{Title: fmt.Sprintf("identity %d", n), Size: n, Data: make([]float64, 0, n*n*n*3)}
	top := float64(n - 1)
	for b := 0; b < n; b++ {
		for g := 0; g < n; g++ {
			for r := 0; r < n; r++ {
				l.Data = append(l.Data, float64(r)/top, float64(g)/top, float64(b)/top)
			}
		}
	}
	return l
}

// ParseString parses a .cube document held in memory.
func ParseString(s string) (*LUT, error) {
	return Parse(strings.NewReader(s))
}

// Load parses the .cube file at path.
func Load(path string) (*LUT, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	l, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return l, nil
}

// Parse reads a .cube document. Rows whose first three values are not numbers
// are dropped; a size that does not agree with the row count is an error.
func Parse(r io.Reader) (*LUT, error) {
	l := &LUT{}
	declared := 0
	n := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "TITLE":
			l.Title = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "TITLE")), `"`)
			continue
		case "LUT_3D_SIZE":
			if len(fields) < 2 {
				return nil, &ParseError{Line: n, Msg: "LUT_3D_SIZE without a value", Err: ErrSize}
			}
			v, err := strconv.Atoi(fields[1])
			if err != nil || v <= 0 || v > MaxSize {
				return nil, &ParseError{Line: n, Msg: fmt.Sprintf("bad LUT_3D_SIZE %q", fields[1]), Err: ErrSize}
			}
			declared = v
			continue
		case "DOMAIN_MIN", "DOMAIN_MAX":
			continue
		}

		if len(fields) < 3 {
			klog.V(2).Infof("cube line %d: skipping %q", n, line)
			continue
		}

		var rgb [3]float64
		ok := true
		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				ok = false
				break
			}
			rgb[i] = v
		}
		if !ok {
			klog.V(1).Infof("cube line %d: skipping malformed row %q", n, line)
			continue
		}
		l.Data = append(l.Data, rgb[0], rgb[1], rgb[2])
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	count := l.Triples()
	if declared > 0 {
		if !fits(declared, count) {
			return nil, &ParseError{Msg: fmt.Sprintf("LUT_3D_SIZE %d needs %d rows, found %d", declared, declared*declared*declared, count), Err: ErrSize}
		}
		l.Size = declared
		return l, nil
	}

	size := int(math.Round(math.Cbrt(float64(count))))
	if !fits(size, count) {
		return nil, &ParseError{Msg: fmt.Sprintf("cannot infer cube size from %d rows", count), Err: ErrSize}
	}
	l.Size = size
	return l, nil
}
