// Package adjust defines the tonal and color adjustments applied to a photo.
package adjust

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrUnknown is returned for a slider name that does not exist.
var ErrUnknown = errors.New("unknown adjustment")

// Adjustments is one photo's slider settings. The zero value is neutral and
// leaves an image untouched. Exposure is in stops, everything else is a
// percentage of the slider's full travel.
type Adjustments struct {
	Exposure    float64 `yaml:"exposure,omitempty" json:"exposure" validate:"gte=-5,lte=5"`
	Contrast    float64 `yaml:"contrast,omitempty" json:"contrast" validate:"gte=-100,lte=100"`
	Highlights  float64 `yaml:"highlights,omitempty" json:"highlights" validate:"gte=-100,lte=100"`
	Shadows     float64 `yaml:"shadows,omitempty" json:"shadows" validate:"gte=-100,lte=100"`
	Whites      float64 `yaml:"whites,omitempty" json:"whites" validate:"gte=-100,lte=100"`
	Blacks      float64 `yaml:"blacks,omitempty" json:"blacks" validate:"gte=-100,lte=100"`
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature" validate:"gte=-100,lte=100"`
	Tint        float64 `yaml:"tint,omitempty" json:"tint" validate:"gte=-100,lte=100"`
	Vibrance    float64 `yaml:"vibrance,omitempty" json:"vibrance" validate:"gte=-100,lte=100"`
	Saturation  float64 `yaml:"saturation,omitempty" json:"saturation" validate:"gte=-100,lte=100"`
}

// Field describes one slider.
type Field struct {
	Name  string
	Value float64
	Min   float64
	Max   float64
}

// Names lists the sliders in the order the render pipeline applies them.
var Names = []string{
	"exposure", "contrast", "highlights", "shadows", "whites", "blacks",
	"temperature", "tint", "vibrance", "saturation",
}

var validate = validator.New()

// Neutral returns the no-op configuration.
func Neutral() Adjustments {
	return Adjustments{}
}

// IsNeutral reports whether every slider is at zero.
func (a Adjustments) IsNeutral() bool {
	return a == Adjustments{}
}

// Validate checks every slider against its range.
func (a Adjustments) Validate() error {
	if err := validate.Struct(a); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%s %v out of range: %w", strings.ToLower(f.Field()), f.Value(), err)
		}
		return fmt.Errorf("validate: %w", err)
	}
	return nil
}

// Clamp returns a copy with every slider pulled inside its range.
func (a Adjustments) Clamp() Adjustments {
	out := a
	for _, n := range Names {
		v, _ := out.Get(n)
		lo, hi := Range(n)
		out, _ = out.Set(n, min(hi, max(lo, v)))
	}
	return out
}

// Range returns the bounds of the named slider.
func Range(name string) (float64, float64) {
	if strings.EqualFold(name, "exposure") {
		return -5, 5
	}
	return -100, 100
}

// Get returns the value of the named slider.
func (a Adjustments) Get(name string) (float64, error) {
	p, err := a.field(name)
	if err != nil {
		return 0, err
	}
	return *p, nil
}

// Set returns a copy with the named slider changed. The receiver is not
// modified.
func (a Adjustments) Set(name string, v float64) (Adjustments, error) {
	p, err := a.field(name)
	if err != nil {
		return a, err
	}
	*p = v
	return a, nil
}

// Fields lists the sliders with their current values.
func (a Adjustments) Fields() []Field {
	fs := make([]Field, 0, len(Names))
	for _, n := range Names {
		v, _ := a.Get(n)
		lo, hi := Range(n)
		fs = append(fs, Field{Name: n, Value: v, Min: lo, Max: hi})
	}
	return fs
}

func (a Adjustments) String() string {
	parts := []string{}
	for _, f := range a.Fields() {
		if f.Value != 0 {
			parts = append(parts, fmt.Sprintf("%s=%g", f.Name, f.Value))
		}
	}
	if len(parts) == 0 {
		return "neutral"
	}
	return strings.Join(parts, " ")
}

// field points into the receiver, which is always a copy.
func (a *Adjustments) field(name string) (*float64, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "exposure":
		return &a.Exposure, nil
	case "contrast":
		return &a.Contrast, nil
	case "highlights":
		return &a.Highlights, nil
	case "shadows":
		return &a.Shadows, nil
	case "whites":
		return &a.Whites, nil
	case "blacks":
		return &a.Blacks, nil
	case "temperature":
		return &a.Temperature, nil
	case "tint":
		return &a.Tint, nil
	case "vibrance":
		return &a.Vibrance, nil
	case "saturation":
		return &a.Saturation, nil
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknown)
}
