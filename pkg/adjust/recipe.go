package adjust

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

/* Example recipe file ...

exposure: 0.5
contrast: 12
temperature: -8
lut: teal-orange

*/

// Recipe is a saved set of adjustments plus an optional LUT, given either as
// a preset name or a path to a .cube file.
type Recipe struct {
	Adjustments `yaml:",inline"`
	LUT         string `yaml:"lut,omitempty"`
}

// ParseRecipe decodes a YAML recipe and validates its ranges.
func ParseRecipe(b []byte) (*Recipe, error) {
	r := &Recipe{}
	if err := yaml.UnmarshalStrict(b, r); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if err := r.Adjustments.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadRecipe reads a YAML recipe from disk.
func LoadRecipe(path string) (*Recipe, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	r, err := ParseRecipe(b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return r, nil
}

// Marshal encodes the recipe as YAML.
func (r Recipe) Marshal() ([]byte, error) {
	return yaml.Marshal(r)
}
