package engine

import (
	"fmt"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

type vec3 struct {
	r, g, b float64
}

type vec4 struct {
	rgb vec3
	a   float64
}

func (v vec3) add(s float64) vec3 {
	return vec3{v.r + s, v.g + s, v.b + s}
}

func (v vec3) scale(s float64) vec3 {
	return vec3{v.r * s, v.g * s, v.b * s}
}

func (v vec3) mix(o vec3, t float64) vec3 {
	return vec3{v.r + (o.r-v.r)*t, v.g + (o.g-v.g)*t, v.b + (o.b-v.b)*t}
}

func (v vec3) clamp() vec3 {
	return vec3{clamp01(v.r), clamp01(v.g), clamp01(v.b)}
}

// luma is Rec. 709 relative luminance.
func (v vec3) luma() float64 {
	return 0.2126*v.r + 0.7152*v.g + 0.0722*v.b
}

func (v vec4) mix(o vec4, t float64) vec4 {
	return vec4{v.rgb.mix(o.rgb, t), v.a + (o.a-v.a)*t}
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func smoothstep(e0, e1, x float64) float64 {
	t := clamp01((x - e0) / (e1 - e0))
	return t * t * (3 - 2*t)
}

// uniforms is the per-draw parameter block. Slider percentages are stored as
// fractions, exposure in stops.
type uniforms struct {
	exposure    float64
	contrast    float64
	highlights  float64
	shadows     float64
	whites      float64
	blacks      float64
	temperature float64
	tint        float64
	vibrance    float64
	saturation  float64

	lutActive bool
	lutSize   int
	lut       *texture
}

// stage orders passes inside the fragment program.
type stage int

const (
	stageTone stage = iota
	stageColor
	stageLUT
)

func (s stage) String() string {
	switch s {
	case stageTone:
		return "tone"
	case stageColor:
		return "color"
	case stageLUT:
		return "lut"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

type pass struct {
	name  string
	stage stage
	fn    func(u *uniforms, c vec3) vec3
}

// program is a linked fragment program: the passes run in order on every
// output pixel.
type program struct {
	passes []pass
}

// defaultPasses is the grading pipeline. Tone comes before color, color
// before the LUT remap.
var defaultPasses = []pass{
	{"exposure", stageTone, exposurePass},
	{"contrast", stageTone, contrastPass},
	{"highlights", stageTone, highlightsPass},
	{"shadows", stageTone, shadowsPass},
	{"whites", stageTone, whitesPass},
	{"blacks", stageTone, blacksPass},
	{"temperature", stageColor, temperaturePass},
	{"tint", stageColor, tintPass},
	{"vibrance", stageColor, vibrancePass},
	{"saturation", stageColor, saturationPass},
	{"lut", stageLUT, lutPass},
}

func compile(passes []pass) (*program, error) {
	if len(passes) == 0 {
		return nil, fmt.Errorf("empty program: %w", ErrCompile)
	}
	last := stageTone
	for i, p := range passes {
		if p.fn == nil {
			return nil, fmt.Errorf("pass %d (%s) has no body: %w", i, p.name, ErrCompile)
		}
		if p.stage < last {
			return nil, fmt.Errorf("pass %s (%s) after %s stage: %w", p.name, p.stage, last, ErrCompile)
		}
		last = p.stage
	}
	return &program{passes: append([]pass(nil), passes...)}, nil
}

func (p *program) run(u *uniforms, c vec3) vec3 {
	for _, ps := range p.passes {
		if ps.stage == stageLUT {
			c = c.clamp()
		}
		c = ps.fn(u, c)
	}
	return c.clamp()
}

func exposurePass(u *uniforms, c vec3) vec3 {
	if u.exposure == 0 {
		return c
	}
	return c.scale(math.Exp2(u.exposure))
}

func contrastPass(u *uniforms, c vec3) vec3 {
	if u.contrast == 0 {
		return c
	}
	return c.add(-0.5).scale(1 + u.contrast).add(0.5)
}

func highlightsPass(u *uniforms, c vec3) vec3 {
	if u.highlights == 0 {
		return c
	}
	return c.add(u.highlights * 0.5 * smoothstep(0.5, 1, c.luma()))
}

func shadowsPass(u *uniforms, c vec3) vec3 {
	if u.shadows == 0 {
		return c
	}
	return c.add(u.shadows * 0.5 * (1 - smoothstep(0, 0.5, c.luma())))
}

func whitesPass(u *uniforms, c vec3) vec3 {
	if u.whites == 0 {
		return c
	}
	return c.add(u.whites * 0.3 * smoothstep(0.7, 1, c.luma()))
}

func blacksPass(u *uniforms, c vec3) vec3 {
	if u.blacks == 0 {
		return c
	}
	return c.add(u.blacks * 0.3 * (1 - smoothstep(0, 0.3, c.luma())))
}

// temperaturePass warms (positive) or cools (negative) by trading red
// against blue.
func temperaturePass(u *uniforms, c vec3) vec3 {
	if u.temperature == 0 {
		return c
	}
	return vec3{c.r * (1 + 0.2*u.temperature), c.g, c.b * (1 - 0.2*u.temperature)}
}

// tintPass shifts towards magenta (positive) or green (negative).
func tintPass(u *uniforms, c vec3) vec3 {
	if u.tint == 0 {
		return c
	}
	return vec3{c.r, c.g * (1 - 0.2*u.tint), c.b}
}

// vibrancePass scales saturation more for muted colors than for colors that
// are already saturated.
func vibrancePass(u *uniforms, c vec3) vec3 {
	if u.vibrance == 0 {
		return c
	}
	cc := c.clamp()
	_, s, _ := colorful.Color{R: cc.r, G: cc.g, B: cc.b}.Hsl()
	amount := u.vibrance * (1 - s)
	l := c.luma()
	return vec3{l, l, l}.mix(c, 1+amount)
}

func saturationPass(u *uniforms, c vec3) vec3 {
	if u.saturation == 0 {
		return c
	}
	l := c.luma()
	return vec3{l, l, l}.mix(c, 1+u.saturation)
}

func lutPass(u *uniforms, c vec3) vec3 {
	if !u.lutActive || u.lut == nil {
		return c
	}
	return u.lut.lookup(u.lutSize, c)
}
