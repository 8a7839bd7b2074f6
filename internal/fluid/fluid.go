// Package fluid defines the fluid identity carried by every layer of the
// wellbore model, and the two shapes it travels in: depth-indexed segments
// and volume-indexed parcels.
package fluid

import (
	"fmt"
	"math"
)

// Yield point conversion from lbf/100ft² (dial reading units) to Pa
const lbfPer100ft2ToPa = 0.4788026

// Color is an RGBA color with channels in [0,1]. It only exists so that
// visualization layers can tell fluids apart; the engine never reads it
// except when deciding whether two neighbours may be merged.
type Color struct {
	R float64 `json:"r" yaml:"r"`
	G float64 `json:"g" yaml:"g"`
	B float64 `json:"b" yaml:"b"`
	A float64 `json:"a" yaml:"a"`
}

// ParseHexColor parses #RRGGBB or #RRGGBBAA.
func ParseHexColor(s string) (Color, error) {
	var r, g, b, a uint8 = 0, 0, 0, 255
	var err error
	switch len(s) {
	case 7:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b)
	case 9:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x%02x", &r, &g, &b, &a)
	default:
		return Color{}, fmt.Errorf("invalid color %q: expected #RRGGBB or #RRGGBBAA", s)
	}
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255, A: float64(a) / 255}, nil
}

// Rheology holds either Bingham plastic parameters or the raw viscometer
// readings they are derived from.
type Rheology struct {
	PlasticViscosity float64 `json:"pv,omitempty"`    // mPa·s (cP)
	YieldPoint       float64 `json:"yp,omitempty"`    // Pa
	Dial600          float64 `json:"dial600,omitempty"`
	Dial300          float64 `json:"dial300,omitempty"`
}

// Bingham returns plastic viscosity (Pa·s) and yield point (Pa). ok is false
// when neither parameters nor dial readings are present.
func (r Rheology) Bingham() (pv, yp float64, ok bool) {
	if r.PlasticViscosity > 0 || r.YieldPoint > 0 {
		return r.PlasticViscosity / 1000, r.YieldPoint, true
	}
	if r.Dial600 > 0 && r.Dial300 > 0 {
		pvcp := r.Dial600 - r.Dial300
		if pvcp < 0 {
			return 0, 0, false
		}
		ypField := r.Dial300 - pvcp
		if ypField < 0 {
			ypField = 0
		}
		return pvcp / 1000, ypField * lbfPer100ft2ToPa, true
	}
	return 0, 0, false
}

// Known reports whether any rheology data is present.
func (r Rheology) Known() bool {
	_, _, ok := r.Bingham()
	return ok
}

// Fluid is the identity of a fluid: everything except where it is.
type Fluid struct {
	Name     string   `json:"name,omitempty"`
	Density  float64  `json:"density"` // kg/m³
	Color    Color    `json:"color"`
	HasColor bool     `json:"has_color,omitempty"`
	Rheology Rheology `json:"rheology"`
	// Gas marks fluid that vents instead of being displaced when liquid is
	// pumped in on top of it.
	Gas bool `json:"gas,omitempty"`
}

// Matches reports whether two fluids are indistinguishable for merging:
// density within tol and, when both carry a color, the same color.
func (f Fluid) Matches(o Fluid, tol float64) bool {
	if math.Abs(f.Density-o.Density) >= tol {
		return false
	}
	if f.HasColor && o.HasColor && !colorsEqual(f.Color, o.Color) {
		return false
	}
	if f.HasColor != o.HasColor {
		return false
	}
	return f.Gas == o.Gas
}

func colorsEqual(a, b Color) bool {
	const eps = 1e-6
	return math.Abs(a.R-b.R) < eps && math.Abs(a.G-b.G) < eps &&
		math.Abs(a.B-b.B) < eps && math.Abs(a.A-b.A) < eps
}

// Air is the gas that fills a string from surface as it drains.
func Air(density float64) Fluid {
	return Fluid{
		Name:     "air",
		Density:  density,
		Color:    Color{R: 1, G: 1, B: 1, A: 0},
		HasColor: true,
		Gas:      true,
	}
}

// Segment is a contiguous span of one fluid, in measured depth.
type Segment struct {
	Fluid
	Top    float64 `json:"top"`    // MD, m
	Bottom float64 `json:"bottom"` // MD, m
}

// Length returns Bottom-Top.
func (s Segment) Length() float64 {
	return s.Bottom - s.Top
}

// Contains reports whether depth lies strictly inside the segment.
func (s Segment) Contains(depth float64) bool {
	return depth > s.Top && depth < s.Bottom
}

// Parcel is an amount of one fluid, in volume.
type Parcel struct {
	Fluid
	Volume float64 `json:"volume"` // m³
}

// TotalVolume sums parcel volumes.
func TotalVolume(parcels []Parcel) float64 {
	var v float64
	for _, p := range parcels {
		v += p.Volume
	}
	return v
}

// Blend mixes parcels into a single fluid, weighting density, color and
// rheology by volume. The result is named after the largest contributor.
func Blend(parcels []Parcel) (Fluid, float64) {
	total := TotalVolume(parcels)
	if total <= 0 {
		if len(parcels) > 0 {
			return parcels[0].Fluid, 0
		}
		return Fluid{}, 0
	}

	var out Fluid
	var largest float64
	var colorWeight float64
	var rheoWeight float64
	out.Gas = true
	for _, p := range parcels {
		out.Gas = out.Gas && p.Gas
		w := p.Volume / total
		out.Density += w * p.Density
		if p.HasColor {
			out.Color.R += w * p.Color.R
			out.Color.G += w * p.Color.G
			out.Color.B += w * p.Color.B
			out.Color.A += w * p.Color.A
			colorWeight += w
		}
		if pv, yp, ok := p.Rheology.Bingham(); ok {
			out.Rheology.PlasticViscosity += w * pv * 1000
			out.Rheology.YieldPoint += w * yp
			rheoWeight += w
		}
		if p.Volume > largest {
			largest = p.Volume
			out.Name = p.Name
		}
	}

	if colorWeight > 0 {
		out.HasColor = true
		out.Color.R /= colorWeight
		out.Color.G /= colorWeight
		out.Color.B /= colorWeight
		out.Color.A /= colorWeight
	}
	if rheoWeight > 0 {
		out.Rheology.PlasticViscosity /= rheoWeight
		out.Rheology.YieldPoint /= rheoWeight
	}
	return out, total
}
