// Package pressure turns layered fluid columns into hydrostatic pressure,
// equivalent density and the surface back-pressure needed to reach a target
// density. Pressures are in kPa, densities in kg/m³, depths in metres.
package pressure

import (
	"math"

	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/geometry"
	"gonum.org/v1/gonum/floats"
)

// StandardGravity in m/s².
const StandardGravity = 9.80665

// Calculator is stateless apart from its depth sampler and gravity.
type Calculator struct {
	Sampler geometry.DepthSampler
	Gravity float64
}

// New returns a Calculator; a nil sampler means a vertical well and a
// non-positive gravity means StandardGravity.
func New(sampler geometry.DepthSampler, gravity float64) Calculator {
	if sampler == nil {
		sampler = geometry.Vertical{}
	}
	if gravity <= 0 {
		gravity = StandardGravity
	}
	return Calculator{Sampler: sampler, Gravity: gravity}
}

func (c Calculator) g() float64 {
	if c.Gravity <= 0 {
		return StandardGravity
	}
	return c.Gravity
}

func (c Calculator) tvd(md float64) float64 {
	if c.Sampler == nil {
		return geometry.Vertical{}.TVD(md)
	}
	return c.Sampler.TVD(md)
}

// TVD returns the true vertical depth at md.
func (c Calculator) TVD(md float64) float64 {
	return c.tvd(md)
}

// Hydrostatic integrates density over the part of segs at or above
// targetMD. Segments may come from several stacks as long as they do not
// overlap.
func (c Calculator) Hydrostatic(segs []fluid.Segment, targetMD float64) float64 {
	if len(segs) == 0 || targetMD <= 0 {
		return 0
	}
	rho := make([]float64, 0, len(segs))
	dz := make([]float64, 0, len(segs))
	for _, s := range segs {
		top := math.Max(s.Top, 0)
		bottom := math.Min(s.Bottom, targetMD)
		if bottom <= top {
			continue
		}
		rho = append(rho, s.Density)
		dz = append(dz, c.tvd(bottom)-c.tvd(top))
	}
	if len(rho) == 0 {
		return 0
	}
	return floats.Dot(rho, dz) * c.g() / 1000
}

// ESD returns the equivalent static density at targetMD. Zero or negative
// TVD yields zero.
func (c Calculator) ESD(segs []fluid.Segment, targetMD float64) float64 {
	return c.EquivalentDensity(c.Hydrostatic(segs, targetMD), targetMD)
}

// EquivalentDensity converts a pressure at md into the uniform density that
// would produce it.
func (c Calculator) EquivalentDensity(pressure, md float64) float64 {
	tvd := c.tvd(md)
	if tvd <= 0 {
		return 0
	}
	return pressure * 1000 / (c.g() * tvd)
}

// PressureFor returns the pressure a uniform column of density produces at md.
func (c Calculator) PressureFor(density, md float64) float64 {
	tvd := c.tvd(md)
	if tvd <= 0 {
		return 0
	}
	return density * c.g() * tvd / 1000
}

// RequiredBackPressure is the surface pressure that, together with
// hydrostatic and friction, reaches targetESD at targetMD. Never negative.
func (c Calculator) RequiredBackPressure(targetESD, targetMD, hydrostatic, friction float64) float64 {
	need := c.PressureFor(targetESD, targetMD) - hydrostatic - friction
	if need < 0 || math.IsNaN(need) {
		return 0
	}
	return need
}

// Gradient returns the pressure gradient factor g/1000 in kPa per
// (kg/m³·m).
func (c Calculator) Gradient() float64 {
	return c.g() / 1000
}
