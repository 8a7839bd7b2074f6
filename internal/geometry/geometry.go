// Package geometry converts between measured-depth intervals and the
// volumes they hold in the two conduits of a wellbore, and between
// measured and true vertical depth.
package geometry

// Provider answers volume and length questions for one bit position. All
// functions are monotonic; the LengthForVolume functions invert the Volume
// functions, measuring downward from the given depth.
type Provider interface {
	StringVolume(top, bottom float64) float64
	AnnulusVolume(top, bottom float64) float64
	StringLengthForVolume(from, volume float64) float64
	AnnulusLengthForVolume(from, volume float64) float64
	SteelArea(md float64) float64
	OuterDiameterVolume(top, bottom float64) float64
	AnnulusArea(md float64) float64
}

// DepthSampler converts measured depth to true vertical depth. TVD must be
// non-decreasing in MD.
type DepthSampler interface {
	TVD(md float64) float64
}

// SteelVolumer is implemented by providers that can integrate steel area
// exactly.
type SteelVolumer interface {
	SteelVolume(top, bottom float64) float64
}

// SteelVolume returns the volume of pipe wall between top and bottom.
// Providers without an exact integral are sampled at one-metre midpoints.
func SteelVolume(p Provider, top, bottom float64) float64 {
	if bottom <= top {
		return 0
	}
	if sv, ok := p.(SteelVolumer); ok {
		return sv.SteelVolume(top, bottom)
	}

	var v float64
	for z := top; z < bottom; z++ {
		end := z + 1
		if end > bottom {
			end = bottom
		}
		v += p.SteelArea((z+end)/2) * (end - z)
	}
	return v
}

// HoleVolume is the open volume between top and bottom when no pipe is
// present: annulus plus the closed-end pipe volume.
func HoleVolume(p Provider, top, bottom float64) float64 {
	return p.AnnulusVolume(top, bottom) + p.OuterDiameterVolume(top, bottom)
}

// Vertical is a DepthSampler for a vertical well.
type Vertical struct{}

// TVD returns md, clamped at zero.
func (Vertical) TVD(md float64) float64 {
	if md < 0 {
		return 0
	}
	return md
}

// Positioner builds a Provider for the string hanging with its bit at bitMD.
type Positioner interface {
	ProviderAt(bitMD float64) Provider
}
