// Package hydraulics estimates the frictional pressure contributions that
// sit on top of hydrostatics: annular pressure loss while pumping and
// swab/surge while moving pipe.
package hydraulics

import (
	"errors"
	"fmt"
	"math"

	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/geometry"
)

// ErrMissingRheology is returned when a segment in the flow path has no
// rheology to compute friction from.
var ErrMissingRheology = errors.New("missing rheology")

// SwabSurgeEstimator returns the magnitude (kPa) of the pressure change at
// the bit caused by moving pipe at pipeSpeed (m/s) through annulus segments.
// Callers decide the sign: swab lowers bottom-hole pressure, surge raises it.
type SwabSurgeEstimator interface {
	SwabSurge(segs []fluid.Segment, pipeSpeed float64, geom geometry.Provider, bitMD float64) (float64, error)
}

// APLEstimator returns the annular pressure loss (kPa) at the bit for flow
// (m³/s) up the annulus segments.
type APLEstimator interface {
	APL(segs []fluid.Segment, flowRate float64, geom geometry.Provider, bitMD float64) (float64, error)
}

// DefaultClingingConstant is the fraction of pipe speed dragged along by
// the fluid film in laminar flow.
const DefaultClingingConstant = 0.45

// Bingham estimates both contributions with the slot-flow approximation of
// a Bingham plastic fluid in a concentric annulus.
type Bingham struct {
	ClingingConstant float64
}

// NewBingham returns a Bingham estimator with the default clinging constant.
func NewBingham() *Bingham {
	return &Bingham{ClingingConstant: DefaultClingingConstant}
}

// APL implements APLEstimator.
func (b *Bingham) APL(segs []fluid.Segment, flowRate float64, geom geometry.Provider, bitMD float64) (float64, error) {
	if flowRate <= 0 {
		return 0, nil
	}
	return b.integrate(segs, geom, bitMD, func(annArea, odArea float64) float64 {
		return flowRate / annArea
	})
}

// SwabSurge implements SwabSurgeEstimator for closed-end pipe.
func (b *Bingham) SwabSurge(segs []fluid.Segment, pipeSpeed float64, geom geometry.Provider, bitMD float64) (float64, error) {
	speed := math.Abs(pipeSpeed)
	if speed == 0 {
		return 0, nil
	}
	k := b.ClingingConstant
	if k <= 0 {
		k = DefaultClingingConstant
	}
	return b.integrate(segs, geom, bitMD, func(annArea, odArea float64) float64 {
		return speed * (odArea/annArea + k)
	})
}

// integrate sums dp/dL over every segment above the bit. velocity returns
// the mean annular velocity for the given annulus and pipe areas.
func (b *Bingham) integrate(segs []fluid.Segment, geom geometry.Provider, bitMD float64, velocity func(annArea, odArea float64) float64) (float64, error) {
	var total float64
	for _, s := range segs {
		top := math.Max(s.Top, 0)
		bottom := math.Min(s.Bottom, bitMD)
		length := bottom - top
		if length <= 0 {
			continue
		}
		pv, yp, ok := s.Rheology.Bingham()
		if !ok {
			return 0, fmt.Errorf("segment %q at %.1f-%.1f m: %w", s.Name, top, bottom, ErrMissingRheology)
		}

		annArea := geom.AnnulusVolume(top, bottom) / length
		odArea := geom.OuterDiameterVolume(top, bottom) / length
		if annArea <= 0 {
			continue
		}
		d2 := diameter(annArea + odArea)
		d1 := diameter(odArea)
		gap := d2 - d1
		if gap <= 0 {
			continue
		}

		v := velocity(annArea, odArea)
		gradient := 48*pv*v/(gap*gap) + 6*yp/gap
		total += gradient * length
	}
	return total / 1000, nil
}

func diameter(area float64) float64 {
	if area <= 0 {
		return 0
	}
	return math.Sqrt(4 * area / math.Pi)
}
