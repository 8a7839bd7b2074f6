// Package stack keeps the ordered fluid layers of one wellbore conduit. A
// Stack is depth-indexed and always covers [0, bit] without gaps; Parcels is
// its volume-indexed counterpart used for pumping; a Pocket holds whatever
// sits in open hole below the bit.
package stack

import (
	"fmt"
	"math"

	"github.com/chrissnell/wellsim/internal/fluid"
)

// Tolerances below which lengths, volumes and density differences are
// treated as zero.
type Tolerances struct {
	Length  float64 // m
	Volume  float64 // m³
	Density float64 // kg/m³
}

// DefaultTolerances returns values suited to metre/m³/kg·m⁻³ inputs.
func DefaultTolerances() Tolerances {
	return Tolerances{
		Length:  1e-6,
		Volume:  1e-9,
		Density: 0.1,
	}
}

// End selects which end of a conduit an operation acts on.
type End int

const (
	// Top is the surface end.
	Top End = iota
	// Bottom is the bit end.
	Bottom
)

func (e End) String() string {
	if e == Top {
		return "top"
	}
	return "bottom"
}

// Parcels is a volume-indexed list of fluid parcels, ordered from the
// surface end to the bit end, bounded by a capacity.
type Parcels struct {
	items    []fluid.Parcel
	capacity float64
	tol      Tolerances
}

// NewParcels returns a parcel list holding initial (surface end first). If
// the initial parcels exceed capacity the excess is discarded from the bit
// end.
func NewParcels(capacity float64, tol Tolerances, initial ...fluid.Parcel) *Parcels {
	if capacity < 0 || math.IsNaN(capacity) {
		panic(fmt.Sprintf("stack: invalid parcel capacity %v", capacity))
	}
	p := &Parcels{capacity: capacity, tol: tol}
	p.items = append(p.items, initial...)
	p.normalize()
	p.trim(Bottom)
	return p
}

// Items returns a copy of the parcels, surface end first.
func (p *Parcels) Items() []fluid.Parcel {
	return append([]fluid.Parcel(nil), p.items...)
}

// Len returns the number of parcels.
func (p *Parcels) Len() int { return len(p.items) }

// Volume returns the total volume held.
func (p *Parcels) Volume() float64 { return fluid.TotalVolume(p.items) }

// Capacity returns the maximum volume the list holds.
func (p *Parcels) Capacity() float64 { return p.capacity }

// Free returns the unfilled capacity.
func (p *Parcels) Free() float64 {
	f := p.capacity - p.Volume()
	if f < 0 {
		return 0
	}
	return f
}

// PushWithOverflow inserts volume of f at end. When the list then exceeds
// its capacity, whole or partial parcels are removed from the opposite end
// until it fits; those are returned in the order they left.
func (p *Parcels) PushWithOverflow(end End, volume float64, f fluid.Fluid) []fluid.Parcel {
	if volume < p.tol.Volume || math.IsNaN(volume) {
		return nil
	}
	np := fluid.Parcel{Fluid: f, Volume: volume}
	if end == Top {
		p.items = append([]fluid.Parcel{np}, p.items...)
	} else {
		p.items = append(p.items, np)
	}
	p.normalize()
	if end == Top {
		return p.trim(Bottom)
	}
	return p.trim(Top)
}

// Push is PushWithOverflow for a ready-made parcel.
func (p *Parcels) Push(end End, parcel fluid.Parcel) []fluid.Parcel {
	return p.PushWithOverflow(end, parcel.Volume, parcel.Fluid)
}

// Take removes up to volume from end and returns it in exit order.
func (p *Parcels) Take(end End, volume float64) []fluid.Parcel {
	if volume < p.tol.Volume {
		return nil
	}
	out := p.remove(end, volume)
	p.normalize()
	return out
}

// trim removes parcels from end until the list fits its capacity.
func (p *Parcels) trim(end End) []fluid.Parcel {
	excess := p.Volume() - p.capacity
	if excess < p.tol.Volume {
		return nil
	}
	return p.remove(end, excess)
}

func (p *Parcels) remove(end End, volume float64) []fluid.Parcel {
	var out []fluid.Parcel
	remaining := volume
	for remaining >= p.tol.Volume && len(p.items) > 0 {
		idx := 0
		if end == Bottom {
			idx = len(p.items) - 1
		}
		cur := p.items[idx]
		if cur.Volume <= remaining+p.tol.Volume {
			out = append(out, cur)
			remaining -= cur.Volume
			if end == Bottom {
				p.items = p.items[:idx]
			} else {
				p.items = p.items[1:]
			}
			continue
		}
		part := cur
		part.Volume = remaining
		out = append(out, part)
		p.items[idx].Volume -= remaining
		remaining = 0
	}
	return out
}

// normalize drops empty parcels and merges matching neighbours until no
// pair merges.
func (p *Parcels) normalize() {
	kept := p.items[:0]
	for _, it := range p.items {
		if it.Volume >= p.tol.Volume && !math.IsNaN(it.Volume) {
			kept = append(kept, it)
		}
	}
	p.items = kept

	for {
		merged := false
		out := make([]fluid.Parcel, 0, len(p.items))
		for _, it := range p.items {
			if n := len(out); n > 0 && out[n-1].Fluid.Matches(it.Fluid, p.tol.Density) {
				out[n-1] = mergeParcels(out[n-1], it)
				merged = true
				continue
			}
			out = append(out, it)
		}
		p.items = out
		if !merged {
			return
		}
	}
}

// mergeParcels combines two matching parcels, keeping a's name and color.
func mergeParcels(a, b fluid.Parcel) fluid.Parcel {
	f, v := fluid.Blend([]fluid.Parcel{a, b})
	f.Name = a.Name
	f.Color = a.Color
	f.HasColor = a.HasColor
	if !a.Rheology.Known() && !b.Rheology.Known() {
		f.Rheology = a.Rheology
	}
	return fluid.Parcel{Fluid: f, Volume: v}
}
