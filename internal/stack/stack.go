package stack

import (
	"fmt"
	"math"
	"sort"

	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/geometry"
)

// Conduit identifies which flow path a Stack models.
type Conduit int

const (
	// String is the inside of the drill string.
	String Conduit = iota
	// Annulus is the space between the string and the hole wall.
	Annulus
)

func (c Conduit) String() string {
	switch c {
	case String:
		return "string"
	case Annulus:
		return "annulus"
	default:
		return fmt.Sprintf("conduit(%d)", int(c))
	}
}

// Stack is the depth-indexed fluid column of one conduit. After every
// mutating call its segments are sorted, disjoint, cover [0, bit] exactly,
// and no two neighbours match within the density tolerance.
type Stack struct {
	conduit Conduit
	geom    geometry.Provider
	tol     Tolerances
	bit     float64
	segs    []fluid.Segment
}

// New returns a stack for conduit filled with base from surface to bitMD.
func New(c Conduit, geom geometry.Provider, bitMD float64, tol Tolerances, base fluid.Fluid) *Stack {
	if geom == nil {
		panic("stack: nil geometry provider")
	}
	if bitMD < 0 || math.IsNaN(bitMD) {
		panic(fmt.Sprintf("stack: invalid bit depth %v for %s", bitMD, c))
	}
	s := &Stack{conduit: c, geom: geom, tol: tol, bit: bitMD}
	if bitMD > tol.Length {
		s.segs = []fluid.Segment{{Fluid: base, Top: 0, Bottom: bitMD}}
	}
	return s
}

// FromParcels lays parcels (surface end first) into a new stack, packed
// against the bit.
func FromParcels(c Conduit, geom geometry.Provider, bitMD float64, tol Tolerances, parcels []fluid.Parcel) *Stack {
	s := New(c, geom, bitMD, tol, fluid.Fluid{})
	s.segs = nil
	s.layFromBit(parcels)
	s.normalize()
	return s
}

// Conduit returns which conduit this stack models.
func (s *Stack) Conduit() Conduit { return s.conduit }

// BitDepth returns the deepest point of the stack.
func (s *Stack) BitDepth() float64 { return s.bit }

// Tolerances returns the tolerances the stack normalizes with.
func (s *Stack) Tolerances() Tolerances { return s.tol }

// Geometry returns the provider the stack converts volumes with.
func (s *Stack) Geometry() geometry.Provider { return s.geom }

// UseGeometry swaps the geometry provider, for when the pipe has moved with
// its contents.
func (s *Stack) UseGeometry(g geometry.Provider) {
	if g == nil {
		panic("stack: nil geometry provider")
	}
	s.geom = g
}

// Segments returns a copy of the segments, shallowest first.
func (s *Stack) Segments() []fluid.Segment {
	return append([]fluid.Segment(nil), s.segs...)
}

// Len returns the number of segments.
func (s *Stack) Len() int { return len(s.segs) }

// Capacity returns the conduit volume from surface to the bit.
func (s *Stack) Capacity() float64 {
	return s.volume(0, s.bit)
}

// FluidAt returns the fluid at depth. ok is false outside [0, bit].
func (s *Stack) FluidAt(depth float64) (fluid.Fluid, bool) {
	for _, seg := range s.segs {
		if depth >= seg.Top && depth <= seg.Bottom {
			return seg.Fluid, true
		}
	}
	return fluid.Fluid{}, false
}

// BottomFluid returns the fluid at the bit end.
func (s *Stack) BottomFluid() (fluid.Fluid, bool) {
	if len(s.segs) == 0 {
		return fluid.Fluid{}, false
	}
	return s.segs[len(s.segs)-1].Fluid, true
}

// Parcels converts the stack to volume parcels, surface end first.
func (s *Stack) Parcels() []fluid.Parcel {
	out := make([]fluid.Parcel, 0, len(s.segs))
	for _, seg := range s.segs {
		v := s.volume(seg.Top, seg.Bottom)
		if v < s.tol.Volume {
			continue
		}
		out = append(out, fluid.Parcel{Fluid: seg.Fluid, Volume: v})
	}
	return out
}

// SplitAt divides the segment strictly containing depth into two with the
// same fluid. It is a no-op on an existing boundary or an empty stack.
// Neighbours created here are merged again by the next mutating call.
func (s *Stack) SplitAt(depth float64) {
	for i, seg := range s.segs {
		if depth-seg.Top <= s.tol.Length || seg.Bottom-depth <= s.tol.Length {
			continue
		}
		upper, lower := seg, seg
		upper.Bottom = depth
		lower.Top = depth
		s.segs = append(s.segs[:i], append([]fluid.Segment{upper, lower}, s.segs[i+1:]...)...)
		return
	}
}

// Paint overwrites [from, to) with f.
func (s *Stack) Paint(from, to float64, f fluid.Fluid) {
	if from < 0 {
		from = 0
	}
	if to > s.bit {
		to = s.bit
	}
	if to-from <= s.tol.Length {
		return
	}
	s.SplitAt(from)
	s.SplitAt(to)

	painted := false
	for i := range s.segs {
		seg := &s.segs[i]
		if seg.Top >= from-s.tol.Length && seg.Bottom <= to+s.tol.Length {
			seg.Fluid = f
			painted = true
		}
	}
	if !painted {
		s.segs = append(s.segs, fluid.Segment{Fluid: f, Top: from, Bottom: to})
	}
	s.normalize()
}

// Translate moves the whole column and the bit by delta (positive is
// deeper), as when the string contents ride with the pipe. Anything moved
// above surface is discarded; space exposed at surface is filled with fill.
func (s *Stack) Translate(delta float64, fill fluid.Fluid) {
	if math.Abs(delta) <= s.tol.Length {
		return
	}
	newBit := s.bit + delta
	if newBit < 0 {
		panic(fmt.Sprintf("stack: translating %s by %.3f moves the bit above surface", s.conduit, delta))
	}
	for i := range s.segs {
		s.segs[i].Top += delta
		s.segs[i].Bottom += delta
	}
	if delta > 0 {
		s.segs = append([]fluid.Segment{{Fluid: fill, Top: 0, Bottom: delta}}, s.segs...)
	}
	s.bit = newBit
	s.normalize()
}

// ReanchorToBit rescales every boundary proportionally so the column spans
// [0, newBit], preserving each segment's fractional length.
func (s *Stack) ReanchorToBit(newBit float64) {
	if newBit < 0 || math.IsNaN(newBit) {
		panic(fmt.Sprintf("stack: invalid bit depth %v for %s", newBit, s.conduit))
	}
	if s.bit <= s.tol.Length || len(s.segs) == 0 {
		s.bit = newBit
		s.segs = nil
		return
	}
	scale := newBit / s.bit
	for i := range s.segs {
		s.segs[i].Top *= scale
		s.segs[i].Bottom *= scale
	}
	s.bit = newBit
	s.normalize()
}

// PushWithOverflow inserts volume of f at end. Fluid pushed past the other
// end is returned in exit order; the conduit volume is the capacity.
func (s *Stack) PushWithOverflow(end End, volume float64, f fluid.Fluid) []fluid.Parcel {
	if volume < s.tol.Volume {
		return nil
	}
	p := NewParcels(s.Capacity(), s.tol, s.Parcels()...)
	out := p.PushWithOverflow(end, volume, f)
	if end == Top {
		s.layFromSurface(p.Items())
	} else {
		s.layFromBit(p.Items())
	}
	s.normalize()
	return out
}

// AddFromSurface puts volume of f at the top of the column, pushing the
// rest deeper. Whatever passes the bit is returned.
func (s *Stack) AddFromSurface(f fluid.Fluid, volume float64) []fluid.Parcel {
	return s.PushWithOverflow(Top, volume, f)
}

// AddAirFromSurface lets air into the top of a draining string. Only the
// string is open to atmosphere this way; calling it on any other conduit
// panics.
func (s *Stack) AddAirFromSurface(air fluid.Fluid, volume float64) []fluid.Parcel {
	if s.conduit != String {
		panic(fmt.Sprintf("stack: air fill from surface on %s stack", s.conduit))
	}
	return s.PushWithOverflow(Top, volume, air)
}

// PumpFromSurface pumps volume of f into the top of the string. Gas at the
// surface end is free capacity: liquid settles beneath it, displacing it out
// at surface, and only once the gas is gone does the column move past the
// bit. It returns the vented gas volume and the parcels leaving at the bit
// in exit order.
func (s *Stack) PumpFromSurface(f fluid.Fluid, volume float64) (vented float64, expelled []fluid.Parcel) {
	if s.conduit != String {
		panic(fmt.Sprintf("stack: pump from surface on %s stack", s.conduit))
	}
	if volume < s.tol.Volume {
		return 0, nil
	}
	p := NewParcels(s.Capacity(), s.tol, s.Parcels()...)
	gasVolume := 0.0
	for _, it := range p.Items() {
		if !it.Gas {
			break
		}
		gasVolume += it.Volume
	}
	gas := p.Take(Top, gasVolume)

	expelled = p.PushWithOverflow(Top, volume, f)
	vented = math.Min(volume, fluid.TotalVolume(gas))
	if kept := fluid.TotalVolume(gas) - vented; kept >= s.tol.Volume {
		// The remaining gas exactly fills the free capacity.
		p.PushWithOverflow(Top, kept, gas[0].Fluid)
	}
	s.layFromSurface(p.Items())
	s.normalize()
	return vented, expelled
}

// InjectAtBit adds volume of f at the bit, pushing the column uphole. The
// fluid overflowing at surface is returned.
func (s *Stack) InjectAtBit(f fluid.Fluid, volume float64) []fluid.Parcel {
	if s.conduit != Annulus {
		panic(fmt.Sprintf("stack: inject at bit on %s stack", s.conduit))
	}
	return s.PushWithOverflow(Bottom, volume, f)
}

// InjectParcelsAtBit injects parcels in the order they arrive at the bit.
func (s *Stack) InjectParcelsAtBit(parcels []fluid.Parcel) []fluid.Parcel {
	if s.conduit != Annulus {
		panic(fmt.Sprintf("stack: inject at bit on %s stack", s.conduit))
	}
	if fluid.TotalVolume(parcels) < s.tol.Volume {
		return nil
	}
	p := NewParcels(s.Capacity(), s.tol, s.Parcels()...)
	var overflow []fluid.Parcel
	for _, in := range parcels {
		overflow = append(overflow, p.Push(Bottom, in)...)
	}
	s.layFromBit(p.Items())
	s.normalize()
	return overflow
}

// Retract moves the bit up to newBit using geometry next. donate is the
// volume leaving at the old bit into open hole; refill parcels enter at
// surface in the given order, so the last one ends up shallowest. When the
// column holds less than donate, the refill makes up the difference.
// Anything that no longer fits leaves at surface. It returns the donated
// parcels (bit-most first) and the surface overflow.
func (s *Stack) Retract(next geometry.Provider, newBit, donate float64, refill []fluid.Parcel) (donated, overflow []fluid.Parcel) {
	if newBit > s.bit+s.tol.Length {
		panic(fmt.Sprintf("stack: retract %s from %.3f to deeper %.3f", s.conduit, s.bit, newBit))
	}
	if next == nil {
		panic("stack: nil geometry provider")
	}

	column := s.Parcels()
	items := make([]fluid.Parcel, 0, len(refill)+len(column))
	for i := len(refill) - 1; i >= 0; i-- {
		items = append(items, refill[i])
	}
	items = append(items, column...)
	q := NewParcels(math.Inf(1), s.tol, items...)
	donated = q.Take(Bottom, donate)

	s.geom = next
	s.bit = math.Max(newBit, 0)

	if excess := q.Volume() - s.Capacity(); excess >= s.tol.Volume {
		overflow = q.Take(Top, excess)
	}
	s.segs = nil
	s.layFromBit(q.Items())
	s.normalize()
	return donated, overflow
}

// Advance moves the bit down to newBit using geometry next. inflow enters
// at the bit in the given order; what no longer fits leaves at surface and
// is returned.
func (s *Stack) Advance(next geometry.Provider, newBit float64, inflow []fluid.Parcel) []fluid.Parcel {
	if newBit < s.bit-s.tol.Length {
		panic(fmt.Sprintf("stack: advance %s from %.3f to shallower %.3f", s.conduit, s.bit, newBit))
	}
	if next == nil {
		panic("stack: nil geometry provider")
	}

	items := s.Parcels()
	s.geom = next
	s.bit = newBit

	q := NewParcels(math.Inf(1), s.tol, append(items, inflow...)...)
	var overflow []fluid.Parcel
	if excess := q.Volume() - s.Capacity(); excess >= s.tol.Volume {
		overflow = q.Take(Top, excess)
	}
	s.segs = nil
	s.layFromBit(q.Items())
	s.normalize()
	return overflow
}

// Normalize re-applies the stack invariants. Every mutating method already
// does this; it is exported for callers that want to assert idempotence.
func (s *Stack) Normalize() { s.normalize() }

func (s *Stack) volume(top, bottom float64) float64 {
	if bottom <= top {
		return 0
	}
	if s.conduit == String {
		return s.geom.StringVolume(top, bottom)
	}
	return s.geom.AnnulusVolume(top, bottom)
}

// depthAtVolume returns the depth enclosing v from surface.
func (s *Stack) depthAtVolume(v float64) float64 {
	if v <= 0 {
		return 0
	}
	if s.conduit == String {
		return s.geom.StringLengthForVolume(0, v)
	}
	return s.geom.AnnulusLengthForVolume(0, v)
}

func (s *Stack) layFromSurface(parcels []fluid.Parcel) {
	s.lay(parcels, 0)
}

// layFromBit packs parcels so the last one ends at the bit. A shortfall
// leaves space at surface, which normalize closes.
func (s *Stack) layFromBit(parcels []fluid.Parcel) {
	offset := s.Capacity() - fluid.TotalVolume(parcels)
	if offset < 0 {
		offset = 0
	}
	s.lay(parcels, offset)
}

func (s *Stack) lay(parcels []fluid.Parcel, startVolume float64) {
	segs := make([]fluid.Segment, 0, len(parcels))
	cum := startVolume
	top := s.depthAtVolume(cum)
	for _, p := range parcels {
		cum += p.Volume
		bottom := s.depthAtVolume(cum)
		segs = append(segs, fluid.Segment{Fluid: p.Fluid, Top: top, Bottom: bottom})
		top = bottom
	}
	s.segs = segs
}

func (s *Stack) normalize() {
	s.segs = normalizeSegments(s.segs, s.bit, s.tol, s.volume)
}

// normalizeSegments enforces cover of [0, bit], ordering, and merging.
// Merged fluids are weighted by volume(top, bottom), or by length when
// volume is nil.
func normalizeSegments(in []fluid.Segment, bit float64, tol Tolerances, volume func(top, bottom float64) float64) []fluid.Segment {
	if bit <= tol.Length {
		return nil
	}

	segs := make([]fluid.Segment, 0, len(in))
	for _, seg := range in {
		if math.IsNaN(seg.Top) || math.IsNaN(seg.Bottom) {
			continue
		}
		if seg.Top < 0 {
			seg.Top = 0
		}
		if seg.Bottom > bit {
			seg.Bottom = bit
		}
		if seg.Bottom-seg.Top <= tol.Length {
			continue
		}
		segs = append(segs, seg)
	}
	if len(segs) == 0 {
		return nil
	}
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Top < segs[j].Top })

	out := segs[:0]
	for _, seg := range segs {
		if n := len(out); n > 0 {
			seg.Top = out[n-1].Bottom
			if seg.Bottom-seg.Top <= tol.Length {
				continue
			}
		} else {
			seg.Top = 0
		}
		out = append(out, seg)
	}
	out[len(out)-1].Bottom = bit

	return mergeSegments(out, tol, volume)
}

func mergeSegments(segs []fluid.Segment, tol Tolerances, volume func(top, bottom float64) float64) []fluid.Segment {
	if volume == nil {
		volume = func(top, bottom float64) float64 { return bottom - top }
	}
	for {
		merged := false
		out := make([]fluid.Segment, 0, len(segs))
		for _, seg := range segs {
			if n := len(out); n > 0 && out[n-1].Fluid.Matches(seg.Fluid, tol.Density) {
				prev := out[n-1]
				m := mergeParcels(
					fluid.Parcel{Fluid: prev.Fluid, Volume: volume(prev.Top, prev.Bottom)},
					fluid.Parcel{Fluid: seg.Fluid, Volume: volume(seg.Top, seg.Bottom)},
				)
				out[n-1] = fluid.Segment{Fluid: m.Fluid, Top: prev.Top, Bottom: seg.Bottom}
				merged = true
				continue
			}
			out = append(out, seg)
		}
		segs = out
		if !merged {
			return segs
		}
	}
}
