package geometry

import (
	"fmt"
	"math"
	"sort"
)

// HoleSection is an interval of cased or open hole with a single inner
// diameter.
type HoleSection struct {
	Top      float64 // MD, m
	Bottom   float64 // MD, m
	Diameter float64 // m
}

// StringComponent is one element of the drill string. Components are listed
// from the bit upward; the last one is extended to surface if the listed
// lengths do not reach it.
type StringComponent struct {
	Name   string
	Length float64 // m
	OD     float64 // m
	ID     float64 // m
}

// Well is the static description of hole and drill string. Call At to get a
// Provider for a given bit depth.
type Well struct {
	TotalDepth float64
	Hole       []HoleSection
	String     []StringComponent
}

// Validate checks that the well can produce a usable geometry.
func (w *Well) Validate() error {
	if len(w.Hole) == 0 {
		return fmt.Errorf("well has no hole sections")
	}
	for i, h := range w.Hole {
		if h.Diameter <= 0 {
			return fmt.Errorf("hole section %d has non-positive diameter", i)
		}
		if h.Bottom <= h.Top {
			return fmt.Errorf("hole section %d has bottom %.2f above top %.2f", i, h.Bottom, h.Top)
		}
	}
	if len(w.String) == 0 {
		return fmt.Errorf("well has no string components")
	}
	for i, c := range w.String {
		if c.OD <= 0 || c.ID < 0 || c.ID >= c.OD {
			return fmt.Errorf("string component %d (%s) has invalid diameters OD=%.4f ID=%.4f", i, c.Name, c.OD, c.ID)
		}
		if c.Length <= 0 && i < len(w.String)-1 {
			return fmt.Errorf("string component %d (%s) has non-positive length", i, c.Name)
		}
	}
	return nil
}

func circleArea(d float64) float64 {
	return math.Pi / 4 * d * d
}

func (w *Well) holeDiameter(md float64) float64 {
	d := w.Hole[0].Diameter
	for _, h := range w.Hole {
		if md >= h.Top {
			d = h.Diameter
		}
		if md < h.Bottom {
			break
		}
	}
	return d
}

// component returns the string component at md for a bit at bit, and false
// below the bit.
func (w *Well) component(md, bit float64) (StringComponent, bool) {
	if md >= bit {
		return StringComponent{}, false
	}
	above := bit - md
	var cum float64
	for i, c := range w.String {
		cum += c.Length
		if above <= cum || i == len(w.String)-1 {
			return c, true
		}
	}
	return StringComponent{}, false
}

// Position is the well geometry with the bit at a fixed measured depth.
type Position struct {
	bit     float64
	str     profile
	od      profile
	steel   profile
	annulus profile
}

// At positions the string with its bit at bitMD. It panics if the well has
// no hole sections or string, since no volume can be computed for it.
func (w *Well) At(bitMD float64) *Position {
	if len(w.Hole) == 0 || len(w.String) == 0 {
		panic("geometry: well requires hole sections and string components")
	}
	if bitMD < 0 {
		panic(fmt.Sprintf("geometry: negative bit depth %.3f", bitMD))
	}

	end := math.Max(w.TotalDepth, bitMD)
	breaks := []float64{0, bitMD, end}
	for _, h := range w.Hole {
		breaks = append(breaks, h.Top, h.Bottom)
	}
	var cum float64
	for _, c := range w.String {
		cum += c.Length
		breaks = append(breaks, bitMD-cum)
	}
	sort.Float64s(breaks)

	var uniq []float64
	for _, b := range breaks {
		if b < 0 || b > end {
			continue
		}
		if len(uniq) == 0 || b-uniq[len(uniq)-1] > 1e-9 {
			uniq = append(uniq, b)
		}
	}
	if len(uniq) == 1 {
		uniq = append(uniq, uniq[0]+1)
	}

	p := &Position{bit: bitMD}
	for i := 0; i < len(uniq)-1; i++ {
		top, bottom := uniq[i], uniq[i+1]
		mid := (top + bottom) / 2
		hole := circleArea(w.holeDiameter(mid))

		var odA, idA float64
		if c, ok := w.component(mid, bitMD); ok {
			odA = circleArea(c.OD)
			idA = circleArea(c.ID)
		}
		ann := hole - odA
		if ann < 0 {
			ann = 0
		}

		p.str = append(p.str, piece{top, bottom, idA})
		p.od = append(p.od, piece{top, bottom, odA})
		p.steel = append(p.steel, piece{top, bottom, odA - idA})
		p.annulus = append(p.annulus, piece{top, bottom, ann})
	}

	// Below the deepest breakpoint there is open hole only.
	last := uniq[len(uniq)-1]
	hole := circleArea(w.holeDiameter(last))
	p.str = append(p.str, piece{last, last, 0})
	p.od = append(p.od, piece{last, last, 0})
	p.steel = append(p.steel, piece{last, last, 0})
	p.annulus = append(p.annulus, piece{last, last, hole})
	return p
}

// BitDepth returns the bit position this geometry was built for.
func (p *Position) BitDepth() float64 { return p.bit }

func (p *Position) StringVolume(top, bottom float64) float64 {
	return p.str.volume(top, math.Min(bottom, p.bit))
}

func (p *Position) AnnulusVolume(top, bottom float64) float64 {
	return p.annulus.volume(top, bottom)
}

func (p *Position) StringLengthForVolume(from, volume float64) float64 {
	return p.str.lengthFor(from, volume)
}

func (p *Position) AnnulusLengthForVolume(from, volume float64) float64 {
	return p.annulus.lengthFor(from, volume)
}

func (p *Position) SteelArea(md float64) float64 {
	return p.steel.areaAt(md)
}

func (p *Position) SteelVolume(top, bottom float64) float64 {
	return p.steel.volume(top, bottom)
}

func (p *Position) OuterDiameterVolume(top, bottom float64) float64 {
	return p.od.volume(top, bottom)
}

func (p *Position) AnnulusArea(md float64) float64 {
	return p.annulus.areaAt(md)
}

// StringArea returns the inner cross-section of the string at md.
func (p *Position) StringArea(md float64) float64 {
	return p.str.areaAt(md)
}

// OuterDiameterArea returns the closed-end cross-section of the string at md.
func (p *Position) OuterDiameterArea(md float64) float64 {
	return p.od.areaAt(md)
}

// ProviderAt implements Positioner.
func (w *Well) ProviderAt(bitMD float64) Provider {
	return w.At(bitMD)
}
