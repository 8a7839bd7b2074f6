package stack

import (
	"math"

	"github.com/chrissnell/wellsim/internal/fluid"
)

// Pocket holds the open hole below the bit. Its shallow end follows the bit
// and is not anchored to surface; internally it stays contiguous and merged.
type Pocket struct {
	segs []fluid.Segment
	tol  Tolerances
}

// NewPocket returns a pocket seeded with segs (any order).
func NewPocket(tol Tolerances, segs ...fluid.Segment) *Pocket {
	p := &Pocket{tol: tol}
	for _, s := range segs {
		if s.Length() > tol.Length {
			p.segs = append(p.segs, s)
		}
	}
	p.normalize()
	return p
}

// Segments returns a copy of the pocket, shallowest first.
func (p *Pocket) Segments() []fluid.Segment {
	return append([]fluid.Segment(nil), p.segs...)
}

// Empty reports whether the pocket holds nothing.
func (p *Pocket) Empty() bool { return len(p.segs) == 0 }

// Top returns the shallowest depth of the pocket, or +Inf when empty.
func (p *Pocket) Top() float64 {
	if len(p.segs) == 0 {
		return math.Inf(1)
	}
	return p.segs[0].Top
}

// Bottom returns the deepest depth of the pocket, or -Inf when empty.
func (p *Pocket) Bottom() float64 {
	if len(p.segs) == 0 {
		return math.Inf(-1)
	}
	return p.segs[len(p.segs)-1].Bottom
}

// Prepend adds f over [top, bottom] above the current pocket. bottom is
// snapped to the current top so the pocket stays contiguous.
func (p *Pocket) Prepend(top, bottom float64, f fluid.Fluid) {
	if len(p.segs) > 0 {
		bottom = p.segs[0].Top
	}
	if bottom-top <= p.tol.Length {
		return
	}
	p.segs = append([]fluid.Segment{{Fluid: f, Top: top, Bottom: bottom}}, p.segs...)
	p.normalize()
}

// Consume removes the pocket above depth and returns the removed portion,
// shallowest first.
func (p *Pocket) Consume(depth float64) []fluid.Segment {
	var removed []fluid.Segment
	var kept []fluid.Segment
	for _, s := range p.segs {
		switch {
		case s.Bottom <= depth+p.tol.Length:
			removed = append(removed, s)
		case s.Top >= depth-p.tol.Length:
			kept = append(kept, s)
		default:
			upper, lower := s, s
			upper.Bottom = depth
			lower.Top = depth
			removed = append(removed, upper)
			kept = append(kept, lower)
		}
	}
	p.segs = kept
	return removed
}

func (p *Pocket) normalize() {
	if len(p.segs) == 0 {
		return
	}
	top := p.segs[0].Top
	for _, s := range p.segs {
		top = math.Min(top, s.Top)
	}
	bottom := p.segs[0].Bottom
	for _, s := range p.segs {
		bottom = math.Max(bottom, s.Bottom)
	}

	// Reuse the stack pass by shifting the pocket so its top sits at zero.
	shifted := make([]fluid.Segment, len(p.segs))
	for i, s := range p.segs {
		s.Top -= top
		s.Bottom -= top
		shifted[i] = s
	}
	shifted = normalizeSegments(shifted, bottom-top, p.tol, nil)
	for i := range shifted {
		shifted[i].Top += top
		shifted[i].Bottom += top
	}
	p.segs = shifted
}
