// Package wellbore assembles the live fluid state of a well for a run: the
// string and annulus stacks above the bit and the open-hole pocket below it.
package wellbore

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/geometry"
	"github.com/chrissnell/wellsim/internal/stack"
	"github.com/chrissnell/wellsim/internal/types"
)

// ErrNoLayers is returned when a conduit has nothing to seed from.
var ErrNoLayers = errors.New("no fluid layers")

// State is owned by a single run.
type State struct {
	String     *stack.Stack
	Annulus    *stack.Stack
	Pocket     *stack.Pocket
	TotalDepth float64
}

// Seed builds the state with the bit at bitMD. Layers come from seed when
// given, otherwise from the project snapshot. Layers recorded for another
// bit depth are rescaled onto bitMD.
func Seed(project types.ProjectSnapshot, seed *types.SeedState, bitMD float64, pos geometry.Positioner, tol stack.Tolerances) (*State, error) {
	if pos == nil {
		return nil, fmt.Errorf("seeding wellbore: no geometry")
	}
	if bitMD < 0 || math.IsNaN(bitMD) {
		return nil, fmt.Errorf("seeding wellbore: invalid bit depth %v", bitMD)
	}

	strLayers, annLayers, pocketLayers := project.String, project.Annulus, project.Pocket
	layersBit := project.BitMD
	if seed != nil {
		strLayers, annLayers, pocketLayers = seed.String, seed.Annulus, seed.Pocket
		layersBit = seed.BitMD
	}

	geom := pos.ProviderAt(bitMD)
	str, err := layered(stack.String, geom, layersBit, bitMD, tol, strLayers)
	if err != nil {
		return nil, fmt.Errorf("seeding string: %w", err)
	}
	ann, err := layered(stack.Annulus, geom, layersBit, bitMD, tol, annLayers)
	if err != nil {
		return nil, fmt.Errorf("seeding annulus: %w", err)
	}

	s := &State{
		String:     str,
		Annulus:    ann,
		Pocket:     stack.NewPocket(tol, pocketLayers...),
		TotalDepth: math.Max(project.TotalDepth, bitMD),
	}
	s.fitPocket()
	return s, nil
}

func layered(c stack.Conduit, geom geometry.Provider, layersBit, bit float64, tol stack.Tolerances, layers []fluid.Segment) (*stack.Stack, error) {
	if bit <= tol.Length {
		return stack.New(c, geom, bit, tol, fluid.Fluid{}), nil
	}
	if len(layers) == 0 {
		return nil, ErrNoLayers
	}
	sorted := append([]fluid.Segment(nil), layers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Top < sorted[j].Top })

	if layersBit <= tol.Length {
		layersBit = sorted[len(sorted)-1].Bottom
	}
	st := stack.New(c, geom, layersBit, tol, sorted[len(sorted)-1].Fluid)
	for _, l := range sorted {
		st.Paint(l.Top, l.Bottom, l.Fluid)
	}
	if math.Abs(layersBit-bit) > tol.Length {
		st.ReanchorToBit(bit)
	}
	return st, nil
}

// fitPocket makes the pocket start exactly at the bit and reach TD, filling
// any uncovered hole with the annulus bottom fluid.
func (s *State) fitPocket() {
	bit := s.Bit()
	s.Pocket.Consume(bit)
	fill, ok := s.Annulus.BottomFluid()
	if !ok {
		return
	}
	if s.Pocket.Empty() {
		if s.TotalDepth > bit {
			s.Pocket = stack.NewPocket(s.tol(), fluid.Segment{Fluid: fill, Top: bit, Bottom: s.TotalDepth})
		}
		return
	}
	if s.Pocket.Top() > bit {
		s.Pocket.Prepend(bit, s.Pocket.Top(), fill)
	}
	if s.Pocket.Bottom() < s.TotalDepth {
		segs := s.Pocket.Segments()
		last := segs[len(segs)-1]
		segs = append(segs, fluid.Segment{Fluid: last.Fluid, Top: last.Bottom, Bottom: s.TotalDepth})
		s.Pocket = stack.NewPocket(s.tol(), segs...)
	}
}

func (s *State) tol() stack.Tolerances { return s.String.Tolerances() }

// Bit returns the current bit depth.
func (s *State) Bit() float64 { return s.String.BitDepth() }

// Geometry returns the provider both stacks currently use.
func (s *State) Geometry() geometry.Provider { return s.Annulus.Geometry() }

// OutsidePipe returns the annulus followed by the pocket: the column a
// bottom-hole gauge at TD sees.
func (s *State) OutsidePipe() []fluid.Segment {
	return append(s.Annulus.Segments(), s.Pocket.Segments()...)
}

// Final captures the state for seeding a chained run.
func (s *State) Final() *types.SeedState {
	return &types.SeedState{
		BitMD:   s.Bit(),
		String:  s.String.Segments(),
		Annulus: s.Annulus.Segments(),
		Pocket:  s.Pocket.Segments(),
	}
}
