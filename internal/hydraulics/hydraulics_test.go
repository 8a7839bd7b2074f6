package hydraulics

import (
	"errors"
	"math"
	"testing"

	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/geometry"
)

func simpleWell() *geometry.Position {
	w := &geometry.Well{
		TotalDepth: 1000,
		Hole:       []geometry.HoleSection{{Top: 0, Bottom: 1000, Diameter: 0.2}},
		String:     []geometry.StringComponent{{Name: "pipe", Length: 0, OD: 0.1, ID: 0.08}},
	}
	return w.At(1000)
}

var drillingMud = fluid.Fluid{
	Name:     "mud",
	Density:  1200,
	Rheology: fluid.Rheology{PlasticViscosity: 20, YieldPoint: 10},
}

func TestBinghamAPL(t *testing.T) {
	geom := simpleWell()
	segs := []fluid.Segment{{Fluid: drillingMud, Top: 0, Bottom: 1000}}
	b := NewBingham()

	q := 0.02 // m³/s
	got, err := b.APL(segs, q, geom, 1000)
	if err != nil {
		t.Fatalf("APL: %v", err)
	}

	annArea := math.Pi / 4 * (0.2*0.2 - 0.1*0.1)
	v := q / annArea
	gap := 0.1
	want := (48*0.020*v/(gap*gap) + 6*10/gap) * 1000 / 1000
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("APL = %v kPa, want %v", got, want)
	}

	higher, _ := b.APL(segs, 2*q, geom, 1000)
	if higher <= got {
		t.Errorf("APL did not increase with rate: %v <= %v", higher, got)
	}

	if zero, err := b.APL(segs, 0, geom, 1000); zero != 0 || err != nil {
		t.Errorf("APL at zero rate = %v, %v", zero, err)
	}
}

func TestBinghamSwabSurge(t *testing.T) {
	geom := simpleWell()
	segs := []fluid.Segment{{Fluid: drillingMud, Top: 0, Bottom: 1000}}
	b := &Bingham{}

	slow, err := b.SwabSurge(segs, 0.2, geom, 1000)
	if err != nil {
		t.Fatalf("SwabSurge: %v", err)
	}
	fast, _ := b.SwabSurge(segs, -0.5, geom, 1000)
	if slow <= 0 || fast <= slow {
		t.Errorf("expected positive swab growing with speed, got %v then %v", slow, fast)
	}
}

func TestMissingRheology(t *testing.T) {
	geom := simpleWell()
	segs := []fluid.Segment{
		{Fluid: drillingMud, Top: 0, Bottom: 500},
		{Fluid: fluid.Fluid{Name: "water", Density: 1000}, Top: 500, Bottom: 1000},
	}
	_, err := NewBingham().APL(segs, 0.01, geom, 1000)
	if !errors.Is(err, ErrMissingRheology) {
		t.Errorf("expected ErrMissingRheology, got %v", err)
	}

	// Below the bit the segment is outside the flow path.
	if _, err := NewBingham().APL(segs, 0.01, geom, 400); err != nil {
		t.Errorf("unexpected error for segment below bit: %v", err)
	}
}

func TestDialReadings(t *testing.T) {
	geom := simpleWell()
	dial := fluid.Fluid{Name: "dial", Density: 1200, Rheology: fluid.Rheology{Dial600: 50, Dial300: 30}}
	direct := fluid.Fluid{Name: "direct", Density: 1200, Rheology: fluid.Rheology{PlasticViscosity: 20, YieldPoint: 10 * 0.4788026}}

	a, err := NewBingham().APL([]fluid.Segment{{Fluid: dial, Top: 0, Bottom: 1000}}, 0.01, geom, 1000)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewBingham().APL([]fluid.Segment{{Fluid: direct, Top: 0, Bottom: 1000}}, 0.01, geom, 1000)
	if math.Abs(a-b) > 1e-9 {
		t.Errorf("dial-derived APL %v differs from direct %v", a, b)
	}
}
