package pressure

import (
	"math"
	"testing"

	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/geometry"
)

func column(densities ...float64) []fluid.Segment {
	var segs []fluid.Segment
	step := 1000 / float64(len(densities))
	for i, d := range densities {
		segs = append(segs, fluid.Segment{
			Fluid:  fluid.Fluid{Density: d},
			Top:    float64(i) * step,
			Bottom: float64(i+1) * step,
		})
	}
	return segs
}

func TestUniformColumn(t *testing.T) {
	c := New(nil, 0)
	segs := column(1200)

	hydro := c.Hydrostatic(segs, 1000)
	want := 1200 * StandardGravity * 1000 / 1000
	if math.Abs(hydro-want) > 1e-9 {
		t.Errorf("Hydrostatic = %v, want %v", hydro, want)
	}
	if esd := c.ESD(segs, 1000); math.Abs(esd-1200) > 1e-9 {
		t.Errorf("ESD = %v, want 1200", esd)
	}
	if sabp := c.RequiredBackPressure(1200, 1000, hydro, 0); sabp > 1e-6 {
		t.Errorf("SABP = %v, want ~0", sabp)
	}
	if sabp := c.RequiredBackPressure(1300, 1000, hydro, 0); math.Abs(sabp-100*StandardGravity) > 1e-6 {
		t.Errorf("SABP for +100 kg/m³ = %v, want %v", sabp, 100*StandardGravity)
	}
	if sabp := c.RequiredBackPressure(1300, 1000, hydro, 2000); sabp != 0 {
		t.Errorf("friction above requirement should clamp to 0, got %v", sabp)
	}
}

func TestHydrostaticClipsAtTarget(t *testing.T) {
	c := New(geometry.Vertical{}, StandardGravity)
	segs := column(1000, 2000)

	if got, want := c.Hydrostatic(segs, 250), 1000*StandardGravity*250/1000; math.Abs(got-want) > 1e-9 {
		t.Errorf("Hydrostatic(250) = %v, want %v", got, want)
	}
	if got := c.ESD(segs, 1000); math.Abs(got-1500) > 1e-9 {
		t.Errorf("ESD(1000) = %v, want 1500", got)
	}
}

func TestDegenerateDepth(t *testing.T) {
	c := New(nil, 0)
	segs := column(1200)
	if got := c.Hydrostatic(segs, 0); got != 0 {
		t.Errorf("Hydrostatic at surface = %v", got)
	}
	if got := c.ESD(segs, 0); got != 0 {
		t.Errorf("ESD at surface = %v", got)
	}
	if got := c.ESD(nil, 500); got != 0 {
		t.Errorf("ESD of empty column = %v", got)
	}
	if got := c.EquivalentDensity(100, -5); got != 0 {
		t.Errorf("EquivalentDensity at negative depth = %v", got)
	}
}

func TestESDMonotonic(t *testing.T) {
	c := New(nil, 0)
	base := column(1100, 1200, 1300, 1250)
	esd := c.ESD(base, 1000)

	for i := range base {
		heavier := append([]fluid.Segment(nil), base...)
		heavier[i].Density += 50
		if got := c.ESD(heavier, 1000); got < esd {
			t.Errorf("raising segment %d density lowered ESD: %v < %v", i, got, esd)
		}
	}
}

func TestDeviatedSurvey(t *testing.T) {
	s, err := geometry.NewSurvey([]geometry.Station{{MD: 1000, TVD: 800}})
	if err != nil {
		t.Fatal(err)
	}
	c := New(s, 0)
	segs := column(1200)
	want := 1200 * StandardGravity * 800 / 1000
	if got := c.Hydrostatic(segs, 1000); math.Abs(got-want) > 1e-9 {
		t.Errorf("Hydrostatic = %v, want %v", got, want)
	}
	if got := c.ESD(segs, 1000); math.Abs(got-1200) > 1e-9 {
		t.Errorf("ESD = %v, want 1200", got)
	}
}
