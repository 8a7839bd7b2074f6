package floatvalve

import (
	"math"
	"testing"

	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/geometry"
	"github.com/chrissnell/wellsim/internal/pressure"
	"github.com/chrissnell/wellsim/internal/stack"
)

var (
	mud  = fluid.Fluid{Name: "mud", Density: 1200}
	slug = fluid.Fluid{Name: "slug", Density: 1500}
)

func position() *geometry.Position {
	w := &geometry.Well{
		TotalDepth: 1000,
		Hole:       []geometry.HoleSection{{Top: 0, Bottom: 1000, Diameter: 0.2159}},
		String:     []geometry.StringComponent{{Name: "dp", OD: 0.127, ID: 0.1086}},
	}
	return w.At(1000)
}

func stacks(strFluid, annFluid fluid.Fluid) (*stack.Stack, *stack.Stack) {
	geom := position()
	tol := stack.DefaultTolerances()
	return stack.New(stack.String, geom, 1000, tol, strFluid), stack.New(stack.Annulus, geom, 1000, tol, annFluid)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name            string
		str, ann, crack float64
		want            State
	}{
		{"balanced", 100, 100, 0, Closed},
		{"annulus heavier", 90, 100, 0, Closed},
		{"within crack", 100.4, 100, 0.5, Closed},
		{"string heavier", 101, 100, 0.5, Open},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				if got := Decide(tt.str, tt.ann, tt.crack); got != tt.want {
					t.Errorf("Decide(%v, %v, %v) = %v, want %v", tt.str, tt.ann, tt.crack, got, tt.want)
				}
			}
		})
	}
}

func TestEqualizeAlreadyClosed(t *testing.T) {
	str, ann := stacks(mud, mud)
	e := NewEqualizer(pressure.New(nil, 0), nil)
	res := e.Equalize(str, ann, 0)
	if res.Reason != AlreadyClosed || res.Iterations != 0 || res.Drained != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestEqualizeSlug(t *testing.T) {
	str, ann := stacks(mud, mud)
	str.Paint(0, 100, slug)

	e := NewEqualizer(pressure.New(nil, 0), nil)
	before := e.Evaluate(str, ann, 0)
	if before.State != Open {
		t.Fatalf("slugged string should open the float, margin %v", before.Margin)
	}

	res := e.Equalize(str, ann, 0)
	if res.Reason != Converged {
		t.Fatalf("reason = %v, want converged (%+v)", res.Reason, res)
	}
	if res.Final.State != Closed {
		t.Errorf("float still open after equalization")
	}
	if res.Drained <= 0 || math.Abs(res.Drained-res.PitGain) > 1e-9 {
		t.Errorf("drained %v should all show as pit gain, got %v", res.Drained, res.PitGain)
	}
	if res.Iterations != int(math.Ceil(res.Drained/DefaultParcelVolume-1e-9)) {
		t.Errorf("iterations %d inconsistent with drained %v", res.Iterations, res.Drained)
	}
	if f, _ := str.FluidAt(0); f.Name != "air" {
		t.Errorf("string top should be air after draining: %+v", str.Segments())
	}

	// Roughly the length of string whose mud balances the slug overbalance.
	airLength := str.Segments()[0].Bottom
	if airLength < 20 || airLength > 30 {
		t.Errorf("air column %v m, expected about 25 m", airLength)
	}
}

func TestEqualizeIterationCap(t *testing.T) {
	str, ann := stacks(mud, mud)
	str.Paint(0, 100, slug)

	e := NewEqualizer(pressure.New(nil, 0), nil)
	e.MaxIterations = 3
	res := e.Equalize(str, ann, 0)
	if res.Reason != IterationCap || res.Iterations != 3 {
		t.Errorf("expected iteration cap after 3, got %+v", res)
	}
	if res.Final.State != Open {
		t.Errorf("float should still be open")
	}
}

func TestEqualizeObserved(t *testing.T) {
	str, ann := stacks(mud, mud)
	e := NewEqualizer(pressure.New(nil, 0), nil)

	res := e.Run(str, ann, 0, Observed, 0.055)
	if res.Reason != Converged {
		t.Fatalf("reason = %v", res.Reason)
	}
	if math.Abs(res.Drained-0.055) > 1e-9 {
		t.Errorf("drained %v, want 0.055", res.Drained)
	}
	if res.Iterations != 6 {
		t.Errorf("iterations = %d, want 6", res.Iterations)
	}
}

func TestEqualizeVolumeExhausted(t *testing.T) {
	str, ann := stacks(fluid.Fluid{Name: "heavy", Density: 2000}, fluid.Fluid{Name: "light", Density: 500})
	str.Paint(900, 1000, fluid.Air(DefaultAirDensity))

	res := NewEqualizer(pressure.New(nil, 0), nil).Equalize(str, ann, 0)
	if res.Reason != VolumeExhausted || res.Iterations != 0 {
		t.Errorf("expected immediate exhaustion, got %+v", res)
	}
}

func TestEqualizeWrongStacksPanics(t *testing.T) {
	str, ann := stacks(mud, mud)
	defer func() {
		if recover() == nil {
			t.Error("expected panic when stacks are swapped")
		}
	}()
	NewEqualizer(pressure.New(nil, 0), nil).Equalize(ann, str, 0)
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("observed"); err != nil || m != Observed {
		t.Errorf("ParseMode(observed) = %v, %v", m, err)
	}
	if _, err := ParseMode("guess"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
