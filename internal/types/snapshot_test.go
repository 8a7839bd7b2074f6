package types

import (
	"testing"

	"github.com/chrissnell/wellsim/internal/fluid"
)

func TestProjectSnapshotClone(t *testing.T) {
	orig := ProjectSnapshot{
		BitMD:   1000,
		String:  []fluid.Segment{{Fluid: fluid.Fluid{Name: "mud", Density: 1200}, Top: 0, Bottom: 1000}},
		Annulus: []fluid.Segment{{Fluid: fluid.Fluid{Name: "mud", Density: 1200}, Top: 0, Bottom: 1000}},
	}
	c := orig.Clone()
	c.String[0].Density = 1500
	c.Annulus = append(c.Annulus, fluid.Segment{})

	if orig.String[0].Density != 1200 {
		t.Error("clone shares string segments with the original")
	}
	if len(orig.Annulus) != 1 {
		t.Error("clone shares annulus slice with the original")
	}
	if c.Pocket != nil {
		t.Error("nil pocket should stay nil")
	}
}

func TestSeedStateClone(t *testing.T) {
	var nilSeed *SeedState
	if nilSeed.Clone() != nil {
		t.Error("nil seed should clone to nil")
	}
	s := &SeedState{BitMD: 500, Pocket: []fluid.Segment{{Top: 500, Bottom: 600}}}
	c := s.Clone()
	c.Pocket[0].Bottom = 700
	if s.Pocket[0].Bottom != 600 {
		t.Error("clone shares pocket segments")
	}
}

func TestRunResultWarn(t *testing.T) {
	r := &RunResult{Converged: true, Snapshots: make([]StepSnapshot, 3)}
	r.Warn("equalizer", 950, "iteration cap reached")
	if r.Converged {
		t.Error("warning should clear Converged")
	}
	s := r.Summarize()
	if s.Snapshots != 3 || s.Diagnostics != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
}
