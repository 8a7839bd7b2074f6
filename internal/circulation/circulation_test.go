package circulation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/geometry"
	"github.com/chrissnell/wellsim/internal/pressure"
	"github.com/chrissnell/wellsim/internal/types"
	"go.uber.org/zap"
)

var (
	mud  = fluid.Fluid{Name: "mud", Density: 1200}
	pill = fluid.Fluid{Name: "pill", Density: 1300}
)

func testWell() *geometry.Well {
	return &geometry.Well{
		TotalDepth: 1000,
		Hole:       []geometry.HoleSection{{Top: 0, Bottom: 1000, Diameter: 0.2159}},
		String:     []geometry.StringComponent{{Name: "dp", OD: 0.127, ID: 0.1086}},
	}
}

func stringCapacity() float64 { return math.Pi / 4 * 0.1086 * 0.1086 * 1000 }

func project() types.ProjectSnapshot {
	return types.ProjectSnapshot{
		BitMD:      1000,
		TotalDepth: 1000,
		String:     []fluid.Segment{{Fluid: mud, Top: 0, Bottom: 1000}},
		Annulus:    []fluid.Segment{{Fluid: mud, Top: 0, Bottom: 1000}},
	}
}

func params(schedule ...PumpOp) Params {
	p := DefaultParams()
	p.Project = project()
	p.Schedule = schedule
	p.TargetESD = 1250
	return p
}

func deps() Deps {
	return Deps{
		Geometry: testWell(),
		Calc:     pressure.New(nil, 0),
		Logger:   zap.NewNop().Sugar(),
	}
}

// linearAPL returns K kPa per m³/s of flow.
type linearAPL struct{ K float64 }

func (l linearAPL) APL(_ []fluid.Segment, q float64, _ geometry.Provider, _ float64) (float64, error) {
	return l.K * q, nil
}

type failingAPL struct{}

func (failingAPL) APL([]fluid.Segment, float64, geometry.Provider, float64) (float64, error) {
	return 0, errors.New("no rheology")
}

func TestPillReachesAnnulus(t *testing.T) {
	p := params(
		PumpOp{Fluid: pill, Volume: 2},
		PumpOp{Fluid: mud, Volume: stringCapacity() + 5},
	)
	res, err := Run(context.Background(), p, deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != types.StatusCompleted || !res.Converged {
		t.Fatalf("unexpected status %s converged=%v", res.Status, res.Converged)
	}
	if n := len(res.Snapshots); n > p.MaxPoints+1 {
		t.Errorf("%d snapshots exceeds the point budget", n)
	}

	first, last := res.Snapshots[0], res.Snapshots[len(res.Snapshots)-1]
	if want := 50 * pressure.StandardGravity; math.Abs(first.StaticSABP-want) > 1e-6 {
		t.Errorf("initial static SABP %.4f, want %.4f", first.StaticSABP, want)
	}
	if math.Abs(last.PumpedVolume-p.TotalVolume()) > 1e-9 {
		t.Errorf("pumped %.6f, want %.6f", last.PumpedVolume, p.TotalVolume())
	}
	if math.Abs(last.ReturnsVolume-last.PumpedVolume) > 1e-6 {
		t.Errorf("returns %.6f should equal pumped %.6f with full conduits", last.ReturnsVolume, last.PumpedVolume)
	}
	if last.ControlESD <= first.ControlESD || last.StaticSABP >= first.StaticSABP {
		t.Errorf("heavy pill in the annulus should raise ESD: %.3f -> %.3f", first.ControlESD, last.ControlESD)
	}

	var inAnnulus bool
	for _, s := range last.Annulus {
		if s.Name == "pill" {
			inAnnulus = true
			if vol := s.Length() * math.Pi / 4 * (0.2159*0.2159 - 0.127*0.127); math.Abs(vol-2) > 1e-6 {
				t.Errorf("pill volume in annulus %.6f, want 2", vol)
			}
		}
	}
	if !inAnnulus {
		t.Errorf("pill not found in annulus %+v", last.Annulus)
	}
	for _, s := range last.String {
		if s.Name != "mud" {
			t.Errorf("string still holds %s", s.Name)
		}
	}
	if last.PumpingFluid != "mud" {
		t.Errorf("pumping fluid %q, want mud", last.PumpingFluid)
	}
	if res.Final == nil || res.Final.BitMD != 1000 {
		t.Errorf("final seed %+v", res.Final)
	}
}

func TestPumpRateLimiting(t *testing.T) {
	tests := []struct {
		name    string
		limit   bool
		iters   int
		limited bool
		warn    bool
	}{
		{name: "unlimited", limit: false, iters: DefaultBisectionIterations},
		{name: "limited", limit: true, iters: DefaultBisectionIterations, limited: true},
		{name: "bracket not closed", limit: true, iters: 2, limited: true, warn: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := params(PumpOp{Fluid: mud, Volume: 1})
			p.PumpRate = 1.2
			p.LimitPumpRate = tt.limit
			p.BisectionIterations = tt.iters
			d := deps()
			d.APL = linearAPL{K: 50000}

			res, err := Run(context.Background(), p, d)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			s := res.Snapshots[0]
			if s.RateLimited != tt.limited {
				t.Errorf("rate limited %v, want %v", s.RateLimited, tt.limited)
			}
			if res.Converged == tt.warn {
				t.Errorf("converged %v with warn %v: %+v", res.Converged, tt.warn, res.Diagnostics)
			}
			if !tt.limit {
				if s.PumpRate != 1.2 || math.Abs(s.APL-1000) > 1e-9 || s.EffectiveSABP != 0 {
					t.Errorf("unlimited rate %.3f apl %.3f effective %.3f", s.PumpRate, s.APL, s.EffectiveSABP)
				}
				return
			}
			if s.APL > s.StaticSABP+1e-9 {
				t.Errorf("limited APL %.4f exceeds static %.4f", s.APL, s.StaticSABP)
			}
			if s.PumpRate >= 1.2 || s.PumpRate < 0 {
				t.Errorf("limited rate %.4f", s.PumpRate)
			}
			if !tt.warn {
				want := s.StaticSABP / 50000 * 60
				if math.Abs(s.PumpRate-want) > 1e-6 || s.EffectiveSABP > 1e-4 {
					t.Errorf("rate %.6f want %.6f, effective %.6f", s.PumpRate, want, s.EffectiveSABP)
				}
			}
		})
	}
}

func TestAPLFailureIsNoted(t *testing.T) {
	p := params(PumpOp{Fluid: mud, Volume: 1})
	p.PumpRate = 1
	d := deps()
	d.APL = failingAPL{}

	res, err := Run(context.Background(), p, d)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Converged {
		t.Errorf("APL failure should not mark the run unconverged")
	}
	if len(res.Diagnostics) != 1 || res.Diagnostics[0].Level != types.LevelInfo {
		t.Errorf("expected one info diagnostic, got %+v", res.Diagnostics)
	}
	for _, s := range res.Snapshots {
		if s.APL != 0 {
			t.Fatalf("APL %.3f after estimator failure", s.APL)
		}
	}
}

func TestIncrementsRespectMaxPoints(t *testing.T) {
	p := params(PumpOp{Fluid: mud, Volume: 100})
	p.MaxPoints = 20
	res, err := Run(context.Background(), p, deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Snapshots) != 21 {
		t.Fatalf("expected 21 snapshots, got %d", len(res.Snapshots))
	}
	for i, s := range res.Snapshots {
		if math.Abs(s.PumpedVolume-5*float64(i)) > 1e-9 {
			t.Errorf("snapshot %d pumped %.6f", i, s.PumpedVolume)
		}
	}
}

func TestProgressAndCancellation(t *testing.T) {
	p := params(PumpOp{Fluid: mud, Volume: 10})
	p.MaxPoints = 100
	p.ProgressEvery = 10

	var calls []types.Progress
	d := deps()
	d.Progress = func(pr types.Progress) { calls = append(calls, pr) }
	if _, err := Run(context.Background(), p, d); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(calls) != 10 {
		t.Errorf("expected 10 progress calls, got %d", len(calls))
	}
	if last := calls[len(calls)-1]; math.Abs(last.Fraction-1) > 1e-9 || last.Phase != types.PhaseCirculate {
		t.Errorf("last progress %+v", last)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, p, deps())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if res == nil || res.Status != types.StatusCancelled || len(res.Snapshots) != 1 {
		t.Errorf("partial result %+v", res)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"empty schedule", func(p *Params) { p.Schedule = nil }},
		{"zero volume", func(p *Params) { p.Schedule[0].Volume = 0 }},
		{"no density", func(p *Params) { p.Schedule[0].Fluid.Density = 0 }},
		{"no points", func(p *Params) { p.MaxPoints = 0 }},
		{"negative target", func(p *Params) { p.TargetESD = -1 }},
		{"min above max rate", func(p *Params) { p.PumpRate = 1; p.MinPumpRate = 2 }},
		{"limit without bisection", func(p *Params) { p.LimitPumpRate = true; p.BisectionIterations = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := params(PumpOp{Fluid: mud, Volume: 1})
			tt.mutate(&p)
			if _, err := Run(context.Background(), p, deps()); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestSeededCirculation(t *testing.T) {
	p := params(PumpOp{Fluid: pill, Volume: 1})
	p.Seed = &types.SeedState{
		BitMD:   800,
		String:  []fluid.Segment{{Fluid: mud, Top: 0, Bottom: 800}},
		Annulus: []fluid.Segment{{Fluid: mud, Top: 0, Bottom: 800}},
		Pocket:  []fluid.Segment{{Fluid: mud, Top: 800, Bottom: 1000}},
	}
	res, err := Run(context.Background(), p, deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := res.Snapshots[len(res.Snapshots)-1]
	if last.BitMD != 800 || last.ControlMD != 1000 {
		t.Errorf("bit %.1f control %.1f", last.BitMD, last.ControlMD)
	}
	if top := last.String[0]; top.Name != "pill" || top.Top != 0 {
		t.Errorf("string top %+v, want pill", top)
	}
	if math.Abs(last.ReturnsVolume-1) > 1e-6 {
		t.Errorf("returns %.6f, want 1", last.ReturnsVolume)
	}
}

func TestAirInStringFillsBeforeReturns(t *testing.T) {
	air := fluid.Air(1.2)
	p := params(PumpOp{Fluid: pill, Volume: 2})
	p.Seed = &types.SeedState{
		BitMD:   1000,
		String:  []fluid.Segment{{Fluid: air, Top: 0, Bottom: 100}, {Fluid: mud, Top: 100, Bottom: 1000}},
		Annulus: []fluid.Segment{{Fluid: mud, Top: 0, Bottom: 1000}},
	}
	res, err := Run(context.Background(), p, deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	free := stringCapacity() / 10
	var prev float64
	for _, s := range res.Snapshots {
		want := math.Max(0, s.PumpedVolume-free)
		if math.Abs(s.ReturnsVolume-want) > 1e-6 {
			t.Errorf("pumped %.4f: returns %.6f, want %.6f", s.PumpedVolume, s.ReturnsVolume, want)
		}
		if s.ReturnsVolume < prev-1e-12 {
			t.Errorf("returns decreased to %.6f", s.ReturnsVolume)
		}
		prev = s.ReturnsVolume
	}

	last := res.Snapshots[len(res.Snapshots)-1]
	if want := 2 - free; math.Abs(last.ReturnsVolume-want) > 1e-6 {
		t.Errorf("returns %.6f, want %.6f", last.ReturnsVolume, want)
	}
	for _, s := range last.String {
		if s.Gas {
			t.Errorf("air left in the string at %.1f-%.1f m", s.Top, s.Bottom)
		}
	}
	if top := last.String[0]; top.Name != "pill" || top.Top != 0 {
		t.Errorf("string top %+v, want pill", top)
	}
	for _, s := range last.Annulus {
		if s.Name != "mud" {
			t.Errorf("annulus holds %s; only mud should have left the bit", s.Name)
		}
	}
}

func TestIncrementsSpanPumpOperations(t *testing.T) {
	var ops []PumpOp
	for i := 0; i < 50; i++ {
		f := mud
		if i%2 == 0 {
			f = pill
		}
		ops = append(ops, PumpOp{Fluid: f, Volume: 0.2})
	}
	p := params(ops...)
	p.MaxPoints = 10
	res, err := Run(context.Background(), p, deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Snapshots) != 11 {
		t.Fatalf("expected 11 snapshots for 50 operations, got %d", len(res.Snapshots))
	}
	last := res.Snapshots[len(res.Snapshots)-1]
	if math.Abs(last.PumpedVolume-10) > 1e-9 || last.PumpingFluid != "mud" {
		t.Errorf("last snapshot pumped %.6f of %q", last.PumpedVolume, last.PumpingFluid)
	}
}

func TestSmallTailJoinsLastIncrement(t *testing.T) {
	p := params(PumpOp{Fluid: mud, Volume: 10.3})
	p.MaxPoints = 100
	p.MinIncrement = 1
	res, err := Run(context.Background(), p, deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Snapshots) != 11 {
		t.Fatalf("expected 11 snapshots, got %d", len(res.Snapshots))
	}
	n := len(res.Snapshots)
	if step := res.Snapshots[n-1].PumpedVolume - res.Snapshots[n-2].PumpedVolume; math.Abs(step-1.3) > 1e-9 {
		t.Errorf("last increment %.6f, want 1.3", step)
	}
}
