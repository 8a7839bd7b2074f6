package trip

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/chrissnell/wellsim/internal/floatvalve"
	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/geometry"
	"github.com/chrissnell/wellsim/internal/hydraulics"
	"github.com/chrissnell/wellsim/internal/pressure"
	"github.com/chrissnell/wellsim/internal/types"
	"go.uber.org/zap"
)

var (
	mud      = fluid.Fluid{Name: "mud", Density: 1200}
	kill     = fluid.Fluid{Name: "kill", Density: 1250}
	slugPill = fluid.Fluid{Name: "slug", Density: 1500}
)

func testWell() *geometry.Well {
	return &geometry.Well{
		TotalDepth: 1000,
		Hole:       []geometry.HoleSection{{Top: 0, Bottom: 1000, Diameter: 0.2159}},
		String:     []geometry.StringComponent{{Name: "dp", OD: 0.127, ID: 0.1086}},
	}
}

func odArea() float64  { return math.Pi / 4 * 0.127 * 0.127 }
func annArea() float64 { return math.Pi / 4 * (0.2159*0.2159 - 0.127*0.127) }

func uniformProject(bit float64) types.ProjectSnapshot {
	return types.ProjectSnapshot{
		BitMD:      bit,
		TotalDepth: 1000,
		String:     []fluid.Segment{{Fluid: mud, Top: 0, Bottom: bit}},
		Annulus:    []fluid.Segment{{Fluid: mud, Top: 0, Bottom: bit}},
	}
}

func tripOut(start, end float64) Params {
	p := DefaultParams()
	p.Project = uniformProject(start)
	p.Start = start
	p.End = end
	p.TargetESD = 1200
	p.Backfill = kill
	return p
}

func deps() Deps {
	return Deps{
		Geometry: testWell(),
		Calc:     pressure.New(nil, 0),
		Logger:   zap.NewNop().Sugar(),
	}
}

func TestTripOutClosedFloat(t *testing.T) {
	res, err := Run(context.Background(), tripOut(1000, 900), deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Converged || res.Status != types.StatusCompleted {
		t.Errorf("unexpected status %s converged=%v %+v", res.Status, res.Converged, res.Diagnostics)
	}

	if len(res.Snapshots) != 11 {
		t.Fatalf("expected 11 snapshots, got %d", len(res.Snapshots))
	}
	for i, s := range res.Snapshots {
		if want := 1000 - 10*float64(i); s.BitMD != want {
			t.Errorf("snapshot %d at %v, want %v", i, s.BitMD, want)
		}
		if s.FloatState != floatvalve.Closed.String() {
			t.Errorf("snapshot %d float %s, want closed", i, s.FloatState)
		}
	}

	last := res.Snapshots[len(res.Snapshots)-1]
	odVol := odArea() * 100
	if math.Abs(last.CumulativeBackfill-odVol) > 1e-6 {
		t.Errorf("backfill %v, want OD volume %v", last.CumulativeBackfill, odVol)
	}
	if last.CumulativePitGain > 1e-9 {
		t.Errorf("unexpected pit gain %v", last.CumulativePitGain)
	}

	// The annulus received exactly the OD volume of backfill at surface.
	top := last.Annulus[0]
	if top.Name != "kill" {
		t.Fatalf("top of annulus = %+v, want backfill", top)
	}
	if got := top.Length() * annArea(); math.Abs(got-odVol) > 1e-6 {
		t.Errorf("backfill in annulus %v m³, want %v", got, odVol)
	}

	// The carved hole holds the donated mud from the new bit to the old one.
	if len(last.Pocket) != 1 {
		t.Fatalf("pocket = %+v, want one segment", last.Pocket)
	}
	pk := last.Pocket[0]
	if pk.Top != 900 || pk.Bottom != 1000 || math.Abs(pk.Density-1200) > 1e-9 {
		t.Errorf("pocket segment = %+v, want mud 900-1000", pk)
	}

	// The string column rode up with the pipe.
	if s := last.String; len(s) != 1 || s[0].Name != "mud" || s[0].Bottom != 900 {
		t.Errorf("string = %+v", s)
	}

	if res.Final == nil || res.Final.BitMD != 900 {
		t.Errorf("final state = %+v", res.Final)
	}
	if math.Abs(last.NetTankDelta+odVol) > 1e-6 {
		t.Errorf("net tank delta %v, want %v", last.NetTankDelta, -odVol)
	}
}

func TestTripOutToSurface(t *testing.T) {
	res, err := Run(context.Background(), tripOut(1000, 0), deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := res.Snapshots[len(res.Snapshots)-1]
	if last.BitMD != 0 {
		t.Fatalf("last snapshot at %v, want surface", last.BitMD)
	}

	odVol := odArea() * 1000
	if math.Abs(last.CumulativeBackfill-odVol) > 1e-6 {
		t.Errorf("backfill %v, want OD volume %v", last.CumulativeBackfill, odVol)
	}
	if last.CumulativePitGain > 1e-9 {
		t.Errorf("unexpected pit gain %v", last.CumulativePitGain)
	}
	if math.Abs(last.NetTankDelta+odVol) > 1e-6 {
		t.Errorf("net tank delta %v, want %v", last.NetTankDelta, -odVol)
	}
	if len(last.Annulus) != 0 || len(last.String) != 0 {
		t.Errorf("conduits not empty at surface: %+v %+v", last.String, last.Annulus)
	}

	// The open hole holds the mud and every m³ of backfill.
	holeArea := math.Pi / 4 * 0.2159 * 0.2159
	var killVol float64
	for _, seg := range last.Pocket {
		killVol += seg.Length() * holeArea * (seg.Density - 1200) / (1250 - 1200)
	}
	if math.Abs(killVol-odVol) > 1e-6 {
		t.Errorf("backfill in open hole %v m³, want %v", killVol, odVol)
	}
}

func TestTripInDisplacesPocket(t *testing.T) {
	p := DefaultParams()
	p.Project = uniformProject(900)
	p.Project.Pocket = []fluid.Segment{{Fluid: slugPill, Top: 900, Bottom: 1000}}
	p.Start = 900
	p.End = 1000
	p.TargetESD = 1200

	res, err := Run(context.Background(), p, deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	last := res.Snapshots[len(res.Snapshots)-1]
	if last.Phase != types.PhaseTripIn || last.BitMD != 1000 {
		t.Fatalf("final snapshot %s at %v", last.Phase, last.BitMD)
	}
	if len(last.Pocket) != 0 {
		t.Errorf("pocket should be consumed: %+v", last.Pocket)
	}

	ann := last.Annulus
	bottom := ann[len(ann)-1]
	if bottom.Name != "slug" {
		t.Fatalf("annulus bottom = %+v, want displaced slug", bottom)
	}
	holeVol := (annArea() + odArea()) * 100
	if got := bottom.Length() * annArea(); math.Abs(got-holeVol) > 1e-6 {
		t.Errorf("slug in annulus %v m³, want %v", got, holeVol)
	}
	if math.Abs(last.CumulativePitGain-odArea()*100) > 1e-6 {
		t.Errorf("pit gain %v, want OD displacement %v", last.CumulativePitGain, odArea()*100)
	}
	if last.CumulativeBackfill != 0 {
		t.Errorf("trip in should not backfill, got %v", last.CumulativeBackfill)
	}
}

func TestTripInClampedToTotalDepth(t *testing.T) {
	p := DefaultParams()
	p.Project = uniformProject(900)
	p.Start = 900
	p.End = 1500
	p.TargetESD = 1200

	res, err := Run(context.Background(), p, deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := res.Snapshots[len(res.Snapshots)-1].BitMD; got != 1000 {
		t.Errorf("final bit %v, want TD 1000", got)
	}
	if len(res.Diagnostics) == 0 {
		t.Error("expected a note about the clamped end depth")
	}
}

func TestTripOutWithSlugEqualizes(t *testing.T) {
	p := tripOut(1000, 950)
	p.Project.String = []fluid.Segment{
		{Fluid: slugPill, Top: 0, Bottom: 100},
		{Fluid: mud, Top: 100, Bottom: 1000},
	}

	res, err := Run(context.Background(), p, deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	first := res.Snapshots[0]
	if first.CumulativeSlug <= 0 {
		t.Errorf("expected slug drained before the trip, got %v", first.CumulativeSlug)
	}
	if first.FloatState != "CLOSED" {
		t.Errorf("float should be closed after equalizing, got %s", first.FloatState)
	}
	if first.String[0].Name != "air" {
		t.Errorf("string top should be air: %+v", first.String)
	}
	if !res.Converged {
		t.Errorf("run did not converge: %+v", res.Diagnostics)
	}
}

func TestTripIterationCapReported(t *testing.T) {
	p := tripOut(1000, 990)
	p.Project.String = []fluid.Segment{
		{Fluid: slugPill, Top: 0, Bottom: 200},
		{Fluid: mud, Top: 200, Bottom: 1000},
	}
	d := deps()
	d.Equalizer = floatvalve.NewEqualizer(d.Calc, d.Logger)
	d.Equalizer.MaxIterations = 1

	res, err := Run(context.Background(), p, d)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Converged {
		t.Error("expected the run to be flagged as not converged")
	}
	found := false
	for _, diag := range res.Diagnostics {
		if diag.Source == "equalizer" && diag.Level == types.LevelWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("no equalizer diagnostic in %+v", res.Diagnostics)
	}
}

func TestTripObservedPitGain(t *testing.T) {
	p := tripOut(1000, 990)
	p.EqualizerMode = floatvalve.Observed
	p.ObservedPitGain = 0.2

	res, err := Run(context.Background(), p, deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := res.Snapshots[0].CumulativeSlug; math.Abs(got-0.2) > 1e-9 {
		t.Errorf("observed drain %v, want 0.2", got)
	}
}

func TestHoldBackPressure(t *testing.T) {
	p := tripOut(1000, 950)
	p.TargetESD = 1300
	p.HoldBackPressure = true

	res, err := Run(context.Background(), p, deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := 100 * pressure.StandardGravity
	first := res.Snapshots[0]
	if math.Abs(first.RequiredSABP-want) > 1e-6 {
		t.Errorf("required SABP %v, want %v", first.RequiredSABP, want)
	}
	if first.ActualSABP != 0 {
		t.Errorf("initial applied SABP %v, want 0", first.ActualSABP)
	}
	second := res.Snapshots[1]
	if second.ActualSABP < want*0.9 {
		t.Errorf("applied SABP %v did not follow the requirement %v", second.ActualSABP, want)
	}
	if second.EffectiveDensityAtTD < 1290 {
		t.Errorf("effective density %v, want about 1300", second.EffectiveDensityAtTD)
	}
}

type fixedSwab struct {
	v   float64
	err error
}

func (f fixedSwab) SwabSurge([]fluid.Segment, float64, geometry.Provider, float64) (float64, error) {
	return f.v, f.err
}

func TestSwabAddsToRequirement(t *testing.T) {
	p := tripOut(1000, 980)
	p.TargetESD = 1250
	p.TripSpeed = 0.5

	still, err := Run(context.Background(), p, deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	d := deps()
	d.SwabSurge = fixedSwab{v: 25}
	res, err := Run(context.Background(), p, d)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := res.Snapshots[1]
	if s.SwabSurge != -25 {
		t.Errorf("swab contribution %v, want -25", s.SwabSurge)
	}
	if diff := s.RequiredSABP - still.Snapshots[1].RequiredSABP; math.Abs(diff-25) > 1e-6 {
		t.Errorf("swab raised the required SABP by %v, want 25", diff)
	}

	d.SwabSurge = fixedSwab{err: hydraulics.ErrMissingRheology}
	res, err = Run(context.Background(), p, d)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Snapshots[1].SwabSurge != 0 {
		t.Errorf("failed estimator should contribute zero")
	}
	if !res.Converged || len(res.Diagnostics) != 1 {
		t.Errorf("estimator failure should be a single note, got %+v", res.Diagnostics)
	}
}

func TestLimitedBackfill(t *testing.T) {
	p := tripOut(1000, 900)
	p.BackfillLimit = 0.5
	p.BaseFluid = mud

	res, err := Run(context.Background(), p, deps())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	ann := res.Snapshots[len(res.Snapshots)-1].Annulus
	if len(ann) != 3 || ann[0].Name != "mud" || ann[1].Name != "kill" {
		t.Fatalf("annulus = %+v, want base mud over the limited kill fluid", ann)
	}
	if got := ann[1].Length() * annArea(); math.Abs(got-0.5) > 1e-6 {
		t.Errorf("kill fluid volume %v, want 0.5", got)
	}
}

func TestProgressAndCancellation(t *testing.T) {
	var calls []types.Progress
	d := deps()
	d.Progress = func(pr types.Progress) { calls = append(calls, pr) }

	if _, err := Run(context.Background(), tripOut(1000, 800), d); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(calls) == 0 || calls[len(calls)-1].Fraction != 1 {
		t.Errorf("progress calls = %+v", calls)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Run(ctx, tripOut(1000, 800), deps())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if res == nil || len(res.Snapshots) != 1 || res.Status != types.StatusCancelled {
		t.Errorf("expected partial result with the initial snapshot, got %+v", res)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"negative end", func(p *Params) { p.End = -1 }},
		{"zero fine step", func(p *Params) { p.FineStep = 0 }},
		{"fine above coarse", func(p *Params) { p.FineStep = 10 }},
		{"zero interval", func(p *Params) { p.RecordInterval = 0 }},
		{"no backfill density", func(p *Params) { p.Backfill = fluid.Fluid{} }},
		{"limit without base", func(p *Params) { p.BackfillLimit = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tripOut(1000, 900)
			tt.mutate(&p)
			if _, err := Run(context.Background(), p, deps()); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("expected ErrInvalidParams, got %v", err)
			}
		})
	}
}

func TestBackfillSource(t *testing.T) {
	b := newBackfillSource(Params{Backfill: kill, BackfillLimit: 1, BaseFluid: mud})
	first := b.take(0.6)
	second := b.take(0.6)
	if len(first) != 1 || first[0].Name != "kill" {
		t.Errorf("first take = %+v", first)
	}
	if len(second) != 2 || second[0].Name != "kill" || math.Abs(second[0].Volume-0.4) > 1e-12 || second[1].Name != "mud" {
		t.Errorf("second take = %+v", second)
	}
}
