package project

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/chrissnell/wellsim/internal/circulation"
	"github.com/chrissnell/wellsim/internal/floatvalve"
	"github.com/chrissnell/wellsim/internal/geometry"
	"github.com/chrissnell/wellsim/internal/trip"
	"github.com/chrissnell/wellsim/internal/types"
	"github.com/chrissnell/wellsim/pkg/config"
	"go.uber.org/zap"
)

func testConfig() *config.ConfigData {
	cfg := &config.ConfigData{
		Well: config.WellData{
			TotalDepth: 1000,
			Hole:       []config.HoleData{{Top: 0, Bottom: 1000, Diameter: 0.2159}},
			String:     []config.ComponentData{{Name: "dp", OD: 0.127, ID: 0.1086}},
		},
		Fluids: []config.FluidData{
			{Name: "mud", Density: 1200, PlasticViscosity: 20, YieldPoint: 8},
			{Name: "kill", Density: 1250, Color: "#ff000080", Dial600: 50, Dial300: 30},
		},
		Project: config.ProjectData{
			Name:    "test",
			BitMD:   1000,
			String:  []config.LayerData{{Fluid: "mud", Top: 0, Bottom: 1000}},
			Annulus: []config.LayerData{{Fluid: "mud", Top: 0, Bottom: 1000}},
		},
		Trip: config.TripData{
			Start:         1000,
			End:           900,
			TargetESD:     1200,
			BackfillFluid: "kill",
			EqualizerMode: "calculated",
		},
		Circulation: config.CirculationData{
			Schedule:  []config.PumpOpData{{Fluid: "kill", Volume: 1}},
			TargetESD: 1250,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestFluidConversion(t *testing.T) {
	f, err := Fluid(config.FluidData{Name: "kill", Density: 1250, Color: "#ff000080", Dial600: 50, Dial300: 30})
	if err != nil {
		t.Fatalf("Fluid: %v", err)
	}
	if !f.HasColor || f.Color.R != 1 || math.Abs(f.Color.A-128.0/255) > 1e-9 {
		t.Errorf("color not parsed: %+v", f.Color)
	}
	pv, yp, ok := f.Rheology.Bingham()
	if !ok || math.Abs(pv-0.020) > 1e-12 || math.Abs(yp-10*0.4788026) > 1e-9 {
		t.Errorf("rheology pv=%v yp=%v ok=%v", pv, yp, ok)
	}

	if _, err := Fluid(config.FluidData{Name: "bad", Density: 1000, Color: "red"}); err == nil {
		t.Error("expected an error for a malformed color")
	}
}

func TestFromConfig(t *testing.T) {
	snap, err := FromConfig(testConfig())
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if snap.BitMD != 1000 || snap.TotalDepth != 1000 || snap.Name != "test" {
		t.Errorf("snapshot header %+v", snap)
	}
	if len(snap.String) != 1 || snap.String[0].Density != 1200 || snap.Annulus[0].Bottom != 1000 {
		t.Errorf("layers not converted: %+v %+v", snap.String, snap.Annulus)
	}

	cfg := testConfig()
	cfg.Project.Annulus[0].Fluid = "brine"
	if _, err := FromConfig(cfg); err == nil {
		t.Error("expected an error for an unknown layer fluid")
	}
}

func TestSampler(t *testing.T) {
	cfg := testConfig()
	s, err := Sampler(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(geometry.Vertical); !ok {
		t.Errorf("expected a vertical sampler, got %T", s)
	}

	cfg.Well.Survey = []config.StationData{{MD: 0, TVD: 0}, {MD: 1000, TVD: 800}}
	s, err = Sampler(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.TVD(500); math.Abs(got-400) > 1e-9 {
		t.Errorf("TVD(500) = %v, want 400", got)
	}
}

func TestLoadTunesEqualizer(t *testing.T) {
	cfg := testConfig()
	cfg.Equalizer.Crack = 2
	cfg.Equalizer.MaxIterations = 10

	env, err := Load(cfg, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if env.Equalizer.Crack != 2 || env.Equalizer.MaxIterations != 10 {
		t.Errorf("equalizer not tuned: %+v", env.Equalizer)
	}
	if env.Tolerances.Density != config.DefaultDensityTolerance {
		t.Errorf("tolerances %+v", env.Tolerances)
	}

	cfg.Well.String[0].ID = 0.2
	if _, err := Load(cfg, zap.NewNop().Sugar()); err == nil {
		t.Error("expected a geometry error for ID larger than OD")
	}
}

func TestParamsAndRuns(t *testing.T) {
	env, err := Load(testConfig(), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tp, err := env.TripParams(testConfig().Trip)
	if err != nil {
		t.Fatalf("TripParams: %v", err)
	}
	if tp.Backfill.Name != "kill" || tp.EqualizerMode != floatvalve.Calculated || tp.FineStep != config.DefaultFineStep {
		t.Errorf("trip params %+v", tp)
	}
	res, err := trip.Run(context.Background(), tp, env.TripDeps(nil))
	if err != nil {
		t.Fatalf("trip.Run: %v", err)
	}
	if res.Status != types.StatusCompleted || len(res.Snapshots) != 11 {
		t.Errorf("trip status %s with %d snapshots", res.Status, len(res.Snapshots))
	}

	cp, err := env.CirculationParams(testConfig().Circulation)
	if err != nil {
		t.Fatalf("CirculationParams: %v", err)
	}
	cp.Seed = res.Final
	cres, err := circulation.Run(context.Background(), cp, env.CirculationDeps(nil))
	if err != nil {
		t.Fatalf("circulation.Run: %v", err)
	}
	if last := cres.Snapshots[len(cres.Snapshots)-1]; last.BitMD != 900 {
		t.Errorf("chained circulation bit %.1f, want 900", last.BitMD)
	}

	bad := testConfig().Trip
	bad.EqualizerMode = "guess"
	if _, err := env.TripParams(bad); !errors.Is(err, trip.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}

func TestExampleConfigLoads(t *testing.T) {
	if _, err := os.Stat("../../wellsim.example.yaml"); err != nil {
		t.Skip("example config not present")
	}
	cfg, err := config.NewYAMLProvider("../../wellsim.example.yaml").LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if _, err := Load(cfg, zap.NewNop().Sugar()); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
