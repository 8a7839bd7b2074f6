package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/chrissnell/wellsim/internal/project"
	"github.com/chrissnell/wellsim/internal/wellbore"
	"github.com/chrissnell/wellsim/pkg/config"
	"go.uber.org/zap"
)

func main() {
	yamlFile := flag.String("config", "", "Path to YAML configuration file")
	flag.Parse()

	if *yamlFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -config <wellsim.yaml>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("Configuration Check")
	fmt.Println("===================")
	fmt.Printf("Loading YAML configuration: %s\n", *yamlFile)

	cfg, err := config.NewYAMLProvider(*yamlFile).LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
	if err := report(os.Stdout, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

// report builds the project and prints what a run would start from.
func report(out io.Writer, cfg *config.ConfigData) error {
	env, err := project.Load(cfg, zap.NewNop().Sugar())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "✓ Configuration valid")

	snap := env.Snapshot
	td := snap.TotalDepth
	fmt.Fprintf(out, "\nWell %q: TD %.1f m MD / %.1f m TVD, %d string components\n",
		cfg.Well.Name, td, env.Calc.TVD(td), len(env.Well.String))

	state, err := wellbore.Seed(snap, nil, snap.BitMD, env.Well, env.Tolerances)
	if err != nil {
		return fmt.Errorf("seeding project %q: %w", snap.Name, err)
	}
	pos := env.Well.At(snap.BitMD)
	fmt.Fprintf(out, "Project %q: bit at %.1f m\n", snap.Name, snap.BitMD)
	fmt.Fprintf(out, "  string capacity   %8.3f m3\n", pos.StringVolume(0, snap.BitMD))
	fmt.Fprintf(out, "  annulus capacity  %8.3f m3\n", pos.AnnulusVolume(0, snap.BitMD))
	if td > snap.BitMD {
		fmt.Fprintf(out, "  open hole below   %8.3f m3\n", pos.AnnulusVolume(snap.BitMD, td))
	}

	outside := state.OutsidePipe()
	hydro := env.Calc.Hydrostatic(outside, td)
	fmt.Fprintf(out, "  hydrostatic at TD %8.1f kPa (ESD %.1f kg/m3)\n", hydro, env.Calc.ESD(outside, td))
	if cfg.Trip.TargetESD > 0 {
		fmt.Fprintf(out, "  back-pressure for trip target %.1f kg/m3: %.1f kPa\n",
			cfg.Trip.TargetESD, env.Calc.RequiredBackPressure(cfg.Trip.TargetESD, td, hydro, 0))
	}

	names := make([]string, 0, len(env.Fluids))
	for name := range env.Fluids {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(out, "\nFluids: %d\n", len(names))
	for _, name := range names {
		f := env.Fluids[name]
		rheo := "no rheology"
		if pv, yp, ok := f.Rheology.Bingham(); ok {
			rheo = fmt.Sprintf("PV %.4f Pa.s, YP %.2f Pa", pv, yp)
		}
		fmt.Fprintf(out, "  %-12s %7.1f kg/m3  %s\n", name, f.Density, rheo)
	}

	fmt.Fprintln(out, "\nStorage:")
	switch {
	case cfg.Storage.TimescaleDB != nil && cfg.Storage.TimescaleDB.ConnectionString != "":
		fmt.Fprintln(out, "  timescaledb")
	case cfg.Storage.SQLite != nil && cfg.Storage.SQLite.Path != "":
		fmt.Fprintf(out, "  sqlite %s\n", cfg.Storage.SQLite.Path)
	default:
		fmt.Fprintln(out, "  none configured, runs kept in memory")
	}
	return nil
}
