package config

import (
	"fmt"
	"sort"
)

// Default values applied by ApplyDefaults.
const (
	DefaultLengthTolerance  = 1e-6
	DefaultVolumeTolerance  = 1e-9
	DefaultDensityTolerance = 0.1

	DefaultParcelVolume  = 0.01
	DefaultMaxIterations = 20000
	DefaultCrack         = 0.5
	DefaultAirDensity    = 1.2

	DefaultRecordInterval = 10.0
	DefaultCoarseStep     = 5.0
	DefaultFineStep       = 0.5
	DefaultCoarseMargin   = 50.0
	DefaultProgressEvery  = 50.0

	DefaultMaxPoints           = 200
	DefaultMinIncrement        = 0.01
	DefaultBisectionIterations = 40

	DefaultServerPort = 8150
)

// ApplyDefaults fills every unset tuning value.
func (c *ConfigData) ApplyDefaults() {
	t := &c.Tolerances
	if t.Length <= 0 {
		t.Length = DefaultLengthTolerance
	}
	if t.Volume <= 0 {
		t.Volume = DefaultVolumeTolerance
	}
	if t.Density <= 0 {
		t.Density = DefaultDensityTolerance
	}

	e := &c.Equalizer
	if e.ParcelVolume <= 0 {
		e.ParcelVolume = DefaultParcelVolume
	}
	if e.MaxIterations <= 0 {
		e.MaxIterations = DefaultMaxIterations
	}
	if e.Crack <= 0 {
		e.Crack = DefaultCrack
	}
	if e.AirDensity <= 0 {
		e.AirDensity = DefaultAirDensity
	}

	tr := &c.Trip
	if tr.RecordInterval <= 0 {
		tr.RecordInterval = DefaultRecordInterval
	}
	if tr.CoarseStep <= 0 {
		tr.CoarseStep = DefaultCoarseStep
	}
	if tr.FineStep <= 0 {
		tr.FineStep = DefaultFineStep
	}
	if tr.CoarseMargin <= 0 {
		tr.CoarseMargin = DefaultCoarseMargin
	}
	if tr.ProgressEvery <= 0 {
		tr.ProgressEvery = DefaultProgressEvery
	}
	if tr.EqualizerMode == "" {
		tr.EqualizerMode = "calculated"
	}

	ci := &c.Circulation
	if ci.MaxPoints <= 0 {
		ci.MaxPoints = DefaultMaxPoints
	}
	if ci.MinIncrement <= 0 {
		ci.MinIncrement = DefaultMinIncrement
	}
	if ci.BisectionIterations <= 0 {
		ci.BisectionIterations = DefaultBisectionIterations
	}
	if ci.TargetESD == 0 {
		ci.TargetESD = c.Trip.TargetESD
	}

	if c.Server != nil && c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
}

// Fluid looks up a fluid of the library by name.
func (c *ConfigData) Fluid(name string) (FluidData, bool) {
	for _, f := range c.Fluids {
		if f.Name == name {
			return f, true
		}
	}
	return FluidData{}, false
}

// Validate reports the first structural problem in the configuration.
// Numerical checks on run parameters are left to the simulation packages.
func (c *ConfigData) Validate() error {
	w := c.Well
	if w.TotalDepth <= 0 {
		return fmt.Errorf("well: total-depth must be positive")
	}
	if len(w.Hole) == 0 {
		return fmt.Errorf("well: at least one hole section is required")
	}
	if len(w.String) == 0 {
		return fmt.Errorf("well: at least one string component is required")
	}
	for i := 1; i < len(w.Survey); i++ {
		if w.Survey[i].MD <= w.Survey[i-1].MD {
			return fmt.Errorf("well: survey stations must have increasing md (station %d)", i)
		}
	}

	seen := make(map[string]bool, len(c.Fluids))
	for _, f := range c.Fluids {
		if f.Name == "" {
			return fmt.Errorf("fluids: fluid without a name")
		}
		if seen[f.Name] {
			return fmt.Errorf("fluids: duplicate fluid %q", f.Name)
		}
		if f.Density <= 0 {
			return fmt.Errorf("fluids: fluid %q needs a positive density", f.Name)
		}
		seen[f.Name] = true
	}

	p := c.Project
	if p.BitMD < 0 || p.BitMD > w.TotalDepth {
		return fmt.Errorf("project: bit-md %.2f outside [0, %.2f]", p.BitMD, w.TotalDepth)
	}
	for conduit, layers := range map[string][]LayerData{"string": p.String, "annulus": p.Annulus, "pocket": p.Pocket} {
		if err := checkLayers(layers, seen); err != nil {
			return fmt.Errorf("project %s: %w", conduit, err)
		}
	}
	if p.BitMD > 0 && (len(p.String) == 0 || len(p.Annulus) == 0) {
		return fmt.Errorf("project: string and annulus layers are required")
	}

	for _, name := range []string{c.Trip.BackfillFluid, c.Trip.BaseFluid} {
		if name != "" && !seen[name] {
			return fmt.Errorf("trip: unknown fluid %q", name)
		}
	}
	for i, op := range c.Circulation.Schedule {
		if !seen[op.Fluid] {
			return fmt.Errorf("circulation: schedule entry %d uses unknown fluid %q", i, op.Fluid)
		}
	}

	if c.Storage.SQLite != nil && c.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage: sqlite path is required")
	}
	if c.Storage.TimescaleDB != nil && c.Storage.TimescaleDB.ConnectionString == "" {
		return fmt.Errorf("storage: timescaledb connection-string is required")
	}
	return nil
}

func checkLayers(layers []LayerData, fluids map[string]bool) error {
	sorted := make([]LayerData, len(layers))
	copy(sorted, layers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Top < sorted[j].Top })
	for i, l := range sorted {
		if !fluids[l.Fluid] {
			return fmt.Errorf("unknown fluid %q", l.Fluid)
		}
		if l.Bottom <= l.Top {
			return fmt.Errorf("layer %q has bottom %.2f above top %.2f", l.Fluid, l.Bottom, l.Top)
		}
		if i > 0 && l.Top < sorted[i-1].Bottom {
			return fmt.Errorf("layers %q and %q overlap", sorted[i-1].Fluid, l.Fluid)
		}
	}
	return nil
}
