// Package project turns loaded configuration into the values the
// simulation loops consume: the project snapshot, the well geometry and
// sampler, tuned collaborators and run parameters.
package project

import (
	"fmt"

	"github.com/chrissnell/wellsim/internal/circulation"
	"github.com/chrissnell/wellsim/internal/floatvalve"
	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/geometry"
	"github.com/chrissnell/wellsim/internal/hydraulics"
	"github.com/chrissnell/wellsim/internal/pressure"
	"github.com/chrissnell/wellsim/internal/stack"
	"github.com/chrissnell/wellsim/internal/trip"
	"github.com/chrissnell/wellsim/internal/types"
	"github.com/chrissnell/wellsim/pkg/config"
	"go.uber.org/zap"
)

// Fluid converts a fluid library entry.
func Fluid(f config.FluidData) (fluid.Fluid, error) {
	out := fluid.Fluid{
		Name:    f.Name,
		Density: f.Density,
		Rheology: fluid.Rheology{
			PlasticViscosity: f.PlasticViscosity,
			YieldPoint:       f.YieldPoint,
			Dial600:          f.Dial600,
			Dial300:          f.Dial300,
		},
	}
	if f.Color != "" {
		c, err := fluid.ParseHexColor(f.Color)
		if err != nil {
			return fluid.Fluid{}, fmt.Errorf("fluid %q: %w", f.Name, err)
		}
		out.Color = c
		out.HasColor = true
	}
	return out, nil
}

// Library resolves fluids by name from the configuration.
type Library map[string]fluid.Fluid

// NewLibrary converts the whole fluid library.
func NewLibrary(cfg *config.ConfigData) (Library, error) {
	lib := make(Library, len(cfg.Fluids))
	for _, fd := range cfg.Fluids {
		f, err := Fluid(fd)
		if err != nil {
			return nil, err
		}
		lib[fd.Name] = f
	}
	return lib, nil
}

// Get returns the named fluid.
func (l Library) Get(name string) (fluid.Fluid, error) {
	f, ok := l[name]
	if !ok {
		return fluid.Fluid{}, fmt.Errorf("unknown fluid %q", name)
	}
	return f, nil
}

func (l Library) layers(in []config.LayerData) ([]fluid.Segment, error) {
	out := make([]fluid.Segment, 0, len(in))
	for _, layer := range in {
		f, err := l.Get(layer.Fluid)
		if err != nil {
			return nil, err
		}
		out = append(out, fluid.Segment{Fluid: f, Top: layer.Top, Bottom: layer.Bottom})
	}
	return out, nil
}

// FromConfig takes the project snapshot described by cfg.
func FromConfig(cfg *config.ConfigData) (types.ProjectSnapshot, error) {
	lib, err := NewLibrary(cfg)
	if err != nil {
		return types.ProjectSnapshot{}, err
	}
	snap := types.ProjectSnapshot{
		Name:       cfg.Project.Name,
		BitMD:      cfg.Project.BitMD,
		TotalDepth: cfg.Well.TotalDepth,
	}
	if snap.String, err = lib.layers(cfg.Project.String); err != nil {
		return types.ProjectSnapshot{}, fmt.Errorf("project string: %w", err)
	}
	if snap.Annulus, err = lib.layers(cfg.Project.Annulus); err != nil {
		return types.ProjectSnapshot{}, fmt.Errorf("project annulus: %w", err)
	}
	if snap.Pocket, err = lib.layers(cfg.Project.Pocket); err != nil {
		return types.ProjectSnapshot{}, fmt.Errorf("project pocket: %w", err)
	}
	return snap, nil
}

// Well builds the geometry model.
func Well(cfg *config.ConfigData) (*geometry.Well, error) {
	w := &geometry.Well{TotalDepth: cfg.Well.TotalDepth}
	for _, h := range cfg.Well.Hole {
		w.Hole = append(w.Hole, geometry.HoleSection{Top: h.Top, Bottom: h.Bottom, Diameter: h.Diameter})
	}
	for _, c := range cfg.Well.String {
		w.String = append(w.String, geometry.StringComponent{Name: c.Name, Length: c.Length, OD: c.OD, ID: c.ID})
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("well geometry: %w", err)
	}
	return w, nil
}

// Sampler builds the TVD sampler; a well without survey stations is vertical.
func Sampler(cfg *config.ConfigData) (geometry.DepthSampler, error) {
	if len(cfg.Well.Survey) == 0 {
		return geometry.Vertical{}, nil
	}
	stations := make([]geometry.Station, len(cfg.Well.Survey))
	for i, s := range cfg.Well.Survey {
		stations[i] = geometry.Station{MD: s.MD, TVD: s.TVD}
	}
	return geometry.NewSurvey(stations)
}

// Tolerances converts the configured tolerances.
func Tolerances(cfg *config.ConfigData) stack.Tolerances {
	return stack.Tolerances{
		Length:  cfg.Tolerances.Length,
		Volume:  cfg.Tolerances.Volume,
		Density: cfg.Tolerances.Density,
	}
}

// Environment holds everything a run needs besides its parameters.
type Environment struct {
	Snapshot   types.ProjectSnapshot
	Fluids     Library
	Well       *geometry.Well
	Calc       pressure.Calculator
	Equalizer  *floatvalve.Equalizer
	Hydraulics *hydraulics.Bingham
	Tolerances stack.Tolerances
	Logger     *zap.SugaredLogger
}

// Load builds an Environment from configuration.
func Load(cfg *config.ConfigData, logger *zap.SugaredLogger) (*Environment, error) {
	snap, err := FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	lib, err := NewLibrary(cfg)
	if err != nil {
		return nil, err
	}
	well, err := Well(cfg)
	if err != nil {
		return nil, err
	}
	sampler, err := Sampler(cfg)
	if err != nil {
		return nil, err
	}

	calc := pressure.New(sampler, 0)
	tol := Tolerances(cfg)
	eq := floatvalve.NewEqualizer(calc, logger)
	eq.ParcelVolume = cfg.Equalizer.ParcelVolume
	eq.MaxIterations = cfg.Equalizer.MaxIterations
	eq.Crack = cfg.Equalizer.Crack
	eq.Air = fluid.Air(cfg.Equalizer.AirDensity)
	eq.Tolerances = tol

	return &Environment{
		Snapshot:   snap,
		Fluids:     lib,
		Well:       well,
		Calc:       calc,
		Equalizer:  eq,
		Hydraulics: hydraulics.NewBingham(),
		Tolerances: tol,
		Logger:     logger,
	}, nil
}

// TripDeps wires the environment into trip collaborators.
func (e *Environment) TripDeps(progress types.ProgressFunc) trip.Deps {
	return trip.Deps{
		Geometry:   e.Well,
		Calc:       e.Calc,
		Equalizer:  e.Equalizer,
		SwabSurge:  e.Hydraulics,
		APL:        e.Hydraulics,
		Tolerances: e.Tolerances,
		Logger:     e.Logger,
		Progress:   progress,
	}
}

// CirculationDeps wires the environment into circulation collaborators.
func (e *Environment) CirculationDeps(progress types.ProgressFunc) circulation.Deps {
	return circulation.Deps{
		Geometry:   e.Well,
		Calc:       e.Calc,
		Equalizer:  e.Equalizer,
		APL:        e.Hydraulics,
		Tolerances: e.Tolerances,
		Logger:     e.Logger,
		Progress:   progress,
	}
}

// TripParams converts the trip section.
func (e *Environment) TripParams(t config.TripData) (trip.Params, error) {
	p := trip.DefaultParams()
	p.Project = e.Snapshot.Clone()
	p.Start = t.Start
	p.End = t.End
	p.RecordInterval = t.RecordInterval
	p.CoarseStep = t.CoarseStep
	p.FineStep = t.FineStep
	p.CoarseMargin = t.CoarseMargin
	p.TargetESD = t.TargetESD
	p.BackfillLimit = t.BackfillLimit
	p.TripSpeed = t.TripSpeed
	p.PumpRate = t.PumpRate
	p.InitialSABP = t.InitialSABP
	p.HoldBackPressure = t.HoldBackPressure
	p.ObservedPitGain = t.ObservedPitGain
	if t.ProgressEvery > 0 {
		p.ProgressEvery = t.ProgressEvery
	}

	var err error
	if p.EqualizerMode, err = floatvalve.ParseMode(t.EqualizerMode); err != nil {
		return trip.Params{}, fmt.Errorf("%w: %v", trip.ErrInvalidParams, err)
	}
	if t.BackfillFluid != "" {
		if p.Backfill, err = e.Fluids.Get(t.BackfillFluid); err != nil {
			return trip.Params{}, fmt.Errorf("%w: backfill: %v", trip.ErrInvalidParams, err)
		}
	}
	if t.BaseFluid != "" {
		if p.BaseFluid, err = e.Fluids.Get(t.BaseFluid); err != nil {
			return trip.Params{}, fmt.Errorf("%w: base fluid: %v", trip.ErrInvalidParams, err)
		}
	}
	return p, nil
}

// CirculationParams converts the circulation section.
func (e *Environment) CirculationParams(c config.CirculationData) (circulation.Params, error) {
	p := circulation.DefaultParams()
	p.Project = e.Snapshot.Clone()
	p.ControlMD = c.ControlMD
	p.TargetESD = c.TargetESD
	p.PumpRate = c.PumpRate
	p.LimitPumpRate = c.LimitPumpRate
	p.MinPumpRate = c.MinPumpRate
	if c.BisectionIterations > 0 {
		p.BisectionIterations = c.BisectionIterations
	}
	if c.MaxPoints > 0 {
		p.MaxPoints = c.MaxPoints
	}
	if c.MinIncrement > 0 {
		p.MinIncrement = c.MinIncrement
	}
	for i, op := range c.Schedule {
		f, err := e.Fluids.Get(op.Fluid)
		if err != nil {
			return circulation.Params{}, fmt.Errorf("%w: schedule entry %d: %v", circulation.ErrInvalidParams, i, err)
		}
		p.Schedule = append(p.Schedule, circulation.PumpOp{Fluid: f, Volume: op.Volume})
	}
	return p, nil
}
