package trip

import (
	"errors"
	"fmt"
	"math"

	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/floatvalve"
	"github.com/chrissnell/wellsim/internal/types"
)

// ErrInvalidParams wraps every parameter validation failure.
var ErrInvalidParams = errors.New("invalid trip parameters")

// Params describes one trip. End shallower than Start is a trip out.
type Params struct {
	Project types.ProjectSnapshot
	Seed    *types.SeedState

	Start float64 // MD, m
	End   float64 // MD, m

	// RecordInterval is the distance between snapshots.
	RecordInterval float64
	// CoarseStep is used while the float is closed with more than
	// CoarseMargin kPa to spare, FineStep otherwise.
	CoarseStep   float64
	FineStep     float64
	CoarseMargin float64

	// TargetESD at total depth, kg/m³.
	TargetESD float64

	// Backfill goes in from surface while tripping out. When BackfillLimit is
	// positive only that much Backfill is used and BaseFluid follows.
	Backfill      fluid.Fluid
	BackfillLimit float64
	BaseFluid     fluid.Fluid

	// TripSpeed in m/s feeds the swab/surge estimator; zero disables it.
	TripSpeed float64
	// PumpRate in m³/min turns the trip into a ream and adds APL.
	PumpRate float64

	// InitialSABP is the surface back-pressure applied at the start. With
	// HoldBackPressure the applied value then follows the float-aware
	// requirement of the previous step.
	InitialSABP      float64
	HoldBackPressure bool

	EqualizerMode   floatvalve.Mode
	ObservedPitGain float64 // m³ drained at the start in observed mode

	// ProgressEvery is the distance between progress callbacks;
	// ProgressIterations also fires one every that many steps.
	ProgressEvery      float64
	ProgressIterations int
}

// Defaults returned by DefaultParams.
const (
	DefaultRecordInterval     = 10.0
	DefaultCoarseStep         = 5.0
	DefaultFineStep           = 0.5
	DefaultCoarseMargin       = 50.0
	DefaultProgressEvery      = 50.0
	DefaultProgressIterations = 500
)

// DefaultParams returns params with the step and recording defaults set.
func DefaultParams() Params {
	return Params{
		RecordInterval:     DefaultRecordInterval,
		CoarseStep:         DefaultCoarseStep,
		FineStep:           DefaultFineStep,
		CoarseMargin:       DefaultCoarseMargin,
		ProgressEvery:      DefaultProgressEvery,
		ProgressIterations: DefaultProgressIterations,
	}
}

// Out reports whether the trip pulls the bit up.
func (p Params) Out() bool { return p.End < p.Start }

// Phase labels snapshots of this trip.
func (p Params) Phase() types.Phase {
	switch {
	case p.Out() && p.PumpRate > 0:
		return types.PhaseReamOut
	case p.Out():
		return types.PhaseTripOut
	case p.PumpRate > 0:
		return types.PhaseReamIn
	default:
		return types.PhaseTripIn
	}
}

// Validate checks the params for values the loop cannot work with.
func (p Params) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
	}
	for name, v := range map[string]float64{"start": p.Start, "end": p.End} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return bad("%s depth %v", name, v)
		}
	}
	if p.RecordInterval <= 0 {
		return bad("record interval must be positive")
	}
	if p.FineStep <= 0 || p.CoarseStep <= 0 {
		return bad("step sizes must be positive")
	}
	if p.FineStep > p.CoarseStep {
		return bad("fine step %.3f exceeds coarse step %.3f", p.FineStep, p.CoarseStep)
	}
	if p.TargetESD < 0 {
		return bad("negative target ESD")
	}
	if p.BackfillLimit < 0 {
		return bad("negative backfill limit")
	}
	if p.Out() && p.Backfill.Density <= 0 {
		return bad("backfill fluid needs a density")
	}
	if p.BackfillLimit > 0 && p.BaseFluid.Density <= 0 {
		return bad("base fluid needs a density when the backfill is limited")
	}
	if p.TripSpeed < 0 || p.PumpRate < 0 {
		return bad("negative trip speed or pump rate")
	}
	if p.EqualizerMode == floatvalve.Observed && p.ObservedPitGain < 0 {
		return bad("negative observed pit gain")
	}
	return nil
}

// backfillSource hands out backfill in order: the limited fluid, then base.
type backfillSource struct {
	primary   fluid.Fluid
	remaining float64
	limited   bool
	base      fluid.Fluid
}

func newBackfillSource(p Params) *backfillSource {
	return &backfillSource{
		primary:   p.Backfill,
		remaining: p.BackfillLimit,
		limited:   p.BackfillLimit > 0,
		base:      p.BaseFluid,
	}
}

// take returns parcels totalling volume in the order they are pumped.
func (b *backfillSource) take(volume float64) []fluid.Parcel {
	if volume <= 0 {
		return nil
	}
	if !b.limited {
		return []fluid.Parcel{{Fluid: b.primary, Volume: volume}}
	}
	var out []fluid.Parcel
	if b.remaining > 0 {
		v := math.Min(volume, b.remaining)
		out = append(out, fluid.Parcel{Fluid: b.primary, Volume: v})
		b.remaining -= v
		volume -= v
	}
	if volume > 0 {
		out = append(out, fluid.Parcel{Fluid: b.base, Volume: volume})
	}
	return out
}
