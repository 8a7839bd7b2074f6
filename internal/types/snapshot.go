// Package types holds the data that flows into and out of simulation runs.
package types

import (
	"github.com/chrissnell/wellsim/internal/fluid"
)

// Phase labels what the simulation was doing when a snapshot was taken.
type Phase string

const (
	PhaseTripOut   Phase = "trip-out"
	PhaseTripIn    Phase = "trip-in"
	PhaseReamOut   Phase = "ream-out"
	PhaseReamIn    Phase = "ream-in"
	PhaseCirculate Phase = "circulate"
)

// StepSnapshot is one recorded point of a run. Snapshots are built once and
// never modified; segment slices are private copies.
type StepSnapshot struct {
	Phase Phase `json:"phase"`
	Index int   `json:"index"`

	BitMD  float64 `json:"bit_md"`
	BitTVD float64 `json:"bit_tvd"`

	String  []fluid.Segment `json:"string"`
	Annulus []fluid.Segment `json:"annulus"`
	Pocket  []fluid.Segment `json:"pocket"`

	StringHydrostatic  float64 `json:"string_hydrostatic_kpa"`
	AnnulusHydrostatic float64 `json:"annulus_hydrostatic_kpa"`

	RequiredSABP   float64 `json:"required_sabp_kpa"`
	FloatAwareSABP float64 `json:"float_aware_sabp_kpa"`
	ActualSABP     float64 `json:"actual_sabp_kpa"`

	ESDAtTD              float64 `json:"esd_td"`
	ESDAtBit             float64 `json:"esd_bit"`
	EffectiveDensityAtTD float64 `json:"effective_density_td"`

	FloatState  string  `json:"float_state"`
	FloatMargin float64 `json:"float_margin_kpa"`

	// Signed dynamic contributions to bottom-hole pressure, averaged over the
	// internal steps since the previous snapshot. Swab is negative.
	SwabSurge float64 `json:"swab_surge_kpa"`
	APL       float64 `json:"apl_kpa"`

	StepBackfill       float64 `json:"step_backfill_m3"`
	CumulativeBackfill float64 `json:"cumulative_backfill_m3"`
	StepSlug           float64 `json:"step_slug_m3"`
	CumulativeSlug     float64 `json:"cumulative_slug_m3"`
	StepPitGain        float64 `json:"step_pit_gain_m3"`
	CumulativePitGain  float64 `json:"cumulative_pit_gain_m3"`
	NetTankDelta       float64 `json:"net_tank_delta_m3"`

	// Circulation only.
	PumpedVolume  float64 `json:"pumped_volume_m3,omitempty"`
	ControlMD     float64 `json:"control_md,omitempty"`
	ControlTVD    float64 `json:"control_tvd,omitempty"`
	ControlESD    float64 `json:"control_esd,omitempty"`
	ControlECD    float64 `json:"control_ecd,omitempty"`
	StaticSABP    float64 `json:"static_sabp_kpa,omitempty"`
	EffectiveSABP float64 `json:"effective_sabp_kpa,omitempty"`
	PumpRate      float64 `json:"pump_rate_m3_min,omitempty"`
	ReturnsVolume float64 `json:"returns_volume_m3,omitempty"`
	PumpingFluid  string  `json:"pumping_fluid,omitempty"`
	RateLimited   bool    `json:"rate_limited,omitempty"`
}

// ProjectSnapshot is a value copy of the well's current fluid layers, taken
// before a run starts.
type ProjectSnapshot struct {
	Name       string          `json:"name"`
	BitMD      float64         `json:"bit_md"`
	TotalDepth float64         `json:"total_depth"`
	String     []fluid.Segment `json:"string"`
	Annulus    []fluid.Segment `json:"annulus"`
	Pocket     []fluid.Segment `json:"pocket,omitempty"`
}

// Clone returns a deep copy.
func (p ProjectSnapshot) Clone() ProjectSnapshot {
	c := p
	c.String = cloneSegments(p.String)
	c.Annulus = cloneSegments(p.Annulus)
	c.Pocket = cloneSegments(p.Pocket)
	return c
}

// SeedState carries the layers left by one run into the next. When set on
// a run it replaces the project layers.
type SeedState struct {
	BitMD   float64         `json:"bit_md"`
	String  []fluid.Segment `json:"string"`
	Annulus []fluid.Segment `json:"annulus"`
	Pocket  []fluid.Segment `json:"pocket,omitempty"`
}

// Clone returns a deep copy.
func (s *SeedState) Clone() *SeedState {
	if s == nil {
		return nil
	}
	return &SeedState{
		BitMD:   s.BitMD,
		String:  cloneSegments(s.String),
		Annulus: cloneSegments(s.Annulus),
		Pocket:  cloneSegments(s.Pocket),
	}
}

func cloneSegments(in []fluid.Segment) []fluid.Segment {
	if in == nil {
		return nil
	}
	return append([]fluid.Segment(nil), in...)
}
