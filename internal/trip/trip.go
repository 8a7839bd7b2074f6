// Package trip simulates moving the drill string in or out of the hole,
// tracking both conduits, the open hole below the bit, the float valve and
// the surface volumes step by step.
package trip

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/wellsim/internal/floatvalve"
	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/geometry"
	"github.com/chrissnell/wellsim/internal/hydraulics"
	"github.com/chrissnell/wellsim/internal/log"
	"github.com/chrissnell/wellsim/internal/pressure"
	"github.com/chrissnell/wellsim/internal/stack"
	"github.com/chrissnell/wellsim/internal/types"
	"github.com/chrissnell/wellsim/internal/wellbore"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Deps are the collaborators a trip needs. Only Geometry is required.
type Deps struct {
	Geometry   geometry.Positioner
	Calc       pressure.Calculator
	Equalizer  *floatvalve.Equalizer
	SwabSurge  hydraulics.SwabSurgeEstimator
	APL        hydraulics.APLEstimator
	Tolerances stack.Tolerances
	Logger     *zap.SugaredLogger
	Progress   types.ProgressFunc
}

type runner struct {
	p      Params
	d      Deps
	logger *zap.SugaredLogger
	tol    stack.Tolerances
	eq     *floatvalve.Equalizer
	well   *wellbore.State
	bf     *backfillSource
	res    *types.RunResult
	phase  types.Phase
	sabp   float64

	// Since the last snapshot.
	stepBackfill float64
	stepSlug     float64
	stepPitGain  float64
	swab         []float64
	apl          []float64

	cumBackfill float64
	cumSlug     float64
	cumPitGain  float64

	warned map[string]bool
}

type reading struct {
	float      floatvalve.Reading
	annHydro   float64
	hydroTD    float64
	required   float64
	floatAware float64
	esdTD      float64
	esdBit     float64
	effTD      float64
}

// Run executes the trip described by p. It returns an error only for
// invalid params or cancellation; in the latter case the partial result is
// returned alongside the error.
func Run(ctx context.Context, p Params, d Deps) (*types.RunResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if d.Geometry == nil {
		return nil, fmt.Errorf("%w: no geometry", ErrInvalidParams)
	}

	r := &runner{
		p:      p,
		d:      d,
		logger: d.Logger,
		tol:    d.Tolerances,
		eq:     d.Equalizer,
		bf:     newBackfillSource(p),
		phase:  p.Phase(),
		sabp:   p.InitialSABP,
		warned: make(map[string]bool),
	}
	if r.logger == nil {
		r.logger = log.GetSugaredLogger()
	}
	if r.tol == (stack.Tolerances{}) {
		r.tol = stack.DefaultTolerances()
	}
	if r.eq == nil {
		r.eq = floatvalve.NewEqualizer(d.Calc, r.logger)
	}

	well, err := wellbore.Seed(p.Project.Clone(), p.Seed.Clone(), p.Start, d.Geometry, r.tol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	r.well = well
	r.res = &types.RunResult{
		Kind:      types.KindTrip,
		Status:    types.StatusRunning,
		StartedAt: time.Now(),
		Converged: true,
	}

	end := p.End
	if !p.Out() && end > well.TotalDepth {
		r.res.Note("trip", end, fmt.Sprintf("end depth clamped to total depth %.2f m", well.TotalDepth))
		end = well.TotalDepth
	}

	r.logger.Infow("trip started",
		"phase", r.phase,
		"start_md", p.Start,
		"end_md", end,
		"float_mode", p.EqualizerMode.String(),
	)

	r.equalize(true)
	r.record()
	r.hold()

	err = r.loop(ctx, end)

	r.res.Final = r.well.Final()
	r.res.FinishedAt = time.Now()
	if err != nil {
		r.res.Status = types.StatusCancelled
		r.res.Error = err.Error()
		return r.res, err
	}
	r.res.Status = types.StatusCompleted
	r.logger.Infow("trip finished",
		"phase", r.phase,
		"bit_md", r.well.Bit(),
		"snapshots", len(r.res.Snapshots),
		"iterations", r.res.Iterations,
		"converged", r.res.Converged,
		"backfill_m3", r.cumBackfill,
		"pit_gain_m3", r.cumPitGain,
	)
	return r.res, nil
}

func (r *runner) loop(ctx context.Context, end float64) error {
	p := r.p
	dir := 1.0
	if p.Out() {
		dir = -1
	}
	total := math.Abs(end - p.Start)
	maxIter := int(math.Ceil(total/p.FineStep)) + int(math.Ceil(total/p.RecordInterval)) + 16

	k := 1
	lastProgress := p.Start
	for {
		bit := r.well.Bit()
		if math.Abs(bit-end) <= r.tol.Length {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("trip cancelled at %.2f m: %w", bit, err)
		}
		if r.res.Iterations >= maxIter {
			r.res.Warn("trip", bit, fmt.Sprintf("step limit %d reached before %.2f m", maxIter, end))
			return nil
		}
		r.res.Iterations++

		state := r.eq.Evaluate(r.well.String, r.well.Annulus, r.sabp)
		step := p.FineStep
		if state.State == floatvalve.Closed && state.Margin > p.CoarseMargin {
			step = p.CoarseStep
		}
		if state.State == floatvalve.Open {
			state = r.equalize(false)
		}

		target := p.Start + dir*float64(k)*p.RecordInterval
		if (dir < 0 && target < end) || (dir > 0 && target > end) {
			target = end
		}
		next := bit + dir*step
		if (dir < 0 && next < target) || (dir > 0 && next > target) || math.Abs(next-target) <= r.tol.Length {
			next = target
		}

		if p.Out() {
			r.carveOut(next, state.State)
		} else {
			r.carveIn(next)
		}
		swab, apl := r.dynamics()
		r.swab = append(r.swab, swab)
		r.apl = append(r.apl, apl)

		if next == target {
			r.record()
			k++
		}
		r.hold()

		if r.d.Progress != nil {
			done := math.Abs(next-end) <= r.tol.Length
			everyIter := p.ProgressIterations > 0 && r.res.Iterations%p.ProgressIterations == 0
			if done || everyIter || math.Abs(next-lastProgress) >= p.ProgressEvery {
				lastProgress = next
				fraction := 1.0
				if total > 0 {
					fraction = math.Abs(next-p.Start) / total
				}
				r.d.Progress(types.Progress{
					Phase:      r.phase,
					BitMD:      next,
					FloatState: r.eq.Evaluate(r.well.String, r.well.Annulus, r.sabp).State.String(),
					Iteration:  r.res.Iterations,
					Fraction:   fraction,
				})
			}
		}
	}
}

// carveOut pulls the bit up to newBit. With the float closed the string
// column rides up with the pipe and the annulus gives up its interval plus
// the pipe's closed-end volume; with it open the string drains its bottom
// interval and the annulus only gives up the steel volume.
func (r *runner) carveOut(newBit float64, state floatvalve.State) {
	g := r.well.Geometry()
	bit := r.well.Bit()
	next := r.d.Geometry.ProviderAt(newBit)
	annCap := r.well.Annulus.Capacity()

	var donors []fluid.Parcel
	donate := g.AnnulusVolume(newBit, bit)
	if state == floatvalve.Closed {
		donate += g.OuterDiameterVolume(newBit, bit)
		r.well.String.Translate(newBit-bit, r.eq.Air)
		r.well.String.UseGeometry(next)
	} else {
		donate += geometry.SteelVolume(g, newBit, bit)
		drained, _ := r.well.String.Retract(next, newBit, g.StringVolume(newBit, bit), nil)
		donors = append(donors, drained...)
	}

	backfill := next.AnnulusVolume(0, newBit) - (annCap - donate)
	refill := r.bf.take(math.Max(backfill, 0))
	donated, overflow := r.well.Annulus.Retract(next, newBit, donate, refill)
	donors = append(donors, donated...)

	if blend, v := fluid.Blend(donors); v >= r.tol.Volume {
		r.well.Pocket.Prepend(newBit, bit, blend)
	}

	pumped := fluid.TotalVolume(refill)
	r.stepBackfill += pumped
	r.cumBackfill += pumped
	gain := fluid.TotalVolume(overflow)
	r.stepPitGain += gain
	r.cumPitGain += gain
}

// carveIn runs the bit down to newBit. The pipe swallows the top of the
// pocket and that fluid is displaced into the annulus at the bit.
func (r *runner) carveIn(newBit float64) {
	bit := r.well.Bit()
	next := r.d.Geometry.ProviderAt(newBit)

	var inflow []fluid.Parcel
	covered := bit
	for _, s := range r.well.Pocket.Consume(newBit) {
		inflow = append(inflow, fluid.Parcel{Fluid: s.Fluid, Volume: geometry.HoleVolume(next, s.Top, s.Bottom)})
		covered = s.Bottom
	}
	if newBit-covered > r.tol.Length {
		// Hole the pocket never held is taken to contain the deepest annulus fluid.
		f, _ := r.well.Annulus.BottomFluid()
		inflow = append(inflow, fluid.Parcel{Fluid: f, Volume: geometry.HoleVolume(next, covered, newBit)})
	}

	r.well.String.Translate(newBit-bit, r.eq.Air)
	r.well.String.UseGeometry(next)
	overflow := r.well.Annulus.Advance(next, newBit, inflow)

	gain := fluid.TotalVolume(overflow)
	r.stepPitGain += gain
	r.cumPitGain += gain
}

func (r *runner) equalize(initial bool) floatvalve.Reading {
	var res floatvalve.Result
	if initial && r.p.EqualizerMode == floatvalve.Observed {
		res = r.eq.Run(r.well.String, r.well.Annulus, r.sabp, floatvalve.Observed, r.p.ObservedPitGain)
	} else {
		res = r.eq.Equalize(r.well.String, r.well.Annulus, r.sabp)
	}

	r.stepSlug += res.Drained
	r.cumSlug += res.Drained
	r.stepPitGain += res.PitGain
	r.cumPitGain += res.PitGain

	switch res.Reason {
	case floatvalve.IterationCap:
		msg := fmt.Sprintf("float equalization stopped after %d iterations with %.3f kPa imbalance", res.Iterations, -res.Final.Margin)
		r.res.Warn("equalizer", r.well.Bit(), msg)
		r.logger.Warnw("float equalization hit iteration cap",
			"bit_md", r.well.Bit(),
			"iterations", res.Iterations,
			"margin_kpa", res.Final.Margin,
		)
	case floatvalve.VolumeExhausted:
		r.logger.Debugw("string drained dry", "bit_md", r.well.Bit())
	}
	return res.Final
}

// dynamics returns the signed swab/surge and the APL for the current state.
func (r *runner) dynamics() (swabSurge, apl float64) {
	segs := r.well.Annulus.Segments()
	geom := r.well.Geometry()
	bit := r.well.Bit()

	if r.d.SwabSurge != nil && r.p.TripSpeed > 0 {
		v, err := r.d.SwabSurge.SwabSurge(segs, r.p.TripSpeed, geom, bit)
		if err != nil {
			r.estimatorFailed("swab/surge", err)
			v = 0
		}
		if r.p.Out() {
			swabSurge = -v
		} else {
			swabSurge = v
		}
	}
	if r.d.APL != nil && r.p.PumpRate > 0 {
		v, err := r.d.APL.APL(segs, r.p.PumpRate/60, geom, bit)
		if err != nil {
			r.estimatorFailed("apl", err)
			v = 0
		}
		apl = v
	}
	return swabSurge, apl
}

func (r *runner) estimatorFailed(name string, err error) {
	if r.warned[name] {
		r.logger.Debugw("estimator failed", "estimator", name, "error", err)
		return
	}
	r.warned[name] = true
	r.logger.Warnw("estimator failed, using zero contribution", "estimator", name, "error", err)
	r.res.Note(name, r.well.Bit(), fmt.Sprintf("%s estimate unavailable: %v", name, err))
}

func (r *runner) evaluate(swab, apl float64) reading {
	calc := r.d.Calc
	bit := r.well.Bit()
	td := r.well.TotalDepth
	ann := r.well.Annulus.Segments()
	outside := r.well.OutsidePipe()

	rd := reading{float: r.eq.Evaluate(r.well.String, r.well.Annulus, r.sabp)}
	rd.annHydro = rd.float.AnnulusPressure - r.sabp
	rd.hydroTD = calc.Hydrostatic(outside, td)
	dyn := swab + apl
	rd.required = calc.RequiredBackPressure(r.p.TargetESD, td, rd.hydroTD, dyn)
	keepClosed := rd.float.StringPressure - rd.annHydro - r.eq.Crack
	rd.floatAware = math.Max(rd.required, math.Max(keepClosed, 0))
	rd.esdTD = calc.ESD(outside, td)
	rd.esdBit = calc.ESD(ann, bit)
	rd.effTD = calc.EquivalentDensity(rd.hydroTD+r.sabp+dyn, td)
	return rd
}

// hold makes the applied back-pressure follow the float-aware requirement.
func (r *runner) hold() {
	if !r.p.HoldBackPressure {
		return
	}
	swab, apl := r.lastDynamics()
	r.sabp = r.evaluate(swab, apl).floatAware
}

func (r *runner) lastDynamics() (float64, float64) {
	if n := len(r.swab); n > 0 {
		return r.swab[n-1], r.apl[n-1]
	}
	return r.dynamics()
}

func (r *runner) record() {
	var swab, apl float64
	if len(r.swab) > 0 {
		swab = stat.Mean(r.swab, nil)
		apl = stat.Mean(r.apl, nil)
	} else {
		swab, apl = r.dynamics()
	}
	rd := r.evaluate(swab, apl)
	bit := r.well.Bit()

	r.res.Snapshots = append(r.res.Snapshots, types.StepSnapshot{
		Phase:                r.phase,
		Index:                len(r.res.Snapshots),
		BitMD:                bit,
		BitTVD:               r.d.Calc.TVD(bit),
		String:               r.well.String.Segments(),
		Annulus:              r.well.Annulus.Segments(),
		Pocket:               r.well.Pocket.Segments(),
		StringHydrostatic:    rd.float.StringPressure,
		AnnulusHydrostatic:   rd.annHydro,
		RequiredSABP:         rd.required,
		FloatAwareSABP:       rd.floatAware,
		ActualSABP:           r.sabp,
		ESDAtTD:              rd.esdTD,
		ESDAtBit:             rd.esdBit,
		EffectiveDensityAtTD: rd.effTD,
		FloatState:           rd.float.State.String(),
		FloatMargin:          rd.float.Margin,
		SwabSurge:            swab,
		APL:                  apl,
		StepBackfill:         r.stepBackfill,
		CumulativeBackfill:   r.cumBackfill,
		StepSlug:             r.stepSlug,
		CumulativeSlug:       r.cumSlug,
		StepPitGain:          r.stepPitGain,
		CumulativePitGain:    r.cumPitGain,
		NetTankDelta:         r.cumPitGain - r.cumBackfill,
		PumpRate:             r.p.PumpRate,
	})

	r.stepBackfill, r.stepSlug, r.stepPitGain = 0, 0, 0
	r.swab, r.apl = r.swab[:0], r.apl[:0]
}
