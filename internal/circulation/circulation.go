// Package circulation simulates pumping a schedule of fluids down the
// string, out of the bit and up the annulus with the bit held still.
package circulation

import (
	"context"
	"errors"
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
)

// ErrInvalidParams wraps every parameter validation failure.
var ErrInvalidParams = errors.New("invalid circulation parameters")

// PumpOp is one entry of the pump schedule.
type PumpOp struct {
	Fluid  fluid.Fluid
	Volume float64 // m³
}

// Params describes one circulation.
type Params struct {
	Project types.ProjectSnapshot
	Seed    *types.SeedState

	// BitMD defaults to the seed or project bit depth.
	BitMD    float64
	Schedule []PumpOp

	// ControlMD is where ESD is evaluated; zero means total depth.
	ControlMD float64
	TargetESD float64

	// PumpRate in m³/min. With LimitPumpRate the rate is cut back until the
	// APL no longer exceeds the static back-pressure requirement.
	PumpRate            float64
	LimitPumpRate       bool
	MinPumpRate         float64
	BisectionIterations int

	// The pumped volume is split into increments of at least MinIncrement,
	// and at most MaxPoints of them.
	MaxPoints    int
	MinIncrement float64

	ProgressEvery int
}

const (
	DefaultMaxPoints           = 200
	DefaultMinIncrement        = 0.01
	DefaultBisectionIterations = 40
	DefaultProgressEvery       = 10
)

// DefaultParams returns params with the discretization defaults set.
func DefaultParams() Params {
	return Params{
		MaxPoints:           DefaultMaxPoints,
		MinIncrement:        DefaultMinIncrement,
		BisectionIterations: DefaultBisectionIterations,
		ProgressEvery:       DefaultProgressEvery,
	}
}

// TotalVolume returns the scheduled volume.
func (p Params) TotalVolume() float64 {
	var v float64
	for _, op := range p.Schedule {
		v += op.Volume
	}
	return v
}

// Validate checks the params for values the loop cannot work with.
func (p Params) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
	}
	if len(p.Schedule) == 0 {
		return bad("empty pump schedule")
	}
	for i, op := range p.Schedule {
		if op.Volume <= 0 || math.IsNaN(op.Volume) {
			return bad("pump op %d has volume %v", i, op.Volume)
		}
		if op.Fluid.Density <= 0 {
			return bad("pump op %d fluid %q has no density", i, op.Fluid.Name)
		}
	}
	if p.MaxPoints <= 0 {
		return bad("max points must be positive")
	}
	if p.MinIncrement < 0 || p.BitMD < 0 || p.ControlMD < 0 || p.TargetESD < 0 {
		return bad("negative increment, depth or target")
	}
	if p.PumpRate < 0 || p.MinPumpRate < 0 || p.MinPumpRate > p.PumpRate {
		return bad("pump rate %.3f with minimum %.3f", p.PumpRate, p.MinPumpRate)
	}
	if p.LimitPumpRate && p.BisectionIterations <= 0 {
		return bad("rate limiting needs bisection iterations")
	}
	return nil
}

// Deps are the collaborators a circulation needs. Only Geometry is required.
type Deps struct {
	Geometry   geometry.Positioner
	Calc       pressure.Calculator
	Equalizer  *floatvalve.Equalizer
	APL        hydraulics.APLEstimator
	Tolerances stack.Tolerances
	Logger     *zap.SugaredLogger
	Progress   types.ProgressFunc
}

type runner struct {
	p       Params
	d       Deps
	logger  *zap.SugaredLogger
	tol     stack.Tolerances
	eq      *floatvalve.Equalizer
	well    *wellbore.State
	res     *types.RunResult
	control float64

	pumped       float64
	returns      float64
	vented       float64
	stepReturns  float64
	warnedAPL    bool
	warnedBisect bool
}

// Run executes the pump schedule. It returns an error only for invalid
// params or cancellation; in the latter case the partial result is returned
// alongside the error.
func Run(ctx context.Context, p Params, d Deps) (*types.RunResult, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if d.Geometry == nil {
		return nil, fmt.Errorf("%w: no geometry", ErrInvalidParams)
	}

	r := &runner{p: p, d: d, logger: d.Logger, tol: d.Tolerances, eq: d.Equalizer}
	if r.logger == nil {
		r.logger = log.GetSugaredLogger()
	}
	if r.tol == (stack.Tolerances{}) {
		r.tol = stack.DefaultTolerances()
	}
	if r.eq == nil {
		r.eq = floatvalve.NewEqualizer(d.Calc, r.logger)
	}

	bit := p.BitMD
	if bit == 0 {
		bit = p.Project.BitMD
		if p.Seed != nil {
			bit = p.Seed.BitMD
		}
	}
	well, err := wellbore.Seed(p.Project.Clone(), p.Seed.Clone(), bit, d.Geometry, r.tol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	r.well = well
	r.control = p.ControlMD
	if r.control == 0 || r.control > well.TotalDepth {
		r.control = well.TotalDepth
	}

	r.res = &types.RunResult{
		Kind:      types.KindCirculation,
		Status:    types.StatusRunning,
		StartedAt: time.Now(),
		Converged: true,
	}

	total := p.TotalVolume()
	inc := math.Max(p.MinIncrement, total/float64(p.MaxPoints))
	r.logger.Infow("circulation started",
		"bit_md", bit,
		"control_md", r.control,
		"volume_m3", total,
		"increment_m3", inc,
		"pump_rate", p.PumpRate,
	)

	r.record(p.Schedule[0].Fluid.Name)
	err = r.pump(ctx, inc, total)

	r.res.Final = r.well.Final()
	r.res.FinishedAt = time.Now()
	if err != nil {
		r.res.Status = types.StatusCancelled
		r.res.Error = err.Error()
		return r.res, err
	}
	r.res.Status = types.StatusCompleted
	r.logger.Infow("circulation finished",
		"pumped_m3", r.pumped,
		"returns_m3", r.returns,
		"vented_m3", r.vented,
		"snapshots", len(r.res.Snapshots),
		"converged", r.res.Converged,
	)
	return r.res, nil
}

// pump drives the schedule in increments of inc. An increment may span the
// end of one operation and the start of the next, so the recorded points
// stay within MaxPoints; a tail smaller than MinIncrement joins the last
// increment.
func (r *runner) pump(ctx context.Context, inc, total float64) error {
	ops := r.p.Schedule
	op, opLeft := 0, ops[0].Volume
	left := total
	absorb := math.Max(r.p.MinIncrement, r.tol.Volume)

	for left > r.tol.Volume {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("circulation cancelled after %.3f m³: %w", r.pumped, err)
		}
		r.res.Iterations++

		step := math.Min(inc, left)
		if left-step < absorb {
			step = left
		}
		left -= step

		pumping := ops[op].Fluid.Name
		for step > r.tol.Volume {
			v := math.Min(step, opLeft)
			r.inject(ops[op].Fluid, v)
			pumping = ops[op].Fluid.Name
			step -= v
			opLeft -= v
			if opLeft > r.tol.Volume {
				continue
			}
			if op == len(ops)-1 {
				break
			}
			op++
			opLeft = ops[op].Volume
		}

		r.record(pumping)

		if r.d.Progress != nil && (r.p.ProgressEvery <= 0 || r.res.Iterations%r.p.ProgressEvery == 0 || left <= r.tol.Volume) {
			r.d.Progress(types.Progress{
				Phase:      types.PhaseCirculate,
				BitMD:      r.well.Bit(),
				Pumped:     r.pumped,
				FloatState: floatvalve.Closed.String(),
				Iteration:  r.res.Iterations,
				Fraction:   math.Min(r.pumped/total, 1),
			})
		}
	}
	return nil
}

// inject pumps v of f into the string and passes what leaves the bit into
// the annulus.
func (r *runner) inject(f fluid.Fluid, v float64) {
	if v < r.tol.Volume {
		return
	}
	vented, expelled := r.well.String.PumpFromSurface(f, v)
	back := fluid.TotalVolume(r.well.Annulus.InjectParcelsAtBit(expelled))
	r.vented += vented
	r.returns += back
	r.stepReturns += back
	r.pumped += v
}

// apl returns the annular pressure loss at rate (m³/min), zero when there
// is no estimator or it fails.
func (r *runner) apl(rate float64) float64 {
	if r.d.APL == nil || rate <= 0 {
		return 0
	}
	v, err := r.d.APL.APL(r.well.Annulus.Segments(), rate/60, r.well.Geometry(), r.well.Bit())
	if err != nil {
		if !r.warnedAPL {
			r.warnedAPL = true
			r.logger.Warnw("APL estimate failed, using zero contribution", "error", err)
			r.res.Note("apl", r.well.Bit(), fmt.Sprintf("apl estimate unavailable: %v", err))
		}
		return 0
	}
	return v
}

// limitRate bisects for the largest rate in [MinPumpRate, PumpRate] whose
// APL does not exceed static.
func (r *runner) limitRate(static float64) (rate, apl float64) {
	lo, hi := r.p.MinPumpRate, r.p.PumpRate
	loAPL := r.apl(lo)
	if loAPL > static {
		return lo, loAPL
	}
	for i := 0; i < r.p.BisectionIterations; i++ {
		mid := (lo + hi) / 2
		if a := r.apl(mid); a <= static {
			lo, loAPL = mid, a
		} else {
			hi = mid
		}
	}
	if hi-lo > 1e-6*math.Max(r.p.PumpRate, 1) && !r.warnedBisect {
		r.warnedBisect = true
		r.res.Warn("bisection", r.well.Bit(), fmt.Sprintf("pump rate bracket %.6f-%.6f m³/min after %d iterations", lo, hi, r.p.BisectionIterations))
	}
	return lo, loAPL
}

func (r *runner) record(pumping string) {
	calc := r.d.Calc
	bit := r.well.Bit()
	td := r.well.TotalDepth
	outside := r.well.OutsidePipe()
	ann := r.well.Annulus.Segments()

	controlTVD := calc.TVD(r.control)
	hydro := calc.Hydrostatic(outside, r.control)
	esd := calc.ESD(outside, r.control)
	static := 0.0
	if r.p.TargetESD > 0 {
		static = math.Max(0, (r.p.TargetESD-esd)*calc.Gradient()*controlTVD)
	}

	rate := r.p.PumpRate
	apl := r.apl(rate)
	limited := false
	if apl > static && r.p.LimitPumpRate && r.p.PumpRate > 0 {
		rate, apl = r.limitRate(static)
		limited = true
	}
	effective := math.Max(0, static-apl)

	fv := r.eq.Evaluate(r.well.String, r.well.Annulus, effective)
	annHydro := fv.AnnulusPressure - effective
	keepClosed := fv.StringPressure - annHydro - r.eq.Crack

	r.res.Snapshots = append(r.res.Snapshots, types.StepSnapshot{
		Phase:                types.PhaseCirculate,
		Index:                len(r.res.Snapshots),
		BitMD:                bit,
		BitTVD:               calc.TVD(bit),
		String:               r.well.String.Segments(),
		Annulus:              ann,
		Pocket:               r.well.Pocket.Segments(),
		StringHydrostatic:    fv.StringPressure,
		AnnulusHydrostatic:   annHydro,
		RequiredSABP:         static,
		FloatAwareSABP:       math.Max(static, math.Max(keepClosed, 0)),
		ActualSABP:           effective,
		ESDAtTD:              calc.ESD(outside, td),
		ESDAtBit:             calc.ESD(ann, bit),
		EffectiveDensityAtTD: calc.EquivalentDensity(calc.Hydrostatic(outside, td)+effective+apl, td),
		FloatState:           fv.State.String(),
		FloatMargin:          fv.Margin,
		APL:                  apl,
		StepPitGain:          r.stepReturns,
		NetTankDelta:         r.returns - r.pumped,
		PumpedVolume:         r.pumped,
		ControlMD:            r.control,
		ControlTVD:           controlTVD,
		ControlESD:           esd,
		ControlECD:           calc.EquivalentDensity(hydro+apl, r.control),
		StaticSABP:           static,
		EffectiveSABP:        effective,
		PumpRate:             rate,
		ReturnsVolume:        r.returns,
		PumpingFluid:         pumping,
		RateLimited:          limited,
	})
	r.stepReturns = 0
}
