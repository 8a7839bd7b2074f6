// Package floatvalve models the check valve above the bit. The valve lets
// string fluid into the annulus once the string side out-pressures the
// annulus side by more than the crack pressure, and the Equalizer drains
// the string in small parcels until the two sides balance again.
package floatvalve

import (
	"fmt"

	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/pressure"
	"github.com/chrissnell/wellsim/internal/stack"
	"go.uber.org/zap"
)

// State of the float valve.
type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "OPEN"
	}
	return "CLOSED"
}

// Decide returns Closed when stringP ≤ annulusP + crack. It depends on
// nothing else.
func Decide(stringP, annulusP, crack float64) State {
	if stringP <= annulusP+crack {
		return Closed
	}
	return Open
}

// Mode selects how the Equalizer decides when to stop draining.
type Mode int

const (
	// Calculated drains until the pressures balance.
	Calculated Mode = iota
	// Observed drains exactly a requested volume, ignoring pressures.
	Observed
)

func (m Mode) String() string {
	if m == Observed {
		return "observed"
	}
	return "calculated"
}

// ParseMode accepts "calculated" or "observed"; empty means calculated.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "calculated":
		return Calculated, nil
	case "observed":
		return Observed, nil
	default:
		return Calculated, fmt.Errorf("unknown equalizer mode %q", s)
	}
}

// Reason explains why an equalization stopped.
type Reason int

const (
	// AlreadyClosed: nothing to do.
	AlreadyClosed Reason = iota
	// Converged: pressures balanced, or the observed volume was drained.
	Converged
	// VolumeExhausted: the string had no liquid left at the bit.
	VolumeExhausted
	// IterationCap: MaxIterations transfers were made without finishing.
	IterationCap
)

func (r Reason) String() string {
	switch r {
	case AlreadyClosed:
		return "already-closed"
	case Converged:
		return "converged"
	case VolumeExhausted:
		return "volume-exhausted"
	case IterationCap:
		return "iteration-cap"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Reading is a pressure evaluation at the bit.
type Reading struct {
	State           State
	StringPressure  float64 // kPa
	AnnulusPressure float64 // kPa, including surface back-pressure
	// Margin is annulus + crack - string; positive while closed.
	Margin float64
}

// Result of one equalization.
type Result struct {
	Reason     Reason
	Final      Reading
	Iterations int
	Drained    float64 // m³ of string fluid passed through the valve
	PitGain    float64 // m³ overflowing the annulus at surface
}

// Equalizer drains the string into the annulus through the float.
type Equalizer struct {
	ParcelVolume  float64 // m³ per transfer
	MaxIterations int
	Crack         float64 // kPa
	Air           fluid.Fluid
	Calc          pressure.Calculator
	Tolerances    stack.Tolerances
	Logger        *zap.SugaredLogger
}

const (
	DefaultParcelVolume  = 0.01
	DefaultMaxIterations = 20000
	DefaultCrack         = 0.5
	DefaultAirDensity    = 1.2
)

// NewEqualizer returns an Equalizer with default tuning.
func NewEqualizer(calc pressure.Calculator, logger *zap.SugaredLogger) *Equalizer {
	return &Equalizer{
		ParcelVolume:  DefaultParcelVolume,
		MaxIterations: DefaultMaxIterations,
		Crack:         DefaultCrack,
		Air:           fluid.Air(DefaultAirDensity),
		Calc:          calc,
		Tolerances:    stack.DefaultTolerances(),
		Logger:        logger,
	}
}

// Evaluate reads both bit pressures. annulusSurface is the back-pressure
// applied at the annulus; the string is open to atmosphere.
func (e *Equalizer) Evaluate(str, ann *stack.Stack, annulusSurface float64) Reading {
	bit := str.BitDepth()
	sp := e.Calc.Hydrostatic(str.Segments(), bit)
	ap := e.Calc.Hydrostatic(ann.Segments(), bit) + annulusSurface
	return Reading{
		State:           Decide(sp, ap, e.Crack),
		StringPressure:  sp,
		AnnulusPressure: ap,
		Margin:          ap + e.Crack - sp,
	}
}

// Equalize drains the string in calculated mode until the valve closes.
func (e *Equalizer) Equalize(str, ann *stack.Stack, annulusSurface float64) Result {
	return e.Run(str, ann, annulusSurface, Calculated, 0)
}

// Run equalizes in the given mode. In Observed mode exactly observed m³ is
// drained (as far as the string holds liquid) whatever the pressures.
func (e *Equalizer) Run(str, ann *stack.Stack, annulusSurface float64, mode Mode, observed float64) Result {
	if str.Conduit() != stack.String || ann.Conduit() != stack.Annulus {
		panic(fmt.Sprintf("floatvalve: equalize needs string and annulus stacks, got %s and %s", str.Conduit(), ann.Conduit()))
	}
	parcel := e.ParcelVolume
	if parcel <= 0 {
		parcel = DefaultParcelVolume
	}
	tol := e.Tolerances.Volume

	res := Result{Final: e.Evaluate(str, ann, annulusSurface)}
	if mode == Calculated && res.Final.State == Closed {
		res.Reason = AlreadyClosed
		return res
	}
	if mode == Observed && observed < tol {
		res.Reason = Converged
		return res
	}

	for {
		if mode == Calculated && res.Final.State == Closed {
			res.Reason = Converged
			break
		}
		if mode == Observed && res.Drained >= observed-tol {
			res.Reason = Converged
			break
		}
		if res.Iterations >= e.MaxIterations {
			res.Reason = IterationCap
			break
		}
		if e.drainedDry(str) {
			res.Reason = VolumeExhausted
			break
		}

		v := parcel
		if mode == Observed && observed-res.Drained < v {
			v = observed - res.Drained
		}
		expelled := str.AddAirFromSurface(e.Air, v)
		res.Drained += fluid.TotalVolume(expelled)
		res.PitGain += fluid.TotalVolume(ann.InjectParcelsAtBit(expelled))
		res.Iterations++
		res.Final = e.Evaluate(str, ann, annulusSurface)
	}

	if e.Logger != nil {
		e.Logger.Debugw("float equalization finished",
			"mode", mode.String(),
			"reason", res.Reason.String(),
			"iterations", res.Iterations,
			"drained_m3", res.Drained,
			"pit_gain_m3", res.PitGain,
			"state", res.Final.State.String(),
		)
	}
	return res
}

// drainedDry reports whether only air is left at the bit end of the string.
func (e *Equalizer) drainedDry(str *stack.Stack) bool {
	f, ok := str.BottomFluid()
	if !ok {
		return true
	}
	return f.Matches(e.Air, e.Tolerances.Density)
}
