package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chrissnell/wellsim/internal/circulation"
	"github.com/chrissnell/wellsim/internal/managers"
	"github.com/chrissnell/wellsim/internal/project"
	"github.com/chrissnell/wellsim/internal/trip"
	"github.com/chrissnell/wellsim/internal/types"
	"github.com/chrissnell/wellsim/pkg/config"
	"github.com/chrissnell/wellsim/pkg/responseformat"
	"github.com/google/uuid"
)

// Mode selects what the binary does.
type Mode string

const (
	ModeTrip      Mode = "trip"
	ModeCirculate Mode = "circulate"
	// ModeChain circulates and then trips from the circulated state.
	ModeChain Mode = "chain"
	ModeServe Mode = "serve"
)

// ParseMode validates a -mode flag value.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeTrip, ModeCirculate, ModeChain, ModeServe:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q: use trip, circulate, chain or serve", s)
}

// OutputFormat is how batch results are written.
type OutputFormat string

const (
	OutputJSON    OutputFormat = "json"
	OutputMsgPack OutputFormat = "msgpack"
	OutputTable   OutputFormat = "table"
)

// ParseOutputFormat validates a -format flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case OutputJSON, OutputMsgPack, OutputTable:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q: use json, msgpack or table", s)
}

// Batch runs mode in the foreground, archives every result in the
// configured storage and writes the results to out. An interrupted run is
// still written and archived with its partial snapshots.
func (a *App) Batch(ctx context.Context, mode Mode, out io.Writer, format OutputFormat) error {
	cfg, env, err := a.load()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(ctx)
	defer cancel()

	sm, err := managers.NewStorageManager(ctx, cfg.Storage, a.logger.Named("storage"))
	if err != nil {
		return err
	}
	defer sm.Close()

	results, runErr := a.execute(ctx, mode, cfg, env)
	for _, res := range results {
		if err := sm.SaveRun(context.WithoutCancel(ctx), res); err != nil {
			a.logger.Errorw("could not archive run", "id", res.ID, "error", err)
		}
	}
	if err := writeResults(out, format, results); err != nil {
		return errors.Join(runErr, fmt.Errorf("writing results: %w", err))
	}
	return runErr
}

func (a *App) execute(ctx context.Context, mode Mode, cfg *config.ConfigData, env *project.Environment) ([]*types.RunResult, error) {
	switch mode {
	case ModeTrip:
		res, err := a.runTrip(ctx, cfg, env, nil)
		return collect(res), err
	case ModeCirculate:
		res, err := a.runCirculation(ctx, cfg, env)
		return collect(res), err
	case ModeChain:
		circ, err := a.runCirculation(ctx, cfg, env)
		if err != nil {
			return collect(circ), err
		}
		res, err := a.runTrip(ctx, cfg, env, circ.Final)
		return append(collect(circ), collect(res)...), err
	}
	return nil, fmt.Errorf("mode %q is not a batch mode", mode)
}

func collect(res *types.RunResult) []*types.RunResult {
	if res == nil {
		return nil
	}
	return []*types.RunResult{res}
}

func (a *App) runTrip(ctx context.Context, cfg *config.ConfigData, env *project.Environment, seed *types.SeedState) (*types.RunResult, error) {
	p, err := env.TripParams(cfg.Trip)
	if err != nil {
		return nil, err
	}
	p.Seed = seed
	if seed != nil && cfg.Trip.Start != seed.BitMD {
		a.logger.Infow("trip starts from the circulated state", "bit_md", seed.BitMD, "configured_start", cfg.Trip.Start)
		p.Start = seed.BitMD
	}

	res, err := trip.Run(ctx, p, env.TripDeps(a.progress("trip")))
	if res != nil {
		res.ID = uuid.NewString()
	}
	return res, err
}

func (a *App) runCirculation(ctx context.Context, cfg *config.ConfigData, env *project.Environment) (*types.RunResult, error) {
	p, err := env.CirculationParams(cfg.Circulation)
	if err != nil {
		return nil, err
	}

	res, err := circulation.Run(ctx, p, env.CirculationDeps(a.progress("circulation")))
	if res != nil {
		res.ID = uuid.NewString()
	}
	return res, err
}

func (a *App) progress(kind string) types.ProgressFunc {
	return func(p types.Progress) {
		a.logger.Infow("progress", "run", kind, "phase", p.Phase, "bit_md", p.BitMD,
			"pumped_m3", p.Pumped, "float", p.FloatState, "fraction", p.Fraction)
	}
}

func writeResults(out io.Writer, format OutputFormat, results []*types.RunResult) error {
	if format == OutputTable {
		for i, res := range results {
			if i > 0 {
				fmt.Fprintln(out)
			}
			if err := responseformat.WriteTable(out, res); err != nil {
				return err
			}
		}
		return nil
	}

	enc := responseformat.JSON
	if format == OutputMsgPack {
		enc = responseformat.MsgPack
	}
	var data any = results
	if len(results) == 1 {
		data = results[0]
	}
	return responseformat.NewFormatter().Encode(out, enc, data)
}
