package managers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chrissnell/wellsim/internal/circulation"
	"github.com/chrissnell/wellsim/internal/project"
	"github.com/chrissnell/wellsim/internal/storage"
	"github.com/chrissnell/wellsim/internal/trip"
	"github.com/chrissnell/wellsim/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrUnknownRun is returned for IDs that are neither active nor archived.
	ErrUnknownRun = errors.New("unknown run")
	// ErrRunActive is returned for operations that need a finished run.
	ErrRunActive = errors.New("run is still executing")
)

// RunStatus is the live view of a run.
type RunStatus struct {
	types.Summary
	Progress *types.Progress `json:"progress,omitempty"`
}

type runFunc func(ctx context.Context, progress types.ProgressFunc) (*types.RunResult, error)

type activeRun struct {
	summary  types.Summary
	progress *types.Progress
	cancel   context.CancelFunc
}

// status copies the live view. The caller holds the manager lock.
func (a *activeRun) status() RunStatus {
	st := RunStatus{Summary: a.summary}
	if a.progress != nil {
		p := *a.progress
		st.Progress = &p
	}
	return st
}

// RunManager executes runs in the background, one goroutine each, and
// archives the results.
type RunManager struct {
	ctx    context.Context
	wg     sync.WaitGroup
	env    *project.Environment
	store  storage.RunStore
	logger *zap.SugaredLogger

	mu     sync.Mutex
	active map[string]*activeRun
}

// NewRunManager creates a manager whose runs stop when ctx is done.
func NewRunManager(ctx context.Context, env *project.Environment, store storage.RunStore, logger *zap.SugaredLogger) *RunManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RunManager{
		ctx:    ctx,
		env:    env,
		store:  store,
		logger: logger,
		active: make(map[string]*activeRun),
	}
}

// Environment returns the project the manager runs against.
func (m *RunManager) Environment() *project.Environment { return m.env }

// SubmitTrip validates p and starts the trip. The project and seed are
// copied before this returns.
func (m *RunManager) SubmitTrip(p trip.Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	p.Project = p.Project.Clone()
	p.Seed = p.Seed.Clone()
	return m.start(types.KindTrip, func(ctx context.Context, progress types.ProgressFunc) (*types.RunResult, error) {
		return trip.Run(ctx, p, m.env.TripDeps(progress))
	}), nil
}

// SubmitCirculation validates p and starts the circulation.
func (m *RunManager) SubmitCirculation(p circulation.Params) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	p.Project = p.Project.Clone()
	p.Seed = p.Seed.Clone()
	p.Schedule = append([]circulation.PumpOp(nil), p.Schedule...)
	return m.start(types.KindCirculation, func(ctx context.Context, progress types.ProgressFunc) (*types.RunResult, error) {
		return circulation.Run(ctx, p, m.env.CirculationDeps(progress))
	}), nil
}

func (m *RunManager) start(kind types.RunKind, run runFunc) string {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(m.ctx)
	a := &activeRun{
		summary: types.Summary{ID: id, Kind: kind, Status: types.StatusRunning, StartedAt: time.Now()},
		cancel:  cancel,
	}

	m.mu.Lock()
	m.active[id] = a
	m.mu.Unlock()

	m.logger.Infow("run started", "id", id, "kind", kind)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		res := m.execute(ctx, a, run)
		// The archive write must outlive a cancelled run.
		if err := m.store.SaveRun(context.WithoutCancel(ctx), res); err != nil {
			m.logger.Errorw("could not archive run", "id", id, "error", err)
		}

		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()

		m.logger.Infow("run finished", "id", id, "kind", kind, "status", res.Status,
			"snapshots", len(res.Snapshots), "converged", res.Converged)
	}()
	return id
}

// execute always returns a result carrying the run's identity, turning
// errors and panics into a failed status.
func (m *RunManager) execute(ctx context.Context, a *activeRun, run runFunc) (res *types.RunResult) {
	id := a.summary.ID
	progress := func(p types.Progress) {
		m.mu.Lock()
		a.progress = &p
		m.mu.Unlock()
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorw("run panicked", "id", id, "panic", r)
			res = &types.RunResult{Status: types.StatusFailed, Error: fmt.Sprintf("panic: %v", r)}
		}
		res.ID = id
		res.Kind = a.summary.Kind
		if res.StartedAt.IsZero() {
			res.StartedAt = a.summary.StartedAt
		}
		if res.FinishedAt.IsZero() {
			res.FinishedAt = time.Now()
		}
	}()

	res, err := run(ctx, progress)
	if res == nil {
		res = &types.RunResult{Status: types.StatusFailed}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			res.Status = types.StatusCancelled
		} else {
			res.Status = types.StatusFailed
		}
		res.Error = err.Error()
		m.logger.Warnw("run ended with error", "id", id, "error", err)
	}
	return res
}

// Status reports a run, live or archived.
func (m *RunManager) Status(ctx context.Context, id string) (RunStatus, error) {
	m.mu.Lock()
	if a, ok := m.active[id]; ok {
		st := a.status()
		m.mu.Unlock()
		return st, nil
	}
	m.mu.Unlock()

	res, err := m.Get(ctx, id)
	if err != nil {
		return RunStatus{}, err
	}
	return RunStatus{Summary: res.Summarize()}, nil
}

// Get returns the archived result of a finished run.
func (m *RunManager) Get(ctx context.Context, id string) (*types.RunResult, error) {
	res, err := m.store.GetRun(ctx, id)
	if errors.Is(err, storage.ErrRunNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, id)
	}
	return res, err
}

// Running reports whether id is still executing.
func (m *RunManager) Running(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

// List returns active runs followed by archived ones, newest first.
func (m *RunManager) List(ctx context.Context) ([]types.Summary, error) {
	archived, err := m.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	out := make([]types.Summary, 0, len(m.active)+len(archived))
	seen := make(map[string]bool, len(m.active))
	for id, a := range m.active {
		out = append(out, a.summary)
		seen[id] = true
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	for _, s := range archived {
		if !seen[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}

// Cancel stops an active run. Its partial result is still archived.
func (m *RunManager) Cancel(id string) error {
	m.mu.Lock()
	a, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s is not running", ErrUnknownRun, id)
	}
	a.cancel()
	m.logger.Infow("run cancelled", "id", id)
	return nil
}

// Delete removes an archived run.
func (m *RunManager) Delete(ctx context.Context, id string) error {
	if m.Running(id) {
		return fmt.Errorf("%w: %s", ErrRunActive, id)
	}
	err := m.store.DeleteRun(ctx, id)
	if errors.Is(err, storage.ErrRunNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownRun, id)
	}
	return err
}

// Wait blocks until every started run has been archived.
func (m *RunManager) Wait() {
	m.wg.Wait()
}

// Active returns the live status of every executing run, oldest first.
func (m *RunManager) Active() []RunStatus {
	m.mu.Lock()
	out := make([]RunStatus, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, a.status())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
