package restserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/chrissnell/wellsim/internal/circulation"
	"github.com/chrissnell/wellsim/internal/constants"
	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/log"
	"github.com/chrissnell/wellsim/internal/managers"
	"github.com/chrissnell/wellsim/internal/trip"
	"github.com/chrissnell/wellsim/internal/types"
	"github.com/chrissnell/wellsim/pkg/responseformat"
	"github.com/gorilla/mux"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// decodeBody reads a JSON or MessagePack body into v. An empty body leaves
// v untouched.
func (h *Handlers) decodeBody(req *http.Request, v any) error {
	if req.Body == nil {
		return nil
	}
	format := responseformat.JSON
	if strings.HasPrefix(req.Header.Get("Content-Type"), responseformat.MsgPack.ContentType()) {
		format = responseformat.MsgPack
	}
	err := h.formatter.Decode(req.Body, format, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// writeRunError maps manager and parameter errors onto status codes.
func (h *Handlers) writeRunError(w http.ResponseWriter, req *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, managers.ErrUnknownRun):
		status = http.StatusNotFound
	case errors.Is(err, managers.ErrRunActive):
		status = http.StatusConflict
	case errors.Is(err, trip.ErrInvalidParams), errors.Is(err, circulation.ErrInvalidParams):
		status = http.StatusBadRequest
	default:
		log.Errorw("request failed", "path", req.URL.Path, "error", err)
	}
	h.formatter.WriteError(w, req, status, err.Error())
}

// resolveSeed picks the starting state of a chained run: an explicit seed,
// or the final state of the run named by from.
func (h *Handlers) resolveSeed(ctx context.Context, seed *types.SeedState, from string) (*types.SeedState, error) {
	if from == "" {
		return seed, nil
	}
	if seed != nil {
		return nil, fmt.Errorf("%w: seed and seed_from are exclusive", trip.ErrInvalidParams)
	}
	if h.controller.Runs.Running(from) {
		return nil, fmt.Errorf("%w: %s", managers.ErrRunActive, from)
	}
	res, err := h.controller.Runs.Get(ctx, from)
	if err != nil {
		return nil, err
	}
	if res.Final == nil {
		return nil, fmt.Errorf("%w: run %s left no final state", trip.ErrInvalidParams, from)
	}
	return res.Final, nil
}

func (h *Handlers) accepted(w http.ResponseWriter, req *http.Request, id string, kind types.RunKind) {
	base := "/api/runs/" + id
	h.formatter.WriteStatus(w, req, http.StatusAccepted, SubmitResponse{
		ID:     id,
		Kind:   kind,
		Status: types.StatusRunning,
		Links: map[string]string{
			"status":    base,
			"result":    base + "/result",
			"snapshots": base + "/snapshots",
			"cancel":    base + "/cancel",
		},
	}, map[string]string{"Location": base})
}

// SubmitTrip starts a trip from the configured trip section with the
// request's overrides applied.
func (h *Handlers) SubmitTrip(w http.ResponseWriter, req *http.Request) {
	body := TripRequest{Trip: h.controller.config.Trip}
	if err := h.decodeBody(req, &body); err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	p, err := h.controller.Runs.Environment().TripParams(body.Trip)
	if err != nil {
		h.writeRunError(w, req, err)
		return
	}
	if p.Seed, err = h.resolveSeed(req.Context(), body.Seed, body.SeedFrom); err != nil {
		h.writeRunError(w, req, err)
		return
	}

	id, err := h.controller.Runs.SubmitTrip(p)
	if err != nil {
		h.writeRunError(w, req, err)
		return
	}
	h.accepted(w, req, id, types.KindTrip)
}

// SubmitCirculation starts a circulation the same way.
func (h *Handlers) SubmitCirculation(w http.ResponseWriter, req *http.Request) {
	body := CirculationRequest{Circulation: h.controller.config.Circulation}
	if err := h.decodeBody(req, &body); err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	p, err := h.controller.Runs.Environment().CirculationParams(body.Circulation)
	if err != nil {
		h.writeRunError(w, req, err)
		return
	}
	p.BitMD = body.BitMD
	if p.Seed, err = h.resolveSeed(req.Context(), body.Seed, body.SeedFrom); err != nil {
		h.writeRunError(w, req, err)
		return
	}

	id, err := h.controller.Runs.SubmitCirculation(p)
	if err != nil {
		h.writeRunError(w, req, err)
		return
	}
	h.accepted(w, req, id, types.KindCirculation)
}

// ListRuns returns run summaries, optionally filtered by ?kind= and ?status=.
func (h *Handlers) ListRuns(w http.ResponseWriter, req *http.Request) {
	list, err := h.controller.Runs.List(req.Context())
	if err != nil {
		h.writeRunError(w, req, err)
		return
	}
	kind := types.RunKind(req.URL.Query().Get("kind"))
	status := types.RunStatus(req.URL.Query().Get("status"))
	out := make([]types.Summary, 0, len(list))
	for _, s := range list {
		if (kind == "" || s.Kind == kind) && (status == "" || s.Status == status) {
			out = append(out, s)
		}
	}
	h.formatter.WriteResponse(w, req, out, nil)
}

// GetRunStatus returns the live status of a run, with progress while it
// executes.
func (h *Handlers) GetRunStatus(w http.ResponseWriter, req *http.Request) {
	st, err := h.controller.Runs.Status(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		h.writeRunError(w, req, err)
		return
	}
	h.formatter.WriteResponse(w, req, st, nil)
}

// finished loads the archived result of the run named in the path.
func (h *Handlers) finished(w http.ResponseWriter, req *http.Request) (*types.RunResult, bool) {
	id := mux.Vars(req)["id"]
	if h.controller.Runs.Running(id) {
		h.writeRunError(w, req, fmt.Errorf("%w: %s", managers.ErrRunActive, id))
		return nil, false
	}
	res, err := h.controller.Runs.Get(req.Context(), id)
	if err != nil {
		h.writeRunError(w, req, err)
		return nil, false
	}
	return res, true
}

// GetRunResult returns the complete result of a finished run.
func (h *Handlers) GetRunResult(w http.ResponseWriter, req *http.Request) {
	res, ok := h.finished(w, req)
	if !ok {
		return
	}
	h.formatter.WriteResponse(w, req, res, nil)
}

// GetRunSnapshots pages through snapshots with ?offset= and ?limit=.
func (h *Handlers) GetRunSnapshots(w http.ResponseWriter, req *http.Request) {
	offset, err := queryInt(req, "offset", 0)
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := queryInt(req, "limit", 0)
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusBadRequest, err.Error())
		return
	}

	res, ok := h.finished(w, req)
	if !ok {
		return
	}
	total := len(res.Snapshots)
	from := min(offset, total)
	to := total
	if limit > 0 {
		to = from + min(limit, total-from)
	}
	h.formatter.WriteResponse(w, req, SnapshotsResponse{
		ID:        res.ID,
		Total:     total,
		Offset:    from,
		Snapshots: res.Snapshots[from:to],
	}, nil)
}

// GetRunTable renders a finished run as a plain-text table.
func (h *Handlers) GetRunTable(w http.ResponseWriter, req *http.Request) {
	res, ok := h.finished(w, req)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := responseformat.WriteTable(w, res); err != nil {
		log.Errorw("error writing run table", "id", res.ID, "error", err)
	}
}

// CancelRun stops an executing run.
func (h *Handlers) CancelRun(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	if err := h.controller.Runs.Cancel(id); err != nil {
		h.writeRunError(w, req, err)
		return
	}
	h.formatter.WriteStatus(w, req, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"}, nil)
}

// DeleteRun removes a finished run from storage.
func (h *Handlers) DeleteRun(w http.ResponseWriter, req *http.Request) {
	if err := h.controller.Runs.Delete(req.Context(), mux.Vars(req)["id"]); err != nil {
		h.writeRunError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetProject describes the loaded well and fluid library.
func (h *Handlers) GetProject(w http.ResponseWriter, req *http.Request) {
	env := h.controller.Runs.Environment()
	fluids := make([]fluid.Fluid, 0, len(env.Fluids))
	for _, f := range env.Fluids {
		fluids = append(fluids, f)
	}
	sort.Slice(fluids, func(i, j int) bool { return fluids[i].Name < fluids[j].Name })

	h.formatter.WriteResponse(w, req, ProjectResponse{Project: env.Snapshot, Fluids: fluids}, nil)
}

// GetStatus reports storage health, executing runs and recent requests.
func (h *Handlers) GetStatus(w http.ResponseWriter, req *http.Request) {
	health, primary := h.controller.storageHealth()
	h.formatter.WriteResponse(w, req, StatusResponse{
		Version:      constants.Version,
		Storage:      health,
		Primary:      primary,
		ActiveRuns:   h.controller.Runs.Active(),
		HTTPRequests: log.GetHTTPLogBuffer().Entries(),
	}, nil)
}

func queryInt(req *http.Request, name string, def int) (int, error) {
	s := req.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}
