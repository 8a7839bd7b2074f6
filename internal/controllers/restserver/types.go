package restserver

import (
	"github.com/chrissnell/wellsim/internal/fluid"
	"github.com/chrissnell/wellsim/internal/log"
	"github.com/chrissnell/wellsim/internal/managers"
	"github.com/chrissnell/wellsim/internal/storage"
	"github.com/chrissnell/wellsim/internal/types"
	"github.com/chrissnell/wellsim/pkg/config"
)

// TripRequest starts a trip. Trip fields override the configured trip
// section; SeedFrom names a finished run whose final state is the start.
type TripRequest struct {
	Trip     config.TripData  `json:"trip"`
	Seed     *types.SeedState `json:"seed,omitempty"`
	SeedFrom string           `json:"seed_from,omitempty"`
}

// CirculationRequest starts a circulation the same way.
type CirculationRequest struct {
	Circulation config.CirculationData `json:"circulation"`
	BitMD       float64                `json:"bit_md,omitempty"`
	Seed        *types.SeedState       `json:"seed,omitempty"`
	SeedFrom    string                 `json:"seed_from,omitempty"`
}

// SubmitResponse acknowledges a started run.
type SubmitResponse struct {
	ID     string            `json:"id"`
	Kind   types.RunKind     `json:"kind"`
	Status types.RunStatus   `json:"status"`
	Links  map[string]string `json:"links"`
}

// ProjectResponse describes the loaded project.
type ProjectResponse struct {
	Project types.ProjectSnapshot `json:"project"`
	Fluids  []fluid.Fluid         `json:"fluids"`
}

// SnapshotsResponse is a page of a run's snapshots.
type SnapshotsResponse struct {
	ID        string               `json:"id"`
	Total     int                  `json:"total"`
	Offset    int                  `json:"offset"`
	Snapshots []types.StepSnapshot `json:"snapshots"`
}

// StatusResponse is the service health view.
type StatusResponse struct {
	Version      string                        `json:"version"`
	Storage      map[string]storage.HealthData `json:"storage"`
	Primary      string                        `json:"primary_storage"`
	ActiveRuns   []managers.RunStatus          `json:"active_runs"`
	HTTPRequests []log.HTTPLogEntry            `json:"http_requests"`
}
