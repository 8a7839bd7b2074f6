package types

import (
	"time"
)

// RunKind names the loop that produced a result.
type RunKind string

const (
	KindTrip        RunKind = "trip"
	KindCirculation RunKind = "circulation"
)

// RunStatus is the lifecycle state of a managed run.
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// DiagnosticLevel grades a Diagnostic.
type DiagnosticLevel string

const (
	LevelInfo    DiagnosticLevel = "info"
	LevelWarning DiagnosticLevel = "warning"
)

// Diagnostic records a degraded result inside an otherwise successful run,
// such as an equalization that hit its iteration cap.
type Diagnostic struct {
	Level   DiagnosticLevel `json:"level"`
	BitMD   float64         `json:"bit_md"`
	Source  string          `json:"source"`
	Message string          `json:"message"`
}

// RunResult is the full output of one run.
type RunResult struct {
	ID          string         `json:"id"`
	Kind        RunKind        `json:"kind"`
	Status      RunStatus      `json:"status"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
	Converged   bool           `json:"converged"`
	Snapshots   []StepSnapshot `json:"snapshots"`
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`
	Iterations  int            `json:"iterations"`
	// Final is the state left behind, ready to seed a chained run.
	Final *SeedState `json:"final,omitempty"`
}

// Warn appends a warning diagnostic and marks the run as not converged.
func (r *RunResult) Warn(source string, bitMD float64, message string) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{
		Level:   LevelWarning,
		BitMD:   bitMD,
		Source:  source,
		Message: message,
	})
	r.Converged = false
}

// Note appends an informational diagnostic; convergence is unaffected.
func (r *RunResult) Note(source string, bitMD float64, message string) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{
		Level:   LevelInfo,
		BitMD:   bitMD,
		Source:  source,
		Message: message,
	})
}

// Summary is the list view of a run without its snapshots.
type Summary struct {
	ID          string    `json:"id"`
	Kind        RunKind   `json:"kind"`
	Status      RunStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Converged   bool      `json:"converged"`
	Snapshots   int       `json:"snapshots"`
	Diagnostics int       `json:"diagnostics"`
}

// Summarize drops the bulky parts of a result.
func (r *RunResult) Summarize() Summary {
	return Summary{
		ID:          r.ID,
		Kind:        r.Kind,
		Status:      r.Status,
		Error:       r.Error,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Converged:   r.Converged,
		Snapshots:   len(r.Snapshots),
		Diagnostics: len(r.Diagnostics),
	}
}

// Progress is reported while a run is executing.
type Progress struct {
	Phase      Phase   `json:"phase"`
	BitMD      float64 `json:"bit_md"`
	Pumped     float64 `json:"pumped_m3,omitempty"`
	FloatState string  `json:"float_state"`
	Iteration  int     `json:"iteration"`
	Fraction   float64 `json:"fraction"`
}

// ProgressFunc receives Progress. It must not block; runs call it inline.
type ProgressFunc func(Progress)
