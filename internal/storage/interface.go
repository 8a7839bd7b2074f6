// Package storage defines the run archive and its backends.
package storage

import (
	"context"
	"errors"

	"github.com/chrissnell/wellsim/internal/types"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// RunStore archives finished runs. SaveRun replaces any run with the same ID.
type RunStore interface {
	SaveRun(ctx context.Context, res *types.RunResult) error
	GetRun(ctx context.Context, id string) (*types.RunResult, error)
	ListRuns(ctx context.Context) ([]types.Summary, error)
	DeleteRun(ctx context.Context, id string) error
	Close() error
}

// HealthChecker defines the interface for storage backends to implement health checks
type HealthChecker interface {
	CheckHealth(ctx context.Context) *HealthData
}
