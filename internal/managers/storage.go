package managers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/wellsim/internal/storage"
	"github.com/chrissnell/wellsim/internal/storage/memory"
	"github.com/chrissnell/wellsim/internal/storage/sqlite"
	"github.com/chrissnell/wellsim/internal/storage/timescaledb"
	"github.com/chrissnell/wellsim/internal/types"
	"github.com/chrissnell/wellsim/pkg/config"
	"go.uber.org/zap"
)

// HealthInterval is how often backends are checked.
const HealthInterval = 60 * time.Second

// StorageManager holds our active storage backends. Runs are written to
// every engine and read from the first.
type StorageManager struct {
	Engines []StorageEngine
	Health  *storage.HealthManager
	logger  *zap.SugaredLogger
}

// StorageEngine is one named backend.
type StorageEngine struct {
	Name   string
	Engine storage.RunStore
}

// NewStorageManager opens every configured backend. With none configured the
// runs are kept in memory.
func NewStorageManager(ctx context.Context, c config.StorageData, logger *zap.SugaredLogger) (*StorageManager, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &StorageManager{Health: storage.NewHealthManager(), logger: logger}

	// Check the configuration for the supported storage backends
	// and enable them if found
	if c.TimescaleDB != nil && c.TimescaleDB.ConnectionString != "" {
		if err := s.AddEngine(ctx, "timescaledb", c); err != nil {
			s.Close()
			return nil, fmt.Errorf("could not add TimescaleDB storage backend: %v", err)
		}
	}

	if c.SQLite != nil && c.SQLite.Path != "" {
		if err := s.AddEngine(ctx, "sqlite", c); err != nil {
			s.Close()
			return nil, fmt.Errorf("could not add SQLite storage backend: %v", err)
		}
	}

	if len(s.Engines) == 0 {
		if err := s.AddEngine(ctx, "memory", c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddEngine opens and adds a storage backend to the StorageManager
func (s *StorageManager) AddEngine(ctx context.Context, engineName string, c config.StorageData) error {
	var (
		engine storage.RunStore
		err    error
	)

	switch engineName {
	case "timescaledb":
		engine, err = timescaledb.New(ctx, c.TimescaleDB.ConnectionString, s.logger.Desugar().Named("timescaledb"))
	case "sqlite":
		engine, err = sqlite.Open(ctx, c.SQLite.Path, s.logger.Named("sqlite"))
	case "memory":
		engine = memory.New()
	default:
		return fmt.Errorf("unknown storage backend %q", engineName)
	}
	if err != nil {
		return err
	}

	if checker, ok := engine.(storage.HealthChecker); ok {
		storage.StartHealthMonitor(ctx, s.Health, engineName, checker, HealthInterval, s.logger)
	}
	s.Engines = append(s.Engines, StorageEngine{Name: engineName, Engine: engine})
	s.logger.Infow("storage backend enabled", "backend", engineName)
	return nil
}

// Primary is the backend reads are served from.
func (s *StorageManager) Primary() string {
	if len(s.Engines) == 0 {
		return ""
	}
	return s.Engines[0].Name
}

// SaveRun writes the run to every backend and returns the joined failures.
func (s *StorageManager) SaveRun(ctx context.Context, res *types.RunResult) error {
	var errs []error
	for _, e := range s.Engines {
		if err := e.Engine.SaveRun(ctx, res); err != nil {
			s.logger.Errorw("saving run failed", "backend", e.Name, "id", res.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *StorageManager) GetRun(ctx context.Context, id string) (*types.RunResult, error) {
	if len(s.Engines) == 0 {
		return nil, fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
	}
	return s.Engines[0].Engine.GetRun(ctx, id)
}

func (s *StorageManager) ListRuns(ctx context.Context) ([]types.Summary, error) {
	if len(s.Engines) == 0 {
		return []types.Summary{}, nil
	}
	return s.Engines[0].Engine.ListRuns(ctx)
}

// DeleteRun removes the run everywhere. It is not found only if no backend
// held it.
func (s *StorageManager) DeleteRun(ctx context.Context, id string) error {
	var errs []error
	found := false
	for _, e := range s.Engines {
		err := e.Engine.DeleteRun(ctx, id)
		switch {
		case err == nil:
			found = true
		case errors.Is(err, storage.ErrRunNotFound):
		default:
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
	}
	return nil
}

func (s *StorageManager) Close() error {
	var errs []error
	for _, e := range s.Engines {
		if err := e.Engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		}
	}
	return errors.Join(errs...)
}
