package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chrissnell/wellsim/internal/controllers/restserver"
	"github.com/chrissnell/wellsim/internal/log"
	"github.com/chrissnell/wellsim/internal/managers"
	"github.com/chrissnell/wellsim/internal/project"
	"github.com/chrissnell/wellsim/pkg/config"
	"go.uber.org/zap"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// load reads the configuration and builds the project environment.
func (a *App) load() (*config.ConfigData, *project.Environment, error) {
	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading configuration: %w", err)
	}
	env, err := project.Load(cfg, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("error building project %q: %w", cfg.Project.Name, err)
	}
	return cfg, env, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// Serve starts the REST server and blocks until shutdown. Executing runs
// are cancelled and archived before it returns.
func (a *App) Serve(ctx context.Context) error {
	var wg sync.WaitGroup

	cfg, env, err := a.load()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(ctx)
	defer cancel()

	// Initialize the storage manager
	storageManager, err := managers.NewStorageManager(ctx, cfg.Storage, a.logger.Named("storage"))
	if err != nil {
		return err
	}
	defer storageManager.Close()

	runs := managers.NewRunManager(ctx, env, storageManager, a.logger.Named("runs"))

	rest, err := restserver.NewController(ctx, &wg, cfg, runs, storageManager, a.logger.Named("rest"))
	if err != nil {
		return err
	}
	if err := rest.StartController(); err != nil {
		return err
	}

	log.Infow("Application started successfully", "project", cfg.Project.Name, "addr", rest.Server.Addr)

	<-ctx.Done()
	log.Info("shutdown signal received, initiating graceful shutdown...")

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	runs.Wait()
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}
