// Package restserver serves run submission and results over HTTP.
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/wellsim/internal/log"
	"github.com/chrissnell/wellsim/internal/managers"
	"github.com/chrissnell/wellsim/internal/storage"
	"github.com/chrissnell/wellsim/pkg/config"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Controller represents the REST server controller
type Controller struct {
	ctx        context.Context
	wg         *sync.WaitGroup
	restConfig config.ServerData
	config     *config.ConfigData
	Server     http.Server
	Runs       *managers.RunManager
	Storage    *managers.StorageManager
	logger     *zap.SugaredLogger
	handlers   *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, cfg *config.ConfigData, runs *managers.RunManager, sm *managers.StorageManager, logger *zap.SugaredLogger) (*Controller, error) {
	if runs == nil {
		return nil, fmt.Errorf("REST server needs a run manager")
	}
	rc := config.ServerData{}
	if cfg.Server != nil {
		rc = *cfg.Server
	}

	ctrl := &Controller{
		ctx:     ctx,
		wg:      wg,
		config:  cfg,
		Runs:    runs,
		Storage: sm,
		logger:  logger,
	}

	// If a ListenAddr was not provided, listen on all interfaces
	if rc.ListenAddr == "" {
		logger.Info("server.listen-addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		rc.ListenAddr = "0.0.0.0"
	}

	if rc.Port == 0 {
		logger.Infof("server.port not provided; defaulting to %d", config.DefaultServerPort)
		rc.Port = config.DefaultServerPort
	}
	ctrl.restConfig = rc

	ctrl.handlers = NewHandlers(ctrl)

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", rc.ListenAddr, rc.Port)
	ctrl.Server.Handler = ctrl.Router()
	ctrl.Server.ReadHeaderTimeout = 10 * time.Second

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	log.Info("Starting REST server controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		var err error
		if c.restConfig.Cert != "" && c.restConfig.Key != "" {
			err = c.Server.ListenAndServeTLS(c.restConfig.Cert, c.restConfig.Key)
		} else {
			err = c.Server.ListenAndServe()
		}
		if err != http.ErrServerClosed {
			log.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	c.logger.Infow("REST server listening", "addr", c.Server.Addr)
	return nil
}

// Router configures the HTTP router with all endpoints
func (c *Controller) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/project", c.handlers.GetProject).Methods(http.MethodGet)
	api.HandleFunc("/status", c.handlers.GetStatus).Methods(http.MethodGet)

	api.HandleFunc("/runs", c.handlers.ListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/trip", c.handlers.SubmitTrip).Methods(http.MethodPost)
	api.HandleFunc("/runs/circulation", c.handlers.SubmitCirculation).Methods(http.MethodPost)
	api.HandleFunc("/runs/{id}", c.handlers.GetRunStatus).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", c.handlers.DeleteRun).Methods(http.MethodDelete)
	api.HandleFunc("/runs/{id}/result", c.handlers.GetRunResult).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/snapshots", c.handlers.GetRunSnapshots).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/table", c.handlers.GetRunTable).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/cancel", c.handlers.CancelRun).Methods(http.MethodPost)

	return router
}

// storageHealth returns the health of every backend and the primary one.
func (c *Controller) storageHealth() (map[string]storage.HealthData, string) {
	if c.Storage == nil {
		return map[string]storage.HealthData{}, ""
	}
	return c.Storage.Health.GetAllHealth(), c.Storage.Primary()
}
