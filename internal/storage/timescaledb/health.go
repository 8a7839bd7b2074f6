package timescaledb

import (
	"context"
	"time"

	"github.com/chrissnell/wellsim/internal/storage"
)

// CheckHealth pings the database and runs a trivial query.
func (t *Storage) CheckHealth(ctx context.Context) *storage.HealthData {
	health := &storage.HealthData{
		LastCheck: time.Now(),
		Status:    storage.StatusHealthy,
		Message:   "TimescaleDB connection active",
	}

	if t.TimescaleDBConn == nil {
		health.Status = storage.StatusUnhealthy
		health.Message = "No database connection"
		health.Error = "TimescaleDB connection is nil"
		return health
	}

	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		health.Status = storage.StatusUnhealthy
		health.Message = "Failed to get underlying database connection"
		health.Error = err.Error()
		return health
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		health.Status = storage.StatusUnhealthy
		health.Message = "Database ping failed"
		health.Error = err.Error()
		return health
	}

	var result int
	if err := t.TimescaleDBConn.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error; err != nil {
		health.Status = storage.StatusUnhealthy
		health.Message = "Database query test failed"
		health.Error = err.Error()
		return health
	}
	health.Message = "TimescaleDB operational - ping: OK, query test: OK"
	return health
}
