// Package timescaledb is a RunStore backed by PostgreSQL/TimescaleDB
// through gorm.
package timescaledb

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/wellsim/internal/storage"
	"github.com/chrissnell/wellsim/internal/types"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Migrations holds the SQL schema applied by cmd/migrate. New also keeps
// the tables current through AutoMigrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// We declare the Tabler interface for purposes of customizing the table name in the DB
type Tabler interface {
	TableName() string
}

// Run is the runs table row.
type Run struct {
	ID              string    `gorm:"primaryKey"`
	Kind            string    `gorm:"not null"`
	Status          string    `gorm:"not null"`
	Error           string    `gorm:"not null;default:''"`
	StartedAt       time.Time `gorm:"index:idx_runs_started_at;not null"`
	FinishedAt      time.Time `gorm:"not null"`
	Converged       bool
	Iterations      int
	SnapshotCount   int
	DiagnosticCount int
	Diagnostics     []byte
	Final           []byte
}

func (Run) TableName() string { return "runs" }

// RunSnapshot is the run_snapshots table row.
type RunSnapshot struct {
	RunID string  `gorm:"primaryKey"`
	Idx   int     `gorm:"primaryKey;autoIncrement:false"`
	Phase string  `gorm:"not null"`
	BitMD float64 `gorm:"column:bit_md;not null"`
	Data  []byte  `gorm:"not null"`
}

func (RunSnapshot) TableName() string { return "run_snapshots" }

func toRow(rec storage.RunRecord) Run {
	return Run(rec)
}

func fromRow(r Run) storage.RunRecord {
	return storage.RunRecord(r)
}

// Storage holds the connection to a TimescaleDB run archive
type Storage struct {
	TimescaleDBConn *gorm.DB
	logger          *zap.SugaredLogger
}

// CreateConnection opens a gorm connection whose log output goes to zap.
func CreateConnection(connStr string, zl *zap.Logger) (*gorm.DB, error) {
	dbLogger := logger.New(
		zap.NewStdLog(zl),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	return gorm.Open(postgres.Open(connStr), &gorm.Config{Logger: dbLogger})
}

// New sets up a new TimescaleDB run archive
func New(ctx context.Context, connStr string, zl *zap.Logger) (*Storage, error) {
	if zl == nil {
		zl = zap.NewNop()
	}
	t := &Storage{logger: zl.Sugar()}

	t.logger.Info("connecting to TimescaleDB...")
	db, err := CreateConnection(connStr, zl)
	if err != nil {
		t.logger.Warnw("unable to create a TimescaleDB connection", "error", err)
		return nil, err
	}
	t.TimescaleDBConn = db

	t.logger.Info("migrating run tables...")
	if err := db.WithContext(ctx).AutoMigrate(&Run{}, &RunSnapshot{}); err != nil {
		return nil, fmt.Errorf("could not migrate run tables: %w", err)
	}
	return t, nil
}

func (t *Storage) SaveRun(ctx context.Context, res *types.RunResult) error {
	if res.ID == "" {
		return fmt.Errorf("run has no ID")
	}
	rec, snaps, err := storage.EncodeRun(res)
	if err != nil {
		return err
	}

	rows := make([]RunSnapshot, len(snaps))
	for i, s := range snaps {
		rows[i] = RunSnapshot{RunID: s.RunID, Idx: s.Index, Phase: s.Phase, BitMD: s.BitMD, Data: s.Data}
	}

	return t.TimescaleDBConn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", rec.ID).Delete(&RunSnapshot{}).Error; err != nil {
			return fmt.Errorf("clearing snapshots of run %s: %w", rec.ID, err)
		}
		row := toRow(rec)
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("saving run %s: %w", rec.ID, err)
		}
		if len(rows) > 0 {
			if err := tx.CreateInBatches(rows, 500).Error; err != nil {
				return fmt.Errorf("saving snapshots of run %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

func (t *Storage) GetRun(ctx context.Context, id string) (*types.RunResult, error) {
	db := t.TimescaleDBConn.WithContext(ctx)

	var row Run
	err := db.First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}

	var rows []RunSnapshot
	if err := db.Where("run_id = ?", id).Order("idx").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading snapshots of run %s: %w", id, err)
	}
	snaps := make([]storage.SnapshotRecord, len(rows))
	for i, r := range rows {
		snaps[i] = storage.SnapshotRecord{RunID: r.RunID, Index: r.Idx, Phase: r.Phase, BitMD: r.BitMD, Data: r.Data}
	}
	return storage.DecodeRun(fromRow(row), snaps)
}

// ListRuns returns summaries, newest first.
func (t *Storage) ListRuns(ctx context.Context) ([]types.Summary, error) {
	var rows []Run
	err := t.TimescaleDBConn.WithContext(ctx).
		Omit("diagnostics", "final").
		Order("started_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	out := make([]types.Summary, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r).Summary()
	}
	return out, nil
}

func (t *Storage) DeleteRun(ctx context.Context, id string) error {
	return t.TimescaleDBConn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", id).Delete(&RunSnapshot{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&Run{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
		}
		return nil
	})
}

func (t *Storage) Close() error {
	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
