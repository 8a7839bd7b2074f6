// Package sqlite is a RunStore backed by a local SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/chrissnell/wellsim/internal/storage"
	"github.com/chrissnell/wellsim/internal/types"
	"github.com/chrissnell/wellsim/pkg/migrate"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Migrations holds the schema, applied by Open and by cmd/migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Store archives runs in SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}
	// A single connection keeps the pragma in force and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	provider := migrate.NewFileProvider(Migrations, "migrations", "", "sqlite")
	if err := migrate.NewMigrator(db, provider, logger).MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}

	logger.Infow("sqlite run store ready", "path", path)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) SaveRun(ctx context.Context, res *types.RunResult) error {
	if res.ID == "" {
		return fmt.Errorf("run has no ID")
	}
	rec, snaps, err := storage.EncodeRun(res)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM run_snapshots WHERE run_id = ?", rec.ID); err != nil {
		return fmt.Errorf("clearing snapshots of run %s: %w", rec.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, kind, status, error, started_at, finished_at, converged, iterations,
			 snapshot_count, diagnostic_count, diagnostics, final)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, rec.Status, rec.Error,
		rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano(), rec.Converged, rec.Iterations,
		rec.SnapshotCount, rec.DiagnosticCount, rec.Diagnostics, rec.Final,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", rec.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO run_snapshots (run_id, idx, phase, bit_md, data) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()
	for _, sn := range snaps {
		if _, err := stmt.ExecContext(ctx, sn.RunID, sn.Index, sn.Phase, sn.BitMD, sn.Data); err != nil {
			return fmt.Errorf("saving snapshot %d of run %s: %w", sn.Index, rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", rec.ID, err)
	}
	s.logger.Debugw("saved run", "id", rec.ID, "snapshots", len(snaps))
	return nil
}

const runColumns = `id, kind, status, error, started_at, finished_at, converged, iterations,
	snapshot_count, diagnostic_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, extra ...any) (storage.RunRecord, error) {
	var rec storage.RunRecord
	var started, finished int64
	dest := []any{&rec.ID, &rec.Kind, &rec.Status, &rec.Error, &started, &finished,
		&rec.Converged, &rec.Iterations, &rec.SnapshotCount, &rec.DiagnosticCount}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return storage.RunRecord{}, err
	}
	rec.StartedAt = time.Unix(0, started)
	rec.FinishedAt = time.Unix(0, finished)
	return rec, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*types.RunResult, error) {
	var diag, final []byte
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+", diagnostics, final FROM runs WHERE id = ?", id)
	rec, err := scanRecord(row, &diag, &final)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}
	rec.Diagnostics = diag
	rec.Final = final

	rows, err := s.db.QueryContext(ctx, "SELECT idx, phase, bit_md, data FROM run_snapshots WHERE run_id = ? ORDER BY idx", id)
	if err != nil {
		return nil, fmt.Errorf("loading snapshots of run %s: %w", id, err)
	}
	defer rows.Close()

	var snaps []storage.SnapshotRecord
	for rows.Next() {
		sn := storage.SnapshotRecord{RunID: id}
		if err := rows.Scan(&sn.Index, &sn.Phase, &sn.BitMD, &sn.Data); err != nil {
			return nil, fmt.Errorf("reading snapshot of run %s: %w", id, err)
		}
		snaps = append(snaps, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return storage.DecodeRun(rec, snaps)
}

// ListRuns returns summaries, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]types.Summary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+runColumns+" FROM runs ORDER BY started_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	out := []types.Summary{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("reading run: %w", err)
		}
		out = append(out, rec.Summary())
	}
	return out, rows.Err()
}

func (s *Store) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM run_snapshots WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("deleting snapshots of run %s: %w", id, err)
	}
	r, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	if n, _ := r.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
	}
	return tx.Commit()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CheckHealth pings the database.
func (s *Store) CheckHealth(ctx context.Context) *storage.HealthData {
	health := &storage.HealthData{LastCheck: time.Now(), Status: storage.StatusHealthy, Message: "SQLite database operational"}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		health.Status = storage.StatusUnhealthy
		health.Message = "SQLite query test failed"
		health.Error = err.Error()
		return health
	}
	health.Message = fmt.Sprintf("SQLite database operational, %d runs archived", n)
	return health
}
