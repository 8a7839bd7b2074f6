package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/wellsim/internal/storage"
	"github.com/chrissnell/wellsim/internal/storage/storetest"
	"github.com/chrissnell/wellsim/pkg/migrate"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storage.RunStore { return openTemp(t) })
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	s, err := Open(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRun(ctx, storetest.SampleRun("keep", time.Unix(1700000000, 0))); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.GetRun(ctx, "keep"); err != nil {
		t.Errorf("run lost after reopen: %v", err)
	}
	if h := s.CheckHealth(ctx); h.Status != storage.StatusHealthy {
		t.Errorf("health %+v", h)
	}
}

func TestMigrationsRollBack(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	m := migrate.NewMigrator(db, migrate.NewFileProvider(Migrations, "migrations", "", "sqlite"), nil)
	pending, err := m.GetPendingMigrations()
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending migrations %d, err %v", len(pending), err)
	}
	if err := m.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	if v, _ := m.GetCurrentVersion(); v != 2 {
		t.Errorf("version %d after up, want 2", v)
	}
	if err := m.MigrateTo(1); err != nil {
		t.Fatalf("MigrateTo(1): %v", err)
	}
	if v, _ := m.GetCurrentVersion(); v != 1 {
		t.Errorf("version %d after rollback, want 1", v)
	}
	if _, err := db.Exec("SELECT 1 FROM run_snapshots"); err == nil {
		t.Error("run_snapshots still exists after rollback")
	}
}
