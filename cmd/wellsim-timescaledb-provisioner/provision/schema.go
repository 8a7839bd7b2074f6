package provision

import (
	"context"
	"fmt"

	"github.com/chrissnell/wellsim/internal/storage/timescaledb"
	"github.com/chrissnell/wellsim/pkg/migrate"
	"go.uber.org/zap"
)

// ApplySchema runs the run archive migrations as the provisioned role so
// it owns the tables.
func ApplySchema(ctx context.Context, cfg *Config, logger *zap.SugaredLogger) (int, error) {
	fmt.Println("📐 Applying run archive schema")

	db, err := open(cfg.UserConnString())
	if err != nil {
		return 0, err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("failed to connect as %s: %w", cfg.DBUser, err)
	}

	provider := migrate.NewFileProvider(timescaledb.Migrations, "migrations", "", "postgres")
	m := migrate.NewMigrator(db, provider, logger)
	if err := m.MigrateUp(); err != nil {
		return 0, err
	}
	version, err := m.GetCurrentVersion()
	if err != nil {
		return 0, err
	}
	fmt.Printf("✅ Schema at version %d\n", version)
	return version, nil
}

// Check connects as the provisioned role and reports the schema version
// and archived run count.
func Check(ctx context.Context, cfg *Config, logger *zap.SugaredLogger) error {
	db, err := open(cfg.UserConnString())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("❌ cannot connect as %s: %w", cfg.DBUser, err)
	}
	fmt.Printf("✅ Connected to %s as %s\n", cfg.DBName, cfg.DBUser)

	var ext bool
	if err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'timescaledb')").Scan(&ext); err != nil {
		return err
	}
	if !ext {
		return fmt.Errorf("❌ TimescaleDB extension not enabled")
	}
	fmt.Println("✅ TimescaleDB extension enabled")

	provider := migrate.NewFileProvider(timescaledb.Migrations, "migrations", "", "postgres")
	m := migrate.NewMigrator(db, provider, logger)
	pending, err := m.GetPendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		return fmt.Errorf("❌ %d schema migrations pending", len(pending))
	}

	var runs int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&runs); err != nil {
		return fmt.Errorf("❌ cannot read runs: %w", err)
	}
	fmt.Printf("✅ Schema current, %d runs archived\n", runs)
	return nil
}
