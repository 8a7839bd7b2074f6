package provision

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func open(connStr string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return db, nil
}

// Preflight verifies the server is reachable, TimescaleDB is installed and
// neither the database nor the role exists yet.
func Preflight(ctx context.Context, cfg *Config) error {
	fmt.Println("🔍 Pre-flight Checks")

	db, err := open(cfg.AdminConnString("postgres"))
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("❌ PostgreSQL connection failed: %w", err)
	}
	fmt.Println("✅ PostgreSQL connection successful")

	var available bool
	err = db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_available_extensions WHERE name = 'timescaledb')").Scan(&available)
	if err != nil {
		return err
	}
	if !available {
		return fmt.Errorf("❌ timescaledb extension not found in pg_available_extensions")
	}
	fmt.Println("✅ TimescaleDB extension available")

	var dbExists, userExists bool
	if err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", cfg.DBName).Scan(&dbExists); err != nil {
		return err
	}
	if err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_roles WHERE rolname = $1)", cfg.DBUser).Scan(&userExists); err != nil {
		return err
	}
	if dbExists || userExists {
		return fmt.Errorf("❌ database %q or user %q already exists", cfg.DBName, cfg.DBUser)
	}
	fmt.Println("✅ No existing database/user conflicts")
	fmt.Println()
	return nil
}

// CreateDatabase creates the PostgreSQL database with proper encoding
func CreateDatabase(ctx context.Context, cfg *Config) error {
	fmt.Println("🗄️  Creating Database")

	db, err := open(cfg.AdminConnString("postgres"))
	if err != nil {
		return err
	}
	defer db.Close()

	createDBSQL := fmt.Sprintf("CREATE DATABASE %s ENCODING 'UTF8' TEMPLATE template0", ident(cfg.DBName))
	if _, err := db.ExecContext(ctx, createDBSQL); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	fmt.Printf("✅ Database '%s' created with UTF8 encoding\n", cfg.DBName)
	return nil
}

// EnableTimescaleDB enables the TimescaleDB extension on the database
func EnableTimescaleDB(ctx context.Context, cfg *Config) error {
	fmt.Println("🔌 Enabling TimescaleDB Extension")

	db, err := open(cfg.AdminConnString(cfg.DBName))
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		return fmt.Errorf("failed to create TimescaleDB extension: %w", err)
	}

	var version string
	err = db.QueryRowContext(ctx, "SELECT extversion FROM pg_extension WHERE extname = 'timescaledb'").Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to verify TimescaleDB extension: %w", err)
	}

	fmt.Printf("✅ TimescaleDB extension enabled (version %s)\n", version)
	return nil
}

// DropAll removes the database and role. Used by -reprovision.
func DropAll(ctx context.Context, cfg *Config) error {
	fmt.Println("🧹 Dropping existing database and user")

	db, err := open(cfg.AdminConnString("postgres"))
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "DROP DATABASE IF EXISTS "+ident(cfg.DBName)); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "DROP ROLE IF EXISTS "+ident(cfg.DBUser)); err != nil {
		return fmt.Errorf("failed to drop user: %w", err)
	}
	return nil
}
