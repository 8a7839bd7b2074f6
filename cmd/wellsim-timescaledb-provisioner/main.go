package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/chrissnell/wellsim/cmd/wellsim-timescaledb-provisioner/provision"
	"github.com/chrissnell/wellsim/internal/log"
)

const (
	DefaultDBName    = "wellsim"
	DefaultDBUser    = "wellsim"
	DefaultHost      = "localhost"
	DefaultPort      = 5432
	DefaultSSLMode   = "prefer"
	DefaultTimezone  = "UTC"
	DefaultAdminUser = "postgres"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := flag.NewFlagSet(os.Args[1], flag.ExitOnError)
	cfg := &provision.Config{}
	cmd.StringVar(&cfg.DBName, "db-name", DefaultDBName, "Database name")
	cmd.StringVar(&cfg.DBUser, "db-user", DefaultDBUser, "Database user")
	cmd.StringVar(&cfg.PostgresHost, "postgres-host", DefaultHost, "PostgreSQL host")
	cmd.IntVar(&cfg.PostgresPort, "postgres-port", DefaultPort, "PostgreSQL port")
	cmd.StringVar(&cfg.PostgresAdmin, "postgres-admin", DefaultAdminUser, "PostgreSQL admin user")
	cmd.StringVar(&cfg.PostgresPassword, "postgres-admin-password", "", "PostgreSQL admin password (or use POSTGRES_ADMIN_PASSWORD env var)")
	cmd.StringVar(&cfg.DBPassword, "db-password", "", "Password of the database user; generated by init when empty (or use WELLSIM_DB_PASSWORD env var)")
	cmd.StringVar(&cfg.SSLMode, "ssl-mode", DefaultSSLMode, "SSL mode (disable, require, prefer)")
	cmd.StringVar(&cfg.Timezone, "timezone", DefaultTimezone, "Database timezone")
	reprovision := cmd.Bool("reprovision", false, "Drop existing database and user before provisioning (DESTRUCTIVE)")
	debug := cmd.Bool("debug", false, "Turn on debugging output")
	cmd.Parse(os.Args[2:])

	if cfg.PostgresPassword == "" {
		cfg.PostgresPassword = os.Getenv("POSTGRES_ADMIN_PASSWORD")
	}
	if cfg.DBPassword == "" {
		cfg.DBPassword = os.Getenv("WELLSIM_DB_PASSWORD")
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(ctx, cfg, *reprovision)
	case "check":
		err = provision.Check(ctx, cfg, log.Named("migrate"))
	case "snippet":
		fmt.Print(cfg.ConfigSnippet())
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runInit(ctx context.Context, cfg *provision.Config, reprovision bool) error {
	generated := false
	if cfg.DBPassword == "" {
		pw, err := provision.GeneratePassword(provision.PasswordLength)
		if err != nil {
			return err
		}
		cfg.DBPassword = pw
		generated = true
	}

	if reprovision {
		if err := provision.DropAll(ctx, cfg); err != nil {
			return err
		}
	}
	if err := provision.Preflight(ctx, cfg); err != nil {
		return err
	}
	if err := provision.CreateDatabase(ctx, cfg); err != nil {
		return err
	}
	if err := provision.EnableTimescaleDB(ctx, cfg); err != nil {
		return err
	}
	if err := provision.CreateUser(ctx, cfg); err != nil {
		return err
	}
	if _, err := provision.ApplySchema(ctx, cfg, log.Named("migrate")); err != nil {
		return err
	}

	if generated {
		provision.DisplayPasswordWarning(cfg.DBPassword)
	}
	fmt.Println("Add this to your wellsim configuration:")
	fmt.Println()
	fmt.Print(cfg.ConfigSnippet())
	return nil
}

func printUsage() {
	fmt.Println("wellsim-timescaledb-provisioner - prepare PostgreSQL/TimescaleDB for the wellsim run archive")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  wellsim-timescaledb-provisioner init    [flags]  Create database, user and schema")
	fmt.Println("  wellsim-timescaledb-provisioner check   [flags]  Verify an existing installation")
	fmt.Println("  wellsim-timescaledb-provisioner snippet [flags]  Print the storage configuration section")
	fmt.Println()
	fmt.Println("Run a command with -h to list its flags.")
}
