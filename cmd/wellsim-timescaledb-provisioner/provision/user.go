package provision

import (
	"context"
	"fmt"
)

// CreateUser creates the database user with generated password and grants privileges
func CreateUser(ctx context.Context, cfg *Config) error {
	fmt.Println("👤 Creating User")

	db, err := open(cfg.AdminConnString("postgres"))
	if err != nil {
		return err
	}
	defer db.Close()

	createUserSQL := fmt.Sprintf("CREATE USER %s WITH PASSWORD %s", ident(cfg.DBUser), literal(cfg.DBPassword))
	if _, err := db.ExecContext(ctx, createUserSQL); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	fmt.Printf("✅ User '%s' created\n", cfg.DBUser)

	grantDBSQL := fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s", ident(cfg.DBName), ident(cfg.DBUser))
	if _, err := db.ExecContext(ctx, grantDBSQL); err != nil {
		return fmt.Errorf("failed to grant database privileges: %w", err)
	}

	target, err := open(cfg.AdminConnString(cfg.DBName))
	if err != nil {
		return err
	}
	defer target.Close()

	for _, stmt := range []string{
		"GRANT ALL ON SCHEMA public TO %s",
		"ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON TABLES TO %s",
		"ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON SEQUENCES TO %s",
	} {
		if _, err := target.ExecContext(ctx, fmt.Sprintf(stmt, ident(cfg.DBUser))); err != nil {
			return fmt.Errorf("failed to grant privileges: %w", err)
		}
	}
	fmt.Println("✅ Schema and default privileges granted")
	return nil
}
