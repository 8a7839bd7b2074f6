// Package provision creates the PostgreSQL database, role and schema the
// TimescaleDB run archive needs.
package provision

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Config holds the provisioning configuration
type Config struct {
	PostgresHost     string
	PostgresPort     int
	PostgresAdmin    string
	PostgresPassword string
	DBName           string
	DBUser           string
	DBPassword       string
	SSLMode          string
	Timezone         string
}

// AdminConnString connects as the admin role to dbname.
func (c *Config) AdminConnString(dbname string) string {
	return keywordConnString(c.PostgresHost, c.PostgresPort, c.PostgresAdmin, c.PostgresPassword, dbname, c.SSLMode)
}

// UserConnString connects as the provisioned role to the run database.
func (c *Config) UserConnString() string {
	return keywordConnString(c.PostgresHost, c.PostgresPort, c.DBUser, c.DBPassword, c.DBName, c.SSLMode)
}

// StorageURL is the connection string written to the wellsim configuration.
func (c *Config) StorageURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	if c.Timezone != "" {
		q.Set("timezone", c.Timezone)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ConfigSnippet is the storage section to paste into the wellsim YAML.
func (c *Config) ConfigSnippet() string {
	return fmt.Sprintf("storage:\n  timescaledb:\n    connection-string: %q\n", c.StorageURL())
}

func keywordConnString(host string, port int, user, password, dbname, sslmode string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteValue(host), port, quoteValue(user), quoteValue(password), quoteValue(dbname), quoteValue(sslmode))
}

// quoteValue quotes a keyword/value connection string value.
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// ident quotes an SQL identifier.
func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// literal quotes an SQL string literal.
func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
