// Package testutil wires repository tests to a live Postgres when one is reachable.
//
// Tests using WithAutoDB skip unless the database answers a ping. Set TEST_REQUIRE_DB=true
// in CI to turn the skip into a failure, and TEST_DB_EPHEMERAL=true to give each test
// its own schema instead of truncating the shared one.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	// Import pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/target/renewal-risk-api/internal/migrate"
)

// TestingTB is the subset of testing.TB the helpers need.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

// TestDBConfig holds connection settings for the test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig reads TEST_DB_* overrides. The port defaults to 55432 so a developer's
// own Postgres on 5432 is never truncated; CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "renewal"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "renewal"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "renewal_test"),
	}
}

// DSN renders the config as a pgx URL, optionally pinned to a search_path.
func (c TestDBConfig) DSN(searchPath string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", getEnvOrDefault("DB_SSL_MODE", "disable"))
	if searchPath != "" {
		q.Set("search_path", searchPath)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// cleanupTables lists every application table, children first.
var cleanupTables = []string{
	"webhook_dead_letter_queue",
	"webhook_delivery_state",
	"renewal_risk_scores",
	"calculation_jobs",
	"renewal_offers",
	"resident_ledger",
	"leases",
	"residents",
	"unit_pricing",
	"units",
	"unit_types",
	"properties",
}

// SkipIfNoTestDB skips the test when the database does not answer a ping.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()
	db, err := sql.Open("pgx", DefaultTestDBConfig().DSN(""))
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = db.PingContext(ctx)
		cancel()
		closeAndLog(t, "probe DB", db)
	}
	if err == nil {
		return
	}
	if envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") {
		t.Fatal("Test database not available:", err)
	}
	t.Skip("Test database not available:", err)
}

// WithAutoDB runs fn against a migrated, empty database.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	SkipIfNoTestDB(t)
	if envBool("TEST_DB_EPHEMERAL") {
		fn(setupEphemeralSchema(t))
		return
	}
	fn(setupSharedDB(t))
}

func setupSharedDB(t TestingTB) *sql.DB {
	t.Helper()
	db := openAndMigrate(t, DefaultTestDBConfig().DSN(""))
	truncate(t, db)
	t.Cleanup(func() {
		truncate(t, db)
		closeAndLog(t, "test DB", db)
	})
	return db
}

// setupEphemeralSchema migrates a fresh schema and drops it when the test ends.
func setupEphemeralSchema(t TestingTB) *sql.DB {
	t.Helper()
	cfg := DefaultTestDBConfig()
	admin, err := sql.Open("pgx", cfg.DSN(""))
	if err != nil {
		t.Fatal("Failed to open admin DB:", err)
	}
	schema := schemaName()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		closeAndLog(t, "admin DB", admin)
		t.Fatalf("Failed to create schema %s: %v", schema, err)
	}
	t.Logf("Using ephemeral schema: %s", schema)

	db := openAndMigrate(t, cfg.DSN(schema+",public"))
	t.Cleanup(func() {
		closeAndLog(t, "schema DB", db)
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		if _, err := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
		closeAndLog(t, "admin DB", admin)
	})
	return db
}

func openAndMigrate(t TestingTB, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatal("Failed to open database:", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := migrate.Run(ctx, db); err != nil {
		closeAndLog(t, "test DB", db)
		t.Fatal("Failed to run migrations:", err)
	}
	return db
}

func truncate(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "TRUNCATE "+strings.Join(cleanupTables, ", ")+" CASCADE"); err != nil {
		t.Fatalf("Failed to truncate test tables: %v", err)
	}
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

func closeAndLog(t TestingTB, name string, closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		t.Logf("warning: failed to close %s: %v", name, err)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// StringPtr returns a pointer to the given string value.
func StringPtr(s string) *string {
	return &s
}
