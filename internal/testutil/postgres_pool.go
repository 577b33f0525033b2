// Package testutil holds database fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var nonIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)

// PostgresDSN returns the DSN for integration tests, or "" when none is set.
func PostgresDSN() string {
	if dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL")); dsn != "" {
		return dsn
	}
	return strings.TrimSpace(os.Getenv("DATABASE_URL"))
}

// OpenPGXPool returns a pool whose connections use a fresh schema, dropped
// at test end. Without a DSN the test is skipped; the SQLite backend covers
// the same behaviour.
func OpenPGXPool(t *testing.T, prefix string) *pgxpool.Pool {
	t.Helper()

	dsn := PostgresDSN()
	if dsn == "" {
		t.Skip("set TEST_DATABASE_URL to run PostgreSQL integration tests")
	}
	ctx := context.Background()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse postgres DSN: %v", err)
	}

	schema := newSchemaName(prefix)
	ident := pgx.Identifier{schema}.Sanitize()

	admin, err := pgx.ConnectConfig(ctx, cfg.ConnConfig.Copy())
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+ident); err != nil {
		_ = admin.Close(ctx)
		t.Fatalf("create test schema %s: %v", schema, err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(ctx, "DROP SCHEMA IF EXISTS "+ident+" CASCADE")
		_ = admin.Close(ctx)
	})

	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open postgres test pool: %v", err)
	}
	// Registered after the schema drop, so it runs first.
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("ping postgres test pool: %v", err)
	}
	return pool
}

// newSchemaName builds a unique lower-case identifier within PostgreSQL's
// 63 byte limit.
func newSchemaName(prefix string) string {
	base := strings.Trim(nonIdentChars.ReplaceAllString(strings.ToLower(prefix), "_"), "_")
	if base == "" {
		base = "test"
	}

	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	const maxIdentLen = 63
	if maxBase := maxIdentLen - len("t__") - len(suffix); len(base) > maxBase {
		base = base[:maxBase]
	}
	return fmt.Sprintf("t_%s_%s", base, suffix)
}
