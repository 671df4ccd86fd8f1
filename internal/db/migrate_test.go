package db_test

import (
	"context"
	"testing"

	dbfs "github.com/kaamsetu/kaamsetu/db"
	"github.com/kaamsetu/kaamsetu/internal/db"
)

// Migrate must be safe to run on every startup: already-applied migrations
// are skipped and the seed upsert overwrites nothing the second time.
func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()

	d, err := db.New(ctx, ":memory:", nil)
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	defer d.Close()

	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	// run again to ensure idempotency
	if err := db.Migrate(ctx, d, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}

	var count int
	row := d.QueryRow(ctx, `SELECT COUNT(1) FROM schema_migrations`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan schema_migrations count: %v", err)
	}
	if count < 1 {
		t.Fatalf("expected at least 1 migration recorded, got %d", count)
	}

	// spot-check tables from the embedded migrations
	for _, table := range []string{"identities", "conversation_states", "jobs", "applications", "notifications", "dead_letter_notifications", "intent_schemas"} {
		var name string
		r := d.QueryRow(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name = ?`, table)
		if err := r.Scan(&name); err != nil {
			t.Fatalf("expected table %s to exist: %v", table, err)
		}
	}

	// the default intent schema is seeded exactly once
	var schemas int
	if err := d.QueryRow(ctx, `SELECT COUNT(1) FROM intent_schemas WHERE version = 'v1'`).Scan(&schemas); err != nil {
		t.Fatalf("scan intent_schemas count: %v", err)
	}
	if schemas != 1 {
		t.Fatalf("expected 1 seeded schema, got %d", schemas)
	}
}
