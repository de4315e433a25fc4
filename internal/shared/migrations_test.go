package shared

import (
	"context"
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	ctx := context.Background()

	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) == 0 {
			t.Fatal("expected at least one migration")
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}

		if migrations[0].Name != "create_kv_entries" {
			t.Errorf("expected first migration name create_kv_entries, got %q", migrations[0].Name)
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()
		ConfigureDatabase(db, ":memory:", 0, 0)

		if err := RunMigrations(ctx, db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		if _, err := db.Exec("SELECT key, value, expires_at FROM kv_entries LIMIT 1"); err != nil {
			t.Errorf("kv_entries table should exist after migrations: %v", err)
		}

		applied, err := AppliedVersions(ctx, db)
		if err != nil {
			t.Fatalf("failed to read applied versions: %v", err)
		}
		before := len(applied)

		if err := RollbackMigration(ctx, db); err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}

		applied, err = AppliedVersions(ctx, db)
		if err != nil {
			t.Fatalf("failed to read applied versions after rollback: %v", err)
		}
		if len(applied) != before-1 {
			t.Errorf("expected %d applied migrations after rollback, got %d", before-1, len(applied))
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()
		ConfigureDatabase(db, ":memory:", 0, 0)

		for range 2 {
			if err := RunMigrations(ctx, db); err != nil {
				t.Fatalf("failed to run migrations: %v", err)
			}
		}

		applied, err := AppliedVersions(ctx, db)
		if err != nil {
			t.Fatalf("failed to read applied versions: %v", err)
		}

		migrations, _ := loadMigrations()
		if len(applied) != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), len(applied))
		}
	})

	t.Run("splitStatements", func(t *testing.T) {
		stmts := splitStatements("-- header\nCREATE TABLE a (x INT); -- trailing\n\nCREATE TABLE b (y INT);\n")
		if len(stmts) != 2 {
			t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
		}
		if stmts[1] != "CREATE TABLE b (y INT)" {
			t.Errorf("unexpected statement %q", stmts[1])
		}
	})
}
