package db

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestMigrate_SkipsAppliedVersions(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer conn.Close()

	dir := writeMigrations(t, map[string]string{
		"002_needs_match.sql":   "ALTER TABLE deal_inventory ADD COLUMN IF NOT EXISTS needs_match BOOLEAN;",
		"001_deal_sniper.sql":   "CREATE TABLE deal_sources (id UUID);",
		"003_price_targets.sql": "CREATE TABLE price_targets (id UUID);",
		"README.md":             "ignored",
	})

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("001_deal_sniper"))
	for _, m := range []struct{ version, stmt string }{
		{"002_needs_match", "ALTER TABLE deal_inventory ADD COLUMN IF NOT EXISTS needs_match"},
		{"003_price_targets", "CREATE TABLE price_targets"},
	} {
		mock.ExpectBegin()
		mock.ExpectExec(m.stmt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("INSERT INTO schema_migrations \\(version\\) VALUES \\(\\$1\\)").
			WithArgs(m.version).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	applied, err := Migrate(context.Background(), conn, dir)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if len(applied) != 2 || applied[0] != "002_needs_match" || applied[1] != "003_price_targets" {
		t.Fatalf("unexpected applied list: %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}

func TestMigrate_FailedFileIsNotRecorded(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer conn.Close()

	dir := writeMigrations(t, map[string]string{
		"001_deal_sniper.sql": "CREATE TABLE deal_sources (id UUID);",
		"002_broken.sql":      "ALTER TABLE nope;",
	})

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE deal_sources").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("001_deal_sniper").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("ALTER TABLE nope").WillReturnError(errors.New(`relation "nope" does not exist`))
	mock.ExpectRollback()

	applied, err := Migrate(context.Background(), conn, dir)
	if err == nil {
		t.Fatal("expected broken migration to fail")
	}
	if len(applied) != 1 || applied[0] != "001_deal_sniper" {
		t.Fatalf("expected only the first file applied, got %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %s", err)
	}
}

func TestMigrate_EmptyDir(t *testing.T) {
	conn, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer conn.Close()
	if _, err := Migrate(context.Background(), conn, t.TempDir()); err == nil {
		t.Fatal("expected error for a directory without migrations")
	}
}
