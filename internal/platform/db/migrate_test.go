package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadMigrations(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_scheduling.sql": "CREATE TABLE appointment (id UUID PRIMARY KEY);",
		"002_indexes.sql":    "CREATE INDEX idx_appointment_day ON appointment (id);",
		"003_audit.sql":      "CREATE TABLE audit_log (id UUID PRIMARY KEY);",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}

	first := migrations[0]
	if first.Version != 1 || first.Name != "001_scheduling.sql" {
		t.Errorf("first = v%d %s", first.Version, first.Name)
	}
	if first.SQL != "CREATE TABLE appointment (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL: %s", first.SQL)
	}
	if migrations[1].Version != 2 || migrations[2].Version != 3 {
		t.Errorf("versions = %d, %d", migrations[1].Version, migrations[2].Version)
	}
}

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"010_later.sql":      "SELECT 10;",
		"002_indexes.sql":    "SELECT 2;",
		"001_scheduling.sql": "SELECT 1;",
		"005_audit.sql":      "SELECT 5;",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}

	want := []int{1, 2, 5, 10}
	if len(migrations) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(migrations))
	}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration[%d] version = %d, want %d", i, migrations[i].Version, v)
		}
	}
}

func TestLoadMigrations_SkipsInvalidFilenames(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_scheduling.sql": "SELECT 1;",
		"002_indexes.sql":    "SELECT 2;",
		"readme.sql":         "-- no version prefix",
		"notes.txt":          "not sql",
		"abc_bad.sql":        "-- non-numeric prefix",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("versions = %d, %d", migrations[0].Version, migrations[1].Version)
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	migrations, err := NewMigrator(nil, t.TempDir()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	if _, err := NewMigrator(nil, "/nonexistent/migrations").LoadMigrations(); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestMigrationStatus_AppliedAndPending(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_scheduling.sql": "SELECT 1;",
		"002_indexes.sql":    "SELECT 2;",
		"003_audit.sql":      "SELECT 3;",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}

	// Status is built from the loaded files and the applied-version set;
	// only the first migration has been applied here.
	applied := map[int]bool{1: true}
	var statuses []MigrationStatus
	for _, mig := range migrations {
		statuses = append(statuses, MigrationStatus{
			Version: mig.Version,
			Name:    mig.Name,
			Applied: applied[mig.Version],
		})
	}

	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}
	if !statuses[0].Applied {
		t.Error("migration 001 should be applied")
	}
	for _, s := range statuses[1:] {
		if s.Applied {
			t.Errorf("migration %s should be pending", s.Name)
		}
		if s.AppliedAt != nil {
			t.Errorf("migration %s: AppliedAt set while pending", s.Name)
		}
	}
}

func TestNewMigrator(t *testing.T) {
	m := NewMigrator(nil, "/srv/migrations")
	if m == nil {
		t.Fatal("expected migrator")
	}
	if m.dir != "/srv/migrations" {
		t.Errorf("dir = %s", m.dir)
	}
}
