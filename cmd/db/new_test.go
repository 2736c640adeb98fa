package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetNextMigrationNum(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"000001_init.sql", "000003_indexes.sql", "notes.txt", "bad_name.sql"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	if got := getNextMigrationNum(entries); got != 4 {
		t.Errorf("getNextMigrationNum() = %d, want 4", got)
	}
	if got := getNextMigrationNum(nil); got != 1 {
		t.Errorf("getNextMigrationNum(nil) = %d, want 1", got)
	}
}

func TestMigrationDir(t *testing.T) {
	t.Parallel()

	tests := []struct {
		driver  string
		want    string
		wantErr bool
	}{
		{driver: driverSQLite, want: "internal/migrations/sql"},
		{driver: driverPostgres, want: "internal/migrations/postgres/sql"},
		{driver: "mysql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()

			got, err := migrationDir(tt.driver)
			if (err != nil) != tt.wantErr {
				t.Fatalf("migrationDir(%q) error = %v, wantErr %v", tt.driver, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("migrationDir(%q) = %q, want %q", tt.driver, got, tt.want)
			}
		})
	}
}
