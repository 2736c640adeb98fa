package paths

import (
	"path/filepath"
	"testing"
)

func TestPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := EnsureDir()
	if err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	if want := filepath.Join(home, ".config", "noticeboard"); dir != want {
		t.Errorf("EnsureDir() = %q, want %q", dir, want)
	}

	db, err := DB()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "noticeboard.db"); db != want {
		t.Errorf("DB() = %q, want %q", db, want)
	}

	env, err := EnvFile()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, ".env"); env != want {
		t.Errorf("EnvFile() = %q, want %q", env, want)
	}
}
