package config

import (
	"errors"
	"testing"
	"time"
)

func TestRead(t *testing.T) {
	t.Setenv("SERVER_URL", "http://example.test")
	t.Setenv("OWNER_ID", "u1")
	t.Setenv("NEW_WINDOW", "10s")

	cfg, err := Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.ServerURL != "http://example.test" || cfg.OwnerID != "u1" {
		t.Errorf("Read() = %+v", cfg)
	}
	if cfg.NewWindow != 10*time.Second {
		t.Errorf("NewWindow = %v, want 10s", cfg.NewWindow)
	}
	if cfg.LoadLimit != 50 {
		t.Errorf("LoadLimit = %d, want 50", cfg.LoadLimit)
	}
	if err := cfg.RequireOwner(); err != nil {
		t.Errorf("RequireOwner() = %v", err)
	}
}

func TestRequireOwner(t *testing.T) {
	t.Parallel()

	if err := (Config{}).RequireOwner(); !errors.Is(err, ErrMissingOwner) {
		t.Errorf("RequireOwner() = %v, want ErrMissingOwner", err)
	}
}
