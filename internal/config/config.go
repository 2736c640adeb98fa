package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

const DefaultServerURL = "http://localhost:8080"

// Config is the CLI's view of the notification server.
type Config struct {
	ServerURL string        `env:"SERVER_URL" envDefault:"http://localhost:8080"`
	OwnerID   string        `env:"OWNER_ID"`
	NewWindow time.Duration `env:"NEW_WINDOW" envDefault:"5s"`
	LoadLimit int           `env:"LOAD_LIMIT" envDefault:"50"`
}

var ErrMissingOwner = errors.New("OWNER_ID is not set")

func Read() (Config, error) {
	return env.ParseAs[Config]()
}

// RequireOwner returns ErrMissingOwner when no owner is configured.
func (c Config) RequireOwner() error {
	if c.OwnerID == "" {
		return ErrMissingOwner
	}
	return nil
}
