package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/garrettladley/noticeboard/internal/client/api"
	"github.com/garrettladley/noticeboard/internal/config"
	"github.com/garrettladley/noticeboard/internal/inbox"
)

type globalFlags struct {
	server string
	owner  string
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.Read()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if flags.server != "" {
		cfg.ServerURL = flags.server
	}
	if flags.owner != "" {
		cfg.OwnerID = flags.owner
	}
	if err := cfg.RequireOwner(); err != nil {
		return config.Config{}, fmt.Errorf("%w (set it or pass --owner)", err)
	}
	return cfg, nil
}

// openInbox loads the owner's first page into a store backed by the API.
// The store has no live subscription.
func openInbox(ctx context.Context, cfg config.Config, opts ...inbox.Option) (*inbox.Store, error) {
	client := api.New(cfg.ServerURL, cfg.OwnerID)
	opts = append([]inbox.Option{
		inbox.WithNewWindow(cfg.NewWindow),
		inbox.WithLogger(slog.Default()),
	}, opts...)

	store := inbox.New(cfg.OwnerID, client, client, opts...)
	if _, err := store.Load(ctx, cfg.LoadLimit); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	return store, nil
}

func printItems(w io.Writer, items []inbox.Item, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, it := range items {
		mark := " "
		switch {
		case it.IsNew:
			mark = "+"
		case !it.IsRead:
			mark = "*"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			mark, it.ID, it.Kind, it.Title, inbox.AgeLabel(now, it.CreatedAt))
	}
	return tw.Flush()
}
