package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/garrettladley/noticeboard/internal/alert"
	"github.com/garrettladley/noticeboard/internal/client/api"
	"github.com/garrettladley/noticeboard/internal/client/sse"
	"github.com/garrettladley/noticeboard/internal/inbox"
	"github.com/garrettladley/noticeboard/internal/realtime"
)

func watchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream notifications as they arrive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := slog.Default()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			manager := realtime.NewManager(
				sse.NewTransport(cfg.ServerURL, cfg.OwnerID, logger),
				realtime.WithLogger(logger),
			)
			defer manager.Close()

			client := api.New(cfg.ServerURL, cfg.OwnerID)
			store := inbox.New(cfg.OwnerID, client, client,
				inbox.WithAlertSink(alert.NewWriter(out)),
				inbox.WithNewWindow(cfg.NewWindow),
				inbox.WithLogger(logger),
			)

			sess, err := inbox.Open(ctx, manager, store, cfg.LoadLimit)
			if err != nil {
				return fmt.Errorf("failed to open inbox: %w", err)
			}
			defer sess.Close()

			_, _ = fmt.Fprintf(out, "Watching notifications for %s (%d unread)\n", cfg.OwnerID, store.UnreadCount())

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return realtime.Reconnect(gctx, sess.Handle(), realtime.ReconnectOptions{Logger: logger})
			})
			g.Go(func() error {
				last := store.UnreadCount()
				for {
					select {
					case <-gctx.Done():
						return gctx.Err()
					case _, ok := <-store.Changes():
						if !ok {
							return nil
						}
						if unread := store.UnreadCount(); unread != last {
							last = unread
							_, _ = fmt.Fprintf(out, "%d unread\n", unread)
						}
					}
				}
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
