package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garrettladley/noticeboard/internal/client/api"
	"github.com/garrettladley/noticeboard/internal/storage"
)

func sendCmd(flags *globalFlags) *cobra.Command {
	var (
		kind   string
		title  string
		body   string
		action string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Create a notification for the owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			n := storage.Notification{
				OwnerID: cfg.OwnerID,
				Kind:    storage.Kind(kind),
				Title:   title,
			}
			if body != "" {
				n.Body = &body
			}
			if action != "" {
				n.ActionURL = &action
			}

			created, err := api.New(cfg.ServerURL, cfg.OwnerID).Insert(cmd.Context(), n)
			if err != nil {
				return fmt.Errorf("failed to send notification: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(storage.KindSystem), "notification kind")
	cmd.Flags().StringVar(&title, "title", "", "notification title")
	cmd.Flags().StringVar(&body, "body", "", "notification body")
	cmd.Flags().StringVar(&action, "action-url", "", "link opened by the notification")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
