package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func readCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			store, err := openInbox(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.MarkRead(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to mark %s read: %w", args[0], err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Marked %s read (%d unread)\n", args[0], store.UnreadCount())
			return nil
		},
	}
}

func readAllCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			store, err := openInbox(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			before := store.UnreadCount()
			if err := store.MarkAllRead(cmd.Context()); err != nil {
				return fmt.Errorf("failed to mark notifications read: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Marked %d notifications read\n", before)
			return nil
		},
	}
}
