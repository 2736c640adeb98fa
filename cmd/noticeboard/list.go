package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func listCmd(flags *globalFlags) *cobra.Command {
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent notifications",
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

			items := store.Items()
			if unreadOnly {
				filtered := items[:0]
				for _, it := range items {
					if !it.IsRead {
						filtered = append(filtered, it)
					}
				}
				items = filtered
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				_, _ = fmt.Fprintln(out, "No notifications")
				return nil
			}
			if err := printItems(out, items, time.Now()); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "\n%d unread\n", store.UnreadCount())
			return nil
		},
	}
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only show unread notifications")
	return cmd
}
