package main

import (
	"context"
	"log/slog"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/garrettladley/noticeboard/internal/paths"
	"github.com/garrettladley/noticeboard/internal/version"
	"github.com/garrettladley/noticeboard/internal/xslog"
)

func main() {
	_ = godotenv.Load()
	if envFile, err := paths.EnvFile(); err == nil {
		_ = godotenv.Load(envFile)
	}

	slog.SetDefault(xslog.NewLoggerWithFormat(os.Stderr, xslog.FromEnv(), xslog.FormatFromEnv(xslog.FormatText)))

	var flags globalFlags
	rootCmd := &cobra.Command{
		Use:     "noticeboard",
		Short:   "Notifications in your terminal",
		Version: version.Get(),
	}
	rootCmd.PersistentFlags().StringVar(&flags.server, "server", "", "notification server URL (default $SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&flags.owner, "owner", "", "owner id (default $OWNER_ID)")

	rootCmd.AddCommand(
		listCmd(&flags),
		readCmd(&flags),
		readAllCmd(&flags),
		deleteCmd(&flags),
		sendCmd(&flags),
		watchCmd(&flags),
	)

	if err := fang.Execute(context.Background(), rootCmd, fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM)); err != nil {
		os.Exit(1)
	}
}
