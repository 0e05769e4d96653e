package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/souvikree/myShare/internal/files"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired files once and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			slog.Error("Failed to initialize", "error", err)
			return err
		}
		defer a.Close(context.Background())

		result := files.NewSweeper(a.service, cfg.SweepInterval, slog.Default()).RunOnce(ctx)

		fmt.Fprintf(cmd.OutOrStdout(), "expired: %d, orphans: %d, errors: %d\n",
			result.ExpiredCount, result.OrphanCount, result.Errors)
		if result.Errors > 0 {
			return fmt.Errorf("sweep finished with %d errors", result.Errors)
		}
		return nil
	},
}
