package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"accessdash/internal/admin"
	"accessdash/internal/config"
	"accessdash/internal/statsview"
)

func newStatsCmd() *cobra.Command {
	var (
		addr     string
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics from a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := admin.Dial(addr, os.Getenv(config.DefaultAdminTokenEnv))
			if err != nil {
				return fmt.Errorf("dial admin: %w", err)
			}
			defer client.Close()

			if watch {
				return statsview.Watch(cmd.Context(), addr, interval, client.Stats)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			stats, err := client.Stats(ctx)
			if err != nil {
				return fmt.Errorf("fetch stats: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), statsview.Render(addr, stats))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9090", "gRPC admin address")
	cmd.Flags().BoolVar(&watch, "watch", false, "refresh continuously")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "refresh interval with --watch")
	return cmd
}
