package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print catalog counts and crawl state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			store := appInstance.Store()
			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("load stats: %w", err)
			}
			state, err := store.LoadState(cmd.Context())
			if err != nil {
				return fmt.Errorf("load crawl state: %w", err)
			}
			out := cmd.OutOrStdout()
			printStats(out, stats)
			fmt.Fprintf(out, "Consecutive failures: %d\n", state.ConsecutiveFailures)
			fmt.Fprintf(out, "Last listing sync:    %s\n", formatWhen(state.ListLastSynced))
			return nil
		},
	}
}

func printStats(w io.Writer, stats catalog.Stats) {
	fmt.Fprintf(w, "Total items:          %d\n", stats.Total)
	fmt.Fprintf(w, "Pending:              %d\n", stats.Pending)
	fmt.Fprintf(w, "Games:                %d\n", stats.Games)
	fmt.Fprintf(w, "Not games:            %d\n", stats.NotGames)
	fmt.Fprintf(w, "Failed:               %d\n", stats.Failed)
	fmt.Fprintf(w, "Name-filtered:        %d\n", stats.Filtered)
	fmt.Fprintf(w, "Progress:             %.2f%%\n", stats.Progress())
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
