package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type crawlOptions struct {
	shuffle      bool
	retryFailed  bool
	noNameFilter bool
	forceSync    bool
}

// newCrawlCmd creates the 'crawl' subcommand: a listing sync followed by one
// pass over the pending items.
func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Sync the listing and crawl pending items",
		Long: `Refreshes the catalog listing when it is missing or stale, then visits every
pending item once. Interrupting the crawl lets the in-flight item finish; the
next run resumes with the remaining pending items.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.shuffle, "shuffle", false, "visit pending items in random order")
	cmd.Flags().BoolVar(&opts.retryFailed, "retry-failed", false, "also retry items marked failed")
	cmd.Flags().BoolVar(&opts.noNameFilter, "no-name-filter", false, "fetch every item instead of skipping names that look like non-games")
	cmd.Flags().BoolVar(&opts.forceSync, "force-sync", false, "refresh the listing even when it is fresh")
	return cmd
}

func runCrawl(cmd *cobra.Command, opts *crawlOptions) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := appInstance.Logger()

	if _, err := appInstance.Synchronizer().Sync(ctx, opts.forceSync); err != nil {
		return fmt.Errorf("sync listing: %w", err)
	}

	settings := appInstance.Config().CrawlerSettings()
	if opts.shuffle {
		settings.Selection.Shuffle = true
	}
	if opts.retryFailed {
		settings.Selection.RetryFailed = true
	}
	if opts.noNameFilter {
		settings.NameFilter = false
	}

	engine, err := appInstance.NewEngine(settings)
	if err != nil {
		return err
	}
	summary, err := engine.Run(ctx)
	if err != nil {
		return fmt.Errorf("run crawler: %w", err)
	}
	if summary.Stopped {
		logger.Info("crawl interrupted, progress saved", zap.Int("processed", summary.Processed))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Processed %d items (%d cooldowns)\n", summary.Processed, summary.Cooldowns)
	printStats(out, summary.Stats)
	return nil
}
