package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh the catalog listing",
		Long: `Downloads the full listing and inserts entries not yet known. Existing items
keep their status. Without --force the download is skipped while the last sync
is within the configured freshness window.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := appInstance.Synchronizer().Sync(cmd.Context(), force)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Skipped {
				fmt.Fprintln(out, "Listing is fresh, nothing to do")
				return nil
			}
			fmt.Fprintf(out, "Fetched %d entries, %d new\n", res.Fetched, res.Inserted)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "download even when the listing is fresh")
	return cmd
}
