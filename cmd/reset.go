package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Return every item to pending and drop enriched records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return errors.New("reset discards all crawl results; pass --yes to confirm")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := appInstance.Store().Reset(cmd.Context()); err != nil {
				return fmt.Errorf("reset catalog: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Catalog reset, all items pending")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the reset")
	return cmd
}
