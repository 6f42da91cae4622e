package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mfagate/mfagate/internal/store/sqlite"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect recorded decisions",
	}

	var username string
	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "Show recent decisions from the sqlite audit store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Audit.Storage.SQLitePath == "" {
				return fmt.Errorf("audit.storage.sqlite_path is not configured")
			}
			store, err := sqlite.Open(cfg.Audit.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			recs, err := store.RecentForUser(cmd.Context(), username, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, recs)
		},
	}
	recent.Flags().StringVar(&username, "user", "", "Filter by username")
	recent.Flags().IntVar(&limit, "limit", 20, "Maximum records to show")
	cmd.AddCommand(recent)

	return cmd
}
