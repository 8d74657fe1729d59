package main

import (
	"fmt"
	"time"

	"birthday-wall/backend/internal/sources"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRestoreCmd() *cobra.Command {
	var batch, skipBackup bool

	cmd := &cobra.Command{
		Use:   "restore <file.json>",
		Short: "Replace the live collection with a JSON export",
		Long: `Replace the live collection with the messages in a JSON export.

The live collection is backed up first. With --batch every message gets a
fresh id and position and inline pictures are moved to their own blobs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := cliLogger(cmd)
			c := apiClient()

			src, err := sources.LoadJSONFile(args[0])
			if err != nil {
				return err
			}

			if !skipBackup {
				path, live, err := writeBackup(ctx, c, viper.GetString("backup-dir"), time.Now())
				if err != nil {
					return err
				}
				log.Info("Backed up live collection", "path", path, "count", len(live))
			}

			restore := c.DirectRestore
			if batch {
				restore = c.BatchRestore
			}
			res, err := restore(ctx, src.Messages)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d messages from %s\n", res.RestoredCount, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&batch, "batch", false, "Re-number messages and move inline pictures to blobs.")
	cmd.Flags().BoolVar(&skipBackup, "no-backup", false, "Skip the backup of the live collection.")
	return cmd
}
