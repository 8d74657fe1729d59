package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"birthday-wall/backend/internal/client"
	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/internal/sources"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const backupTimeLayout = "2006-01-02T15-04-05"

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Save the live collection to the backup directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, msgs, err := writeBackup(cmd.Context(), apiClient(), viper.GetString("backup-dir"), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backed up %d messages to %s\n", len(msgs), path)
			return nil
		},
	}
}

// writeBackup saves the live collection as <dir>/prod-backup-<time>.json
func writeBackup(ctx context.Context, c *client.Client, dir string, now time.Time) (string, []models.Message, error) {
	msgs, err := c.Messages(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch live messages: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	path := filepath.Join(dir, "prod-backup-"+now.UTC().Format(backupTimeLayout)+".json")
	if err := sources.WriteJSONFile(path, msgs); err != nil {
		return "", nil, fmt.Errorf("failed to write backup: %w", err)
	}
	return path, msgs, nil
}

// nextFreeName returns the first <dir>/<prefix>-<n>.json that does not exist
func nextFreeName(dir, prefix string) (string, error) {
	for n := 1; n < 10000; n++ {
		path := filepath.Join(dir, fmt.Sprintf("%s-%d.json", prefix, n))
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free file name for %s in %s", prefix, dir)
}
