package main

import (
	"context"
	"fmt"
	"time"

	"birthday-wall/backend/internal/client"
	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/internal/service"
	"birthday-wall/backend/internal/sources"
	"birthday-wall/backend/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newMigrateCmd() *cobra.Command {
	var chunkSize int
	var pause time.Duration

	cmd := &cobra.Command{
		Use:   "migrate <file.json>",
		Short: "Re-post an export message by message, in chunks",
		Long: `Append every message of a JSON export through the public submit
endpoint, chunkSize at a time with a pause between chunks. The first
failure stops the run and names the chunk and offset to resume from.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := cliLogger(cmd)
			c := apiClient()

			src, err := sources.LoadJSONFile(args[0])
			if err != nil {
				return err
			}
			path, live, err := writeBackup(ctx, c, viper.GetString("backup-dir"), time.Now())
			if err != nil {
				return err
			}
			log.Info("Backed up live collection", "path", path, "count", len(live))

			n, err := migrate(ctx, c, src.Messages, chunkSize, pause, log)
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d of %d messages\n", n, len(src.Messages))
			return err
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", 10, "Messages per chunk.")
	cmd.Flags().DurationVar(&pause, "pause", 500*time.Millisecond, "Pause between chunks.")
	return cmd
}

// migrate appends msgs in chunks and returns how many were stored
func migrate(ctx context.Context, c *client.Client, msgs []models.Message, chunkSize int, pause time.Duration, log *logger.Logger) (int, error) {
	if chunkSize < 1 {
		chunkSize = 1
	}

	done := 0
	for start := 0; start < len(msgs); start += chunkSize {
		chunk := start / chunkSize
		end := min(start+chunkSize, len(msgs))

		for i, m := range msgs[start:end] {
			_, err := c.Create(ctx, service.NewMessage{
				Name:     m.Name,
				Message:  m.Body,
				Image:    m.Image,
				ImageURL: m.ImageURL,
			})
			if err != nil {
				return done, fmt.Errorf("chunk %d, offset %d (%q): %w", chunk+1, start+i, m.Name, err)
			}
			done++
		}
		log.Info("Chunk migrated", "chunk", chunk+1, "messages", end-start, "total", done)

		if end < len(msgs) && pause > 0 {
			select {
			case <-ctx.Done():
				return done, ctx.Err()
			case <-time.After(pause):
			}
		}
	}
	return done, nil
}
