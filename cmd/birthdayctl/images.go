package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"birthday-wall/backend/internal/client"
	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/pkg/imaging"
	"birthday-wall/backend/pkg/logger"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func newOptimizeImagesCmd() *cobra.Command {
	var threshold string
	var apply bool
	var workers int

	cmd := &cobra.Command{
		Use:   "optimize-images",
		Short: "Shrink large inline pictures and move them to blobs",
		Long: `List inline pictures larger than --threshold. With --apply each one is
resized to fit 800x800, re-encoded as JPEG, uploaded, and its message is
switched to the uploaded URL; the collection is then restored in one write.
A picture that fails is dropped from its message.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := cliLogger(cmd)
			c := apiClient()

			limit, err := humanize.ParseBytes(threshold)
			if err != nil {
				return fmt.Errorf("invalid --threshold: %w", err)
			}

			msgs, err := c.Messages(ctx)
			if err != nil {
				return err
			}
			candidates := findLargeImages(msgs, limit)
			printCandidates(cmd.OutOrStdout(), msgs, candidates)

			if !apply || len(candidates) == 0 {
				return nil
			}

			path, _, err := writeBackup(ctx, c, viper.GetString("backup-dir"), time.Now())
			if err != nil {
				return err
			}
			log.Info("Backed up live collection", "path", path)

			saved := optimize(ctx, c, msgs, candidates, workers, log)
			res, err := c.DirectRestore(ctx, msgs)
			if err != nil {
				return fmt.Errorf("failed to write optimized collection: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d messages, saved %s\n", res.RestoredCount, humanize.Bytes(saved))
			return nil
		},
	}

	cmd.Flags().StringVar(&threshold, "threshold", "500KB", "Only pictures larger than this.")
	cmd.Flags().BoolVar(&apply, "apply", false, "Compress, upload and restore.")
	cmd.Flags().IntVar(&workers, "workers", 4, "Concurrent uploads.")
	return cmd
}

// findLargeImages returns the indexes of messages whose inline picture
// decodes to more than limit bytes. Unreadable pictures are included so
// --apply drops them.
func findLargeImages(msgs []models.Message, limit uint64) []int {
	var out []int
	for i, m := range msgs {
		if m.Attachment() != models.AttachmentInline {
			continue
		}
		img, err := imaging.ParseDataURL(m.Image)
		if err != nil || uint64(len(img.Data)) > limit {
			out = append(out, i)
		}
	}
	return out
}

func printCandidates(w io.Writer, msgs []models.Message, idx []int) {
	var total uint64
	for _, i := range idx {
		m := msgs[i]
		img, err := imaging.ParseDataURL(m.Image)
		if err != nil {
			fmt.Fprintf(w, "  %-24s unreadable picture (%v)\n", m.Name, err)
			continue
		}
		total += uint64(len(img.Data))
		fmt.Fprintf(w, "  %-24s %-10s %s\n", m.Name, img.MediaType, humanize.Bytes(uint64(len(img.Data))))
	}
	fmt.Fprintf(w, "%d of %d messages have large inline pictures (%s)\n", len(idx), len(msgs), humanize.Bytes(total))
}

// optimize compresses and uploads the pictures at idx, rewriting msgs in
// place, and returns the bytes saved
func optimize(ctx context.Context, c *client.Client, msgs []models.Message, idx []int, workers int, log *logger.Logger) uint64 {
	var mu sync.Mutex
	var saved uint64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, i := range idx {
		g.Go(func() error {
			m := &msgs[i]
			url, before, after, err := optimizeOne(gctx, c, *m, i)
			if err != nil {
				log.Warn("Dropping picture that could not be optimized", "name", m.Name, "error", err.Error())
				m.DropAttachment()
				return nil
			}

			m.Image = ""
			m.ImageURL = url
			m.HasImage = true
			mu.Lock()
			if before > after {
				saved += uint64(before - after)
			}
			mu.Unlock()
			log.Info("Picture optimized", "name", m.Name, "before", humanize.Bytes(uint64(before)), "after", humanize.Bytes(uint64(after)))
			return nil
		})
	}
	_ = g.Wait()
	return saved
}

func optimizeOne(ctx context.Context, c *client.Client, m models.Message, i int) (string, int, int, error) {
	img, err := imaging.ParseDataURL(m.Image)
	if err != nil {
		return "", 0, 0, err
	}
	small, err := imaging.Compress(img.Data, imaging.DefaultOptions())
	if err != nil {
		return "", 0, 0, err
	}

	name := fmt.Sprintf("optimized-%d.jpg", i+1)
	if m.ID != "" {
		name = fmt.Sprintf("optimized-%s.jpg", m.ID)
	}
	up, err := c.UploadImage(ctx, imaging.EncodeDataURL("image/jpeg", small), name)
	if err != nil {
		return "", 0, 0, err
	}
	return up.ImageURL, len(img.Data), len(small), nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show picture statistics of the live collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := apiClient().ImageStats(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d messages, %d with pictures\n", stats.TotalMessages, stats.MessagesWithImages)
			for _, info := range stats.ImageInfo {
				where := "remote"
				if info.HasImage {
					where = "inline " + humanize.Bytes(uint64(info.ImageSize))
				}
				fmt.Fprintf(w, "  %-24s %s\n", info.Name, where)
			}
			return nil
		},
	}
}
