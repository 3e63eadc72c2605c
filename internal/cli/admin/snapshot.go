package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/talentboard/supportbot/internal/config"
	"github.com/talentboard/supportbot/internal/service"
	"github.com/talentboard/supportbot/internal/storage"
)

// SnapshotCmd returns the snapshot command
func SnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export and import knowledge store snapshots",
		Long: `Snapshots hold every chunk with its embedding as gzip JSON lines in
S3-compatible storage, so an environment can be seeded without re-embedding.`,
	}

	cmd.AddCommand(snapshotExportCmd())
	cmd.AddCommand(snapshotImportCmd())
	cmd.AddCommand(snapshotURLCmd())
	cmd.AddCommand(snapshotInfoCmd())
	cmd.AddCommand(snapshotDeleteCmd())

	return cmd
}

// defaultSnapshotKey names a snapshot after the time it was taken.
func defaultSnapshotKey(now time.Time) string {
	return "snapshots/" + now.UTC().Format("20060102T150405Z") + ".jsonl.gz"
}

func snapshotExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [key]",
		Short: "Write the knowledge store to object storage",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			key := defaultSnapshotKey(time.Now())
			if len(args) == 1 {
				key = args[0]
			}

			a, err := newApp(ctx, appOptionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.close()

			s3, err := openSnapshotBucket(ctx, a.cfg)
			if err != nil {
				return err
			}
			if err := s3.EnsureBucket(ctx); err != nil {
				return fmt.Errorf("failed to ensure S3 bucket: %w", err)
			}

			n, err := service.NewSnapshotService(a.chunks, a.tx, s3, a.log).Export(ctx, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d chunks to %s/%s\n", n, a.cfg.S3Bucket, key)
			return nil
		},
	}
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations")
	return cmd
}

func snapshotImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <key>",
		Short: "Load a snapshot into the knowledge store",
		Long:  "Load a snapshot, replacing the stored chunks of every source it contains.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := newApp(ctx, appOptionsFromFlags(cmd))
			if err != nil {
				return err
			}
			defer a.close()

			s3, err := openSnapshotBucket(ctx, a.cfg)
			if err != nil {
				return err
			}

			n, err := service.NewSnapshotService(a.chunks, a.tx, s3, a.log).Import(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d chunks from %s/%s\n", n, a.cfg.S3Bucket, args[0])
			return nil
		},
	}
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations")
	return cmd
}

func snapshotURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <key>",
		Short: "Print a presigned download URL for a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s3, err := snapshotBucketFromEnv(ctx)
			if err != nil {
				return err
			}
			url, err := s3.GenerateDownloadURL(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func snapshotInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <key>",
		Short: "Show the size and type of a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			outputFormat, _ := cmd.Flags().GetString("output")
			s3, err := snapshotBucketFromEnv(ctx)
			if err != nil {
				return err
			}
			meta, err := s3.HeadObject(ctx, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if outputFormat == "json" {
				return writeJSON(w, map[string]any{
					"key":            args[0],
					"content_length": meta.ContentLength,
					"content_type":   meta.ContentType,
					"etag":           meta.ETag,
				})
			}
			fmt.Fprintf(w, "Key: %s\nSize: %d bytes\nType: %s\nETag: %s\n", args[0], meta.ContentLength, meta.ContentType, meta.ETag)
			return nil
		},
	}
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	return cmd
}

func snapshotDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s3, err := snapshotBucketFromEnv(ctx)
			if err != nil {
				return err
			}
			if err := s3.DeleteObject(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

// snapshotBucketFromEnv opens the bucket without touching the database or
// the embedding provider.
func snapshotBucketFromEnv(ctx context.Context) (*storage.S3Client, error) {
	cfg, err := config.LoadWithoutDatabase()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return openSnapshotBucket(ctx, cfg)
}

func openSnapshotBucket(ctx context.Context, cfg *config.Config) (*storage.S3Client, error) {
	if !cfg.HasS3() {
		return nil, fmt.Errorf("snapshot storage not configured: set %s_S3_ENDPOINT or %s_S3_ACCESS_KEY_ID", config.Prefix, config.Prefix)
	}
	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    cfg.S3Endpoint != "",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return client, nil
}
