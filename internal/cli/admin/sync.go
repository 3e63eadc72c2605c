package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/service"
	"go.uber.org/zap"
)

// SyncCmd returns the sync command
func SyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <type> [id]",
		Short: "Sync sources into the knowledge store",
		Long: `Re-index every source of a type, or a single source when an id is given.
Types: faq, content-page, blog, custom-qa.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runSync,
	}
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations")
	return cmd
}

// RemoveCmd returns the remove command
func RemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <type> [id]",
		Short: "Remove sources from the knowledge store",
		Long:  "Delete the chunks of one source, or of every source of a type when no id is given.",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runRemove,
	}
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations")
	return cmd
}

// RebuildCmd returns the rebuild command
func RebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the whole knowledge store",
		Long:  "Re-index every source of every type and drop chunks of sources that no longer exist.",
		Args:  cobra.NoArgs,
		RunE:  runRebuild,
	}
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations")
	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	sourceType, err := domain.ParseSourceType(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(ctx, appOptionsFromFlags(cmd))
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) == 2 {
		result, err := a.sync.SyncOne(ctx, sourceType, args[1])
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		return writeResult(cmd.OutOrStdout(), outputFormat, result)
	}

	report, err := a.sync.SyncAll(ctx, sourceType)
	if report != nil {
		if werr := writeReports(cmd.OutOrStdout(), outputFormat, []*service.SyncReport{report}); werr != nil {
			return werr
		}
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	sourceType, err := domain.ParseSourceType(args[0])
	if err != nil {
		return err
	}
	var id string
	if len(args) == 2 {
		id = args[1]
	}

	a, err := newApp(ctx, appOptionsFromFlags(cmd))
	if err != nil {
		return err
	}
	defer a.close()

	removed, err := a.sync.RemoveSource(ctx, sourceType, id)
	if err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}

	w := cmd.OutOrStdout()
	if outputFormat == "json" {
		return writeJSON(w, map[string]any{
			"source_type":    sourceType,
			"source_id":      id,
			"chunks_removed": removed,
		})
	}
	target := string(sourceType)
	if id != "" {
		target += "/" + id
	}
	fmt.Fprintf(w, "Removed %d chunks for %s\n", removed, target)
	return nil
}

func runRebuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	a, err := newApp(ctx, appOptionsFromFlags(cmd))
	if err != nil {
		return err
	}
	defer a.close()

	reports, err := a.sync.RebuildAll(ctx)
	if len(reports) > 0 {
		if werr := writeReports(cmd.OutOrStdout(), outputFormat, orderedReports(reports)); werr != nil {
			return werr
		}
	}
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	return nil
}

// orderedReports returns reports in rebuild order.
func orderedReports(reports map[domain.SourceType]*service.SyncReport) []*service.SyncReport {
	out := make([]*service.SyncReport, 0, len(reports))
	for _, t := range domain.AllSourceTypes() {
		if r, ok := reports[t]; ok && r != nil {
			out = append(out, r)
		}
	}
	return out
}

func logReports(log *zap.Logger, reports map[domain.SourceType]*service.SyncReport) {
	for _, r := range orderedReports(reports) {
		log.Info("rebuilt source type",
			zap.String("source_type", string(r.SourceType)),
			zap.Int("synced", r.Synced),
			zap.Int("skipped", r.Skipped),
			zap.Int("removed", r.Removed),
			zap.Int("orphans", r.Orphans),
			zap.Int("chunks", r.Chunks),
			zap.Int("failed", len(r.Failed)),
		)
	}
}

func writeResult(w io.Writer, format string, result *service.SyncResult) error {
	if format == "json" {
		return writeJSON(w, result)
	}
	target := fmt.Sprintf("%s/%s", result.SourceType, result.SourceID)
	switch {
	case result.Removed:
		fmt.Fprintf(w, "%s: removed (no content)\n", target)
	case result.Skipped:
		fmt.Fprintf(w, "%s: unchanged, %d chunks\n", target, result.Chunks)
	default:
		fmt.Fprintf(w, "%s: synced %d chunks\n", target, result.Chunks)
	}
	return nil
}

func writeReports(w io.Writer, format string, reports []*service.SyncReport) error {
	if format == "json" {
		return writeJSON(w, reports)
	}
	for _, r := range reports {
		fmt.Fprintf(w, "%s: %d synced, %d unchanged, %d removed, %d orphans, %d chunks\n",
			r.SourceType, r.Synced, r.Skipped, r.Removed, r.Orphans, r.Chunks)
		for _, f := range r.Failed {
			fmt.Fprintf(w, "  failed %s: %s\n", f.SourceID, f.Error)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
