package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"github.com/spf13/cobra"
)

// sourceTypes lists the source types in rebuild order.
var sourceTypes = []string{"faq", "content-page", "blog", "custom-qa"}

// SyncFailure is a source that failed during a bulk sync.
type SyncFailure struct {
	SourceID string `json:"source_id"`
	Error    string `json:"error"`
}

// SyncReport summarizes the sync of one source type.
type SyncReport struct {
	SourceType string        `json:"source_type"`
	Synced     int           `json:"synced"`
	Skipped    int           `json:"skipped"`
	Removed    int           `json:"removed"`
	Orphans    int           `json:"orphans"`
	Chunks     int           `json:"chunks"`
	Failed     []SyncFailure `json:"failed,omitempty"`
}

// SyncResult describes the sync of a single source.
type SyncResult struct {
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
	Chunks     int    `json:"chunks"`
	Removed    bool   `json:"removed"`
	Skipped    bool   `json:"skipped"`
}

// RemoveResult is the response of a remove request.
type RemoveResult struct {
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id,omitempty"`
	Deleted    int64  `json:"deleted"`
}

// SyncJob is a queued sync request.
type SyncJob struct {
	ID          string  `json:"id"`
	SourceType  string  `json:"source_type"`
	SourceID    string  `json:"source_id,omitempty"`
	Action      string  `json:"action"`
	Status      string  `json:"status"`
	Retries     int32   `json:"retries"`
	Error       string  `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at"`
	ProcessedAt *string `json:"processed_at,omitempty"`
}

// SyncCmd creates the sync command.
func SyncCmd() *cobra.Command {
	var async bool

	cmd := &cobra.Command{
		Use:   "sync <type> [id]",
		Short: "Re-index sources on the server",
		Long: `Re-indexes every source of a type, or one source when an id is given.
Types: faq, content-page, blog, custom-qa.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			var id string
			if len(args) == 2 {
				id = args[1]
			}
			return runSync(cmd.Context(), api, cmd.OutOrStdout(), args[0], id, async, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "Queue a sync job instead of waiting")

	return cmd
}

// RemoveCmd creates the remove command.
func RemoveCmd() *cobra.Command {
	var async bool

	cmd := &cobra.Command{
		Use:   "remove <type> [id]",
		Short: "Remove sources from the knowledge store",
		Long:  "Deletes the chunks of one source, or of every source of a type when no id is given.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			var id string
			if len(args) == 2 {
				id = args[1]
			}
			return runRemove(cmd.Context(), api, cmd.OutOrStdout(), args[0], id, async, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "Queue a remove job instead of waiting")

	return cmd
}

// RebuildCmd creates the rebuild command.
func RebuildCmd() *cobra.Command {
	var async bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the whole knowledge store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runRebuild(cmd.Context(), api, cmd.OutOrStdout(), async, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "Queue one sync job per source type instead of waiting")

	return cmd
}

// JobCmd creates the job command.
func JobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show the status of a queued sync job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runJob(cmd.Context(), api, cmd.OutOrStdout(), args[0], outputJSON)
		},
	}
}

func sourcePath(sourceType, id string) string {
	path := "/sources/" + url.PathEscape(sourceType)
	if id != "" {
		path += "/" + url.PathEscape(id)
	}
	return path
}

func asyncQuery(async bool) string {
	if async {
		return "?async=true"
	}
	return ""
}

func runSync(ctx context.Context, api *APIClient, w io.Writer, sourceType, id string, async, outputJSON bool) error {
	resp, err := api.Post(ctx, sourcePath(sourceType, id)+"/sync"+asyncQuery(async), nil)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if async {
		return printJobs(w, resp, outputJSON)
	}
	if outputJSON {
		return printRaw(w, resp.Data)
	}

	if id != "" {
		var result SyncResult
		if err := decode(resp, &result); err != nil {
			return err
		}
		printResult(w, result)
		return nil
	}

	var report SyncReport
	if err := decode(resp, &report); err != nil {
		return err
	}
	printReport(w, report)
	return nil
}

func runRemove(ctx context.Context, api *APIClient, w io.Writer, sourceType, id string, async, outputJSON bool) error {
	resp, err := api.Delete(ctx, sourcePath(sourceType, id)+asyncQuery(async))
	if err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}
	if async {
		return printJobs(w, resp, outputJSON)
	}
	if outputJSON {
		return printRaw(w, resp.Data)
	}

	var result RemoveResult
	if err := decode(resp, &result); err != nil {
		return err
	}
	target := result.SourceType
	if result.SourceID != "" {
		target += "/" + result.SourceID
	}
	fmt.Fprintf(w, "Removed %d chunks for %s\n", result.Deleted, target)
	return nil
}

func runRebuild(ctx context.Context, api *APIClient, w io.Writer, async, outputJSON bool) error {
	resp, err := api.Post(ctx, "/rebuild"+asyncQuery(async), nil)
	if err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	if async {
		return printJobs(w, resp, outputJSON)
	}
	if outputJSON {
		return printRaw(w, resp.Data)
	}

	var reports map[string]*SyncReport
	if err := decode(resp, &reports); err != nil {
		return err
	}
	for _, t := range sourceTypes {
		if r, ok := reports[t]; ok && r != nil {
			printReport(w, *r)
		}
	}
	return nil
}

func runJob(ctx context.Context, api *APIClient, w io.Writer, id string, outputJSON bool) error {
	resp, err := api.Get(ctx, "/jobs/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("get job failed: %w", err)
	}
	if outputJSON {
		return printRaw(w, resp.Data)
	}

	var job SyncJob
	if err := decode(resp, &job); err != nil {
		return err
	}
	printJob(w, job)
	return nil
}

func printJobs(w io.Writer, resp *APIResponse, outputJSON bool) error {
	if outputJSON {
		return printRaw(w, resp.Data)
	}
	var jobs []SyncJob
	if err := decode(resp, &jobs); err != nil {
		return err
	}
	fmt.Fprintf(w, "Queued %d job(s):\n", len(jobs))
	for _, job := range jobs {
		printJob(w, job)
	}
	return nil
}

func printJob(w io.Writer, job SyncJob) {
	target := job.SourceType
	if job.SourceID != "" {
		target += "/" + job.SourceID
	}
	fmt.Fprintf(w, "%s  %s %s  %s", job.ID, job.Action, target, job.Status)
	if job.Retries > 0 {
		fmt.Fprintf(w, " (retries: %d)", job.Retries)
	}
	if job.Error != "" {
		fmt.Fprintf(w, "  %s", job.Error)
	}
	fmt.Fprintln(w)
}

func printResult(w io.Writer, r SyncResult) {
	target := r.SourceType + "/" + r.SourceID
	switch {
	case r.Removed:
		fmt.Fprintf(w, "%s: removed (no content)\n", target)
	case r.Skipped:
		fmt.Fprintf(w, "%s: unchanged, %d chunks\n", target, r.Chunks)
	default:
		fmt.Fprintf(w, "%s: synced %d chunks\n", target, r.Chunks)
	}
}

func printReport(w io.Writer, r SyncReport) {
	fmt.Fprintf(w, "%s: %d synced, %d unchanged, %d removed, %d orphans, %d chunks\n",
		r.SourceType, r.Synced, r.Skipped, r.Removed, r.Orphans, r.Chunks)
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed %s: %s\n", f.SourceID, f.Error)
	}
}

func printRaw(w io.Writer, data json.RawMessage) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("failed to parse response data: %w", err)
	}
	output, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(output))
	return nil
}
