package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// ChatLogSource is a chunk that grounded a logged answer.
type ChatLogSource struct {
	ChunkID    string  `json:"chunk_id"`
	SourceType string  `json:"source_type"`
	SourceID   string  `json:"source_id"`
	Score      float64 `json:"score"`
}

// ChatLog is an answered question recorded by the server.
type ChatLog struct {
	ID           string          `json:"id"`
	Question     string          `json:"question"`
	TopK         int             `json:"top_k"`
	HistoryTurns int             `json:"history_turns"`
	Sources      []ChatLogSource `json:"sources"`
	Grounded     bool            `json:"grounded"`
	DurationMs   int64           `json:"duration_ms"`
	Helpful      *bool           `json:"helpful,omitempty"`
	FeedbackAt   *string         `json:"feedback_at,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

// ChatLogPage is one page of chat logs.
type ChatLogPage struct {
	Items   []ChatLog `json:"items"`
	Cursor  string    `json:"cursor,omitempty"`
	HasMore bool      `json:"has_more"`
}

// FeedbackCmd creates the feedback command.
func FeedbackCmd() *cobra.Command {
	var helpful, unhelpful bool

	cmd := &cobra.Command{
		Use:   "feedback <chat-id>",
		Short: "Rate an answer as helpful or unhelpful",
		Long: `Records whether an answer helped. The chat id is printed by "ask --sources"
and returned as chat_id in JSON output.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if helpful == unhelpful {
				return errors.New("exactly one of --helpful or --unhelpful is required")
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runFeedback(cmd.Context(), api, cmd.OutOrStdout(), args[0], helpful)
		},
	}

	cmd.Flags().BoolVar(&helpful, "helpful", false, "The answer helped")
	cmd.Flags().BoolVar(&unhelpful, "unhelpful", false, "The answer did not help")

	return cmd
}

// LogsCmd creates the logs command.
func LogsCmd() *cobra.Command {
	var (
		ungrounded bool
		helpful    string
		limit      int
		cursor     string
		all        bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List recently answered questions",
		Long: `Lists answered questions, newest first. Use --ungrounded to find questions the
knowledge store had nothing for, and --helpful=false for answers users rated down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			query, err := logsQuery(ungrounded, helpful, limit)
			if err != nil {
				return err
			}
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runLogs(cmd.Context(), api, cmd.OutOrStdout(), query, cursor, all, outputJSON)
		},
	}

	cmd.Flags().BoolVar(&ungrounded, "ungrounded", false, "Only questions answered without retrieved context")
	cmd.Flags().StringVar(&helpful, "helpful", "", "Only answers rated helpful (true) or unhelpful (false)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Page size (server default when 0)")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Continue from a cursor printed by a previous page")
	cmd.Flags().BoolVar(&all, "all", false, "Follow cursors until every page is printed")

	return cmd
}

func logsQuery(ungrounded bool, helpful string, limit int) (url.Values, error) {
	q := url.Values{}
	if ungrounded {
		q.Set("ungrounded", "true")
	}
	if helpful != "" {
		v, err := strconv.ParseBool(helpful)
		if err != nil {
			return nil, fmt.Errorf("--helpful must be true or false, got %q", helpful)
		}
		q.Set("helpful", strconv.FormatBool(v))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q, nil
}

func runFeedback(ctx context.Context, api *APIClient, w io.Writer, chatID string, helpful bool) error {
	if _, err := api.Post(ctx, "/chat/"+url.PathEscape(chatID)+"/feedback", map[string]bool{"helpful": helpful}); err != nil {
		return fmt.Errorf("feedback failed: %w", err)
	}
	verdict := "unhelpful"
	if helpful {
		verdict = "helpful"
	}
	fmt.Fprintf(w, "Marked %s as %s\n", chatID, verdict)
	return nil
}

func fetchLogs(ctx context.Context, api *APIClient, query url.Values, cursor string) (*ChatLogPage, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	path := "/chat/logs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := api.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("listing chat logs failed: %w", err)
	}
	var page ChatLogPage
	if err := decode(resp, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func runLogs(ctx context.Context, api *APIClient, w io.Writer, query url.Values, cursor string, all, outputJSON bool) error {
	var logs []ChatLog
	for {
		page, err := fetchLogs(ctx, api, query, cursor)
		if err != nil {
			return err
		}
		logs = append(logs, page.Items...)
		cursor = page.Cursor
		if !all || !page.HasMore {
			break
		}
	}

	if outputJSON {
		output, _ := json.MarshalIndent(ChatLogPage{Items: logs, Cursor: cursor, HasMore: cursor != ""}, "", "  ")
		fmt.Fprintln(w, string(output))
		return nil
	}

	if len(logs) == 0 {
		fmt.Fprintln(w, "No chat logs found.")
		return nil
	}
	for _, l := range logs {
		printChatLog(w, l)
	}
	if cursor != "" {
		fmt.Fprintf(w, "\nMore results: --cursor %s\n", cursor)
	}
	return nil
}

func printChatLog(w io.Writer, l ChatLog) {
	verdict := "-"
	if l.Helpful != nil {
		verdict = "unhelpful"
		if *l.Helpful {
			verdict = "helpful"
		}
	}
	grounding := fmt.Sprintf("%d sources", len(l.Sources))
	if !l.Grounded {
		grounding = "ungrounded"
	}
	fmt.Fprintf(w, "%s  %s  %s  %s  %dms\n", l.CreatedAt, l.ID, grounding, verdict, l.DurationMs)
	fmt.Fprintf(w, "   %s\n", snippet(l.Question, 100))
}
