package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// SearchResponse represents the search API response.
type SearchResponse struct {
	Results []SourceRef `json:"results"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge store",
		Long:  "Runs retrieval only and prints the most similar knowledge chunks, without generating an answer.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			return runSearch(cmd.Context(), api, cmd.OutOrStdout(), args[0], topK, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Maximum number of results (server default when 0)")

	return cmd
}

func runSearch(ctx context.Context, api *APIClient, w io.Writer, query string, topK int, outputJSON bool) error {
	params := url.Values{"q": {query}}
	if topK > 0 {
		params.Set("top_k", strconv.Itoa(topK))
	}

	resp, err := api.Get(ctx, "/search?"+params.Encode())
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var searchResp SearchResponse
	if err := decode(resp, &searchResp); err != nil {
		return err
	}

	if outputJSON {
		output, _ := json.MarshalIndent(searchResp, "", "  ")
		fmt.Fprintln(w, string(output))
		return nil
	}

	if len(searchResp.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "Found %d results:\n\n", len(searchResp.Results))
	for i, result := range searchResp.Results {
		ref := result.SourceType
		if result.SourceID != "" {
			ref += "/" + result.SourceID
		}
		fmt.Fprintf(w, "%d. %s #%d (%.2f)\n", i+1, ref, result.ChunkIndex, result.Score)
		fmt.Fprintf(w, "   %s\n", snippet(result.Text, 100))
		if i < len(searchResp.Results)-1 {
			fmt.Fprintln(w)
		}
	}
	return nil
}

// snippet flattens whitespace and truncates text to limit runes.
func snippet(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-3]) + "..."
}
