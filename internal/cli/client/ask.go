package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// Turn is one message of the conversation sent as history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the chat API request.
type ChatRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
	History  []Turn `json:"history,omitempty"`
}

// SourceRef is a retrieved chunk cited by an answer or returned by search.
type SourceRef struct {
	ID         string         `json:"id"`
	SourceType string         `json:"source_type"`
	SourceID   string         `json:"source_id,omitempty"`
	ChunkIndex int            `json:"chunk_index"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Score      float64        `json:"score"`
}

// ChatResponse represents the chat API response.
type ChatResponse struct {
	ChatID  string      `json:"chat_id,omitempty"`
	Answer  string      `json:"answer"`
	Sources []SourceRef `json:"sources"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		topK        int
		showSources bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the support assistant a question",
		Long: `Sends a question to the support assistant and prints its answer.
With --interactive, keeps a conversation going and sends earlier turns as history.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if interactive {
				return runConversation(cmd.Context(), api, cmd.InOrStdin(), cmd.OutOrStdout(), topK, showSources)
			}
			return runAsk(cmd.Context(), api, cmd.OutOrStdout(), args[0], topK, showSources, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of knowledge chunks to retrieve (server default when 0)")
	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Print the sources the answer is grounded on")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Start an interactive conversation")

	return cmd
}

func ask(ctx context.Context, api *APIClient, req ChatRequest) (*ChatResponse, error) {
	resp, err := api.Post(ctx, "/chat", req)
	if err != nil {
		return nil, fmt.Errorf("chat failed: %w", err)
	}
	var chat ChatResponse
	if err := decode(resp, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func runAsk(ctx context.Context, api *APIClient, w io.Writer, question string, topK int, showSources, outputJSON bool) error {
	chat, err := ask(ctx, api, ChatRequest{Question: question, TopK: topK})
	if err != nil {
		return err
	}

	if outputJSON {
		output, _ := json.MarshalIndent(chat, "", "  ")
		fmt.Fprintln(w, string(output))
		return nil
	}

	fmt.Fprintln(w, chat.Answer)
	if showSources {
		printSources(w, chat.Sources)
		if chat.ChatID != "" {
			fmt.Fprintf(w, "\nChat ID: %s\n", chat.ChatID)
		}
	}
	return nil
}

// maxHistoryTurns caps the history sent with each question.
const maxHistoryTurns = 20

func runConversation(ctx context.Context, api *APIClient, in io.Reader, w io.Writer, topK int, showSources bool) error {
	scanner := bufio.NewScanner(in)
	var history []Turn

	fmt.Fprintln(w, "Ask a question (empty line or Ctrl-D to quit).")
	for {
		fmt.Fprint(w, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			return nil
		}

		chat, err := ask(ctx, api, ChatRequest{Question: question, TopK: topK, History: history})
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
			continue
		}

		fmt.Fprintln(w, chat.Answer)
		if showSources {
			printSources(w, chat.Sources)
		}
		fmt.Fprintln(w)

		history = append(history, Turn{Role: "user", Content: question}, Turn{Role: "assistant", Content: chat.Answer})
		if len(history) > maxHistoryTurns {
			history = history[len(history)-maxHistoryTurns:]
		}
	}
}

func printSources(w io.Writer, sources []SourceRef) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, src := range sources {
		ref := src.SourceType
		if src.SourceID != "" {
			ref += "/" + src.SourceID
		}
		fmt.Fprintf(w, "  %d. %s #%d (%.2f)\n", i+1, ref, src.ChunkIndex, src.Score)
	}
}
