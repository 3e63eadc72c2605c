package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/talentboard/supportbot/internal/cli"
	"github.com/talentboard/supportbot/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "supportbot",
		Short: "Supportbot CLI - talk to the job board support assistant",
		Long: `Supportbot CLI asks the support assistant questions and manages its knowledge store
through the supportbotd HTTP API.

Environment variables:
  SUPPORTBOT_API_KEY   API key for authentication
  SUPPORTBOT_API_URL   API base URL (default: http://localhost:8080)`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.SyncCmd())
	rootCmd.AddCommand(client.RemoveCmd())
	rootCmd.AddCommand(client.RebuildCmd())
	rootCmd.AddCommand(client.JobCmd())
	rootCmd.AddCommand(client.FeedbackCmd())
	rootCmd.AddCommand(client.LogsCmd())
	rootCmd.AddCommand(client.AuthCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
