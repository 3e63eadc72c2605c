package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/talentboard/supportbot/internal/cli"
	"github.com/talentboard/supportbot/internal/cli/admin"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "supportbotd",
		Short: "Supportbot daemon and admin CLI",
		Long: `Supportbot daemon for running the support assistant API and maintaining
its knowledge store.

Configuration is read from SUPPORTBOT_* environment variables and an optional .env file.`,
		Version:      version,
		SilenceUsage: true,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.SyncCmd())
	rootCmd.AddCommand(admin.RemoveCmd())
	rootCmd.AddCommand(admin.RebuildCmd())
	rootCmd.AddCommand(admin.SnapshotCmd())
	rootCmd.AddCommand(admin.PublishCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
