package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/revisehq/cardsmith/internal/cli"
	"github.com/revisehq/cardsmith/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "cardsmith",
		Short: "Cardsmith CLI - turn lecture PDFs into Anki flashcards",
		Long: `Cardsmith CLI registers documents and drives flashcard generation jobs.

Environment variables:
  CARDSMITH_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.DocsCmd())
	rootCmd.AddCommand(client.ProcessCmd())
	rootCmd.AddCommand(client.StatusCmd())
	rootCmd.AddCommand(client.LogsCmd())
	rootCmd.AddCommand(client.JobsCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
