package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/revisehq/cardsmith/internal/cli"
	"github.com/revisehq/cardsmith/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cardsmithd",
		Short: "Cardsmith daemon and admin CLI",
		Long:  "Cardsmith daemon for running the API server, the processing worker, and job administration",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.JobsCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
