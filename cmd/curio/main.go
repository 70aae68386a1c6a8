package main

import (
	"fmt"
	"os"

	"github.com/praxis-ed/curio/internal/cli"
	"github.com/praxis-ed/curio/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "curio",
		Short: "Curio CLI - Textbook ingestion and retrieval",
		Long: `Curio CLI provides commands to ingest and search textbook content.

Environment variables:
  CURIO_API_URL    API base URL (default: http://localhost:8080)
  CURIO_USER_ID    User ID sent with requests (optional)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	rootCmd.PersistentFlags().String("user", "", "User ID sent with requests (overrides env)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.BooksCmd())
	rootCmd.AddCommand(client.IngestCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
