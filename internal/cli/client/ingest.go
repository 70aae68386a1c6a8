package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// IngestRequest represents the ingest API request.
type IngestRequest struct {
	Path     string `json:"path"`
	Title    string `json:"title,omitempty"`
	BookID   string `json:"book_id,omitempty"`
	Category string `json:"category,omitempty"`
}

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	var (
		title    string
		bookID   string
		category string
	)

	cmd := &cobra.Command{
		Use:   "ingest <path>",
		Short: "Ingest a textbook through the API",
		Long:  "Asks the server to ingest a document it can reach at the given path. Waits for the run to finish.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClientIngest(cmd, args[0], title, bookID, category)
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Book title")
	cmd.Flags().StringVar(&bookID, "book-id", "", "Book UUID (generated when omitted)")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Book category: language, stem or history")

	return cmd
}

func runClientIngest(cmd *cobra.Command, path, title, bookID, category string) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.Post("/v1/ingest", IngestRequest{
		Path:     path,
		Title:    title,
		BookID:   bookID,
		Category: category,
	})
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	var pretty json.RawMessage = resp.Data
	output, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(output))
	return nil
}
