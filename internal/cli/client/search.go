package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// SearchRequest represents the search API request.
type SearchRequest struct {
	Query            string   `json:"query"`
	Limit            int      `json:"limit,omitempty"`
	BookIDs          []string `json:"book_ids,omitempty"`
	MaxSequenceIndex *int     `json:"max_sequence_index,omitempty"`
	MaxUnit          *int     `json:"max_unit,omitempty"`
}

// SearchResult represents a single hit.
type SearchResult struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResponse represents the search API response.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var (
		limit   int
		books   []string
		maxUnit int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search textbook content",
		Long:  "Searches indexed textbook content using semantic search, scoped to the caller's visible books.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runSearch(cmd, args[0], limit, books, maxUnit, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringSliceVarP(&books, "book", "b", nil, "Restrict to these book IDs (repeatable)")
	cmd.Flags().IntVar(&maxUnit, "max-unit", 0, "Only return content up to this unit number")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, limit int, books []string, maxUnit int, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	req := SearchRequest{
		Query:   query,
		Limit:   limit,
		BookIDs: books,
	}
	if maxUnit > 0 {
		req.MaxUnit = &maxUnit
	}

	resp, err := api.Post("/v1/search", req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	var searchResp SearchResponse
	if err := json.Unmarshal(resp.Data, &searchResp); err != nil {
		return fmt.Errorf("failed to parse search results: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(searchResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(searchResp.Results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", searchResp.Count)
	for i, result := range searchResp.Results {
		fmt.Printf("%d. (%.2f) %s\n", i+1, result.Score, snippet(result.Text))
		if section, ok := result.Metadata["section_title"].(string); ok && section != "" {
			fmt.Printf("   Section: %s\n", section)
		}
		if unit, ok := result.Metadata["unit_number"].(float64); ok {
			fmt.Printf("   Unit: %d\n", int(unit))
		}
		fmt.Printf("   ID: %s\n", result.ID)
		if i < len(searchResp.Results)-1 {
			fmt.Println(strings.Repeat("-", 40))
		}
	}

	return nil
}

func snippet(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if len(text) > 120 {
		return text[:117] + "..."
	}
	return text
}
