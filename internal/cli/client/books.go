package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// Book represents one ingested book in list output.
type Book struct {
	BookID     string `json:"book_id"`
	Title      string `json:"title"`
	Category   string `json:"category,omitempty"`
	GradeLevel int    `json:"grade_level,omitempty"`
	OwnerID    string `json:"owner_id,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// BooksResponse represents the books API response.
type BooksResponse struct {
	Items   []Book `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// BooksCmd creates the books command.
func BooksCmd() *cobra.Command {
	var (
		title   string
		subject string
		grade   int
		limit   int
		cursor  string
	)

	cmd := &cobra.Command{
		Use:   "books",
		Short: "List ingested books",
		Long:  "Lists ingested books, filterable by title, subject and grade level. Title matching tolerates typos.",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runBooks(cmd, title, subject, grade, limit, cursor, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Filter by title (fuzzy)")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Filter by subject: language, stem or history")
	cmd.Flags().IntVarP(&grade, "grade", "g", 0, "Filter by grade level")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of books")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runBooks(cmd *cobra.Command, title, subject string, grade, limit int, cursor string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	query := url.Values{}
	if title != "" {
		query.Set("title", title)
	}
	if subject != "" {
		query.Set("subject", subject)
	}
	if grade > 0 {
		query.Set("grade_level", strconv.Itoa(grade))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	resp, err := api.Get("/v1/books", query)
	if err != nil {
		return fmt.Errorf("listing books failed: %w", err)
	}

	var booksResp BooksResponse
	if err := json.Unmarshal(resp.Data, &booksResp); err != nil {
		return fmt.Errorf("failed to parse books response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(booksResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(booksResp.Items) == 0 {
		fmt.Println("No books found.")
		return nil
	}

	for _, book := range booksResp.Items {
		line := book.Title
		if book.Category != "" {
			line += fmt.Sprintf(" [%s]", book.Category)
		}
		if book.GradeLevel > 0 {
			line += fmt.Sprintf(" (grade %d)", book.GradeLevel)
		}
		fmt.Printf("%s\n   ID: %s\n", line, book.BookID)
	}
	if booksResp.HasMore && booksResp.Cursor != "" {
		fmt.Printf("\nMore books available. Use --cursor %s\n", booksResp.Cursor)
	}

	return nil
}
