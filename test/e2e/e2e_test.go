//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ingestSummary struct {
	BookID    string `json:"book_id"`
	Strategy  string `json:"strategy"`
	Category  string `json:"category"`
	NodeCount int    `json:"node_count"`
	AtomCount int    `json:"atom_count"`
}

type searchHit struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
	Count   int         `json:"count"`
}

type bookItem struct {
	BookID     string `json:"book_id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	GradeLevel int    `json:"grade_level"`
	OwnerID    string `json:"owner_id"`
}

type booksPage struct {
	Items   []bookItem `json:"items"`
	Cursor  string     `json:"cursor"`
	HasMore bool       `json:"has_more"`
}

// layoutFixture builds a two-unit layout export with enough readable blocks
// to pass the quality heuristic.
func layoutFixture() []byte {
	export := map[string]any{
		"texts": []map[string]any{
			{"text": "Unit 1 Integers", "label": "section_header", "level": 1,
				"prov": []map[string]any{{"page_no": 1}}},
			{"text": "Integers are whole numbers and their negatives.", "label": "paragraph",
				"prov": []map[string]any{{"page_no": 1}}},
			{"text": "Adding two negative integers gives a negative integer.", "label": "paragraph",
				"prov": []map[string]any{{"page_no": 1}}},
			{"text": "Unit 2 Fractions", "label": "section_header", "level": 1,
				"prov": []map[string]any{{"page_no": 2}}},
			{"text": "A fraction names part of a whole.", "label": "paragraph",
				"prov": []map[string]any{{"page_no": 2}}},
			{"text": "Equivalent fractions name the same amount with different numerals.", "label": "paragraph",
				"prov": []map[string]any{{"page_no": 2}}},
		},
		"tables": []map[string]any{
			{
				"data": map[string]any{
					"table_cells": []map[string]any{
						{"text": "Numerator", "start_row_offset_idx": 0, "start_col_offset_idx": 0},
						{"text": "Denominator", "start_row_offset_idx": 0, "start_col_offset_idx": 1},
						{"text": "1", "start_row_offset_idx": 1, "start_col_offset_idx": 0},
						{"text": "2", "start_row_offset_idx": 1, "start_col_offset_idx": 1},
					},
				},
				"prov": []map[string]any{{"page_no": 2}},
			},
		},
		"pictures": []map[string]any{
			{"prov": []map[string]any{{
				"page_no": 2,
				"bbox":    map[string]any{"l": 10.0, "t": 20.0, "r": 110.0, "b": 120.0, "coord_origin": "TOPLEFT"},
			}}},
		},
	}
	raw, _ := json.Marshal(export)
	return raw
}

func TestE2E_IngestSearchBooks(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	docPath := env.StageBook("books/algebra.pdf", []byte("%PDF-1.4 stub"), layoutFixture())

	var bookID string

	t.Run("ingest as owner", func(t *testing.T) {
		resp, err := env.Post("/v1/ingest", map[string]string{
			"path":     docPath,
			"title":    "Algebra Basics",
			"category": "stem",
		}, "teacher-1")
		require.NoError(t, err)

		var summary ingestSummary
		require.NoError(t, json.Unmarshal(resp.Data, &summary))
		assert.NotEmpty(t, summary.BookID)
		assert.Equal(t, "primary", summary.Strategy)
		assert.Equal(t, "stem", summary.Category)
		// Root plus two unit headings.
		assert.Equal(t, 3, summary.NodeCount)
		// Four paragraphs, one table, one image region.
		assert.Equal(t, 6, summary.AtomCount)

		bookID = summary.BookID
	})

	t.Run("owner finds own content", func(t *testing.T) {
		resp, err := env.Post("/v1/search", map[string]any{
			"query": "fractions",
			"limit": 10,
		}, "teacher-1")
		require.NoError(t, err)

		var result searchResponse
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		require.NotEmpty(t, result.Results)

		for _, hit := range result.Results {
			assert.Equal(t, bookID, hit.Metadata["book_id"])
			assert.Equal(t, "teacher-1", hit.Metadata["owner_id"])
		}
	})

	t.Run("anonymous sees nothing private", func(t *testing.T) {
		resp, err := env.Post("/v1/search", map[string]any{
			"query": "fractions",
			"limit": 10,
		}, "")
		require.NoError(t, err)

		var result searchResponse
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.Empty(t, result.Results)
	})

	t.Run("other user sees nothing private", func(t *testing.T) {
		resp, err := env.Post("/v1/search", map[string]any{
			"query": "fractions",
			"limit": 10,
		}, "teacher-2")
		require.NoError(t, err)

		var result searchResponse
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.Empty(t, result.Results)
	})

	t.Run("max_unit caps curriculum progress", func(t *testing.T) {
		resp, err := env.Post("/v1/search", map[string]any{
			"query":    "numbers",
			"limit":    20,
			"max_unit": 1,
		}, "teacher-1")
		require.NoError(t, err)

		var result searchResponse
		require.NoError(t, json.Unmarshal(resp.Data, &result))

		for _, hit := range result.Results {
			unit, ok := hit.Metadata["unit_number"].(float64)
			if !ok {
				continue
			}
			assert.LessOrEqual(t, unit, float64(1))
		}
	})

	t.Run("book scope excludes other books", func(t *testing.T) {
		resp, err := env.Post("/v1/search", map[string]any{
			"query":    "fractions",
			"limit":    10,
			"book_ids": []string{"00000000-0000-0000-0000-000000000001"},
		}, "teacher-1")
		require.NoError(t, err)

		var result searchResponse
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.Empty(t, result.Results)
	})

	t.Run("empty query rejected", func(t *testing.T) {
		_, err := env.Post("/v1/search", map[string]any{"query": ""}, "teacher-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 400")
	})

	t.Run("books listing reflects the root node", func(t *testing.T) {
		resp, err := env.Get("/v1/books?subject=stem", "teacher-1")
		require.NoError(t, err)

		var page booksPage
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		require.Len(t, page.Items, 1)

		book := page.Items[0]
		assert.Equal(t, bookID, book.BookID)
		assert.Equal(t, "Algebra Basics", book.Title)
		assert.Equal(t, "stem", book.Category)
		assert.Equal(t, "teacher-1", book.OwnerID)
	})

	t.Run("fuzzy title filter tolerates typos", func(t *testing.T) {
		resp, err := env.Get("/v1/books?title=Algebra+Bsics", "teacher-1")
		require.NoError(t, err)

		var page booksPage
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		require.Len(t, page.Items, 1)
		assert.Equal(t, "Algebra Basics", page.Items[0].Title)
	})
}

func TestE2E_GlobalContent(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	docPath := env.StageBook("books/grammar.pdf", []byte("%PDF-1.4 stub"), layoutFixture())

	resp, err := env.Post("/v1/ingest", map[string]string{
		"path":     docPath,
		"title":    "Grammar Handbook",
		"category": "language",
	}, "")
	require.NoError(t, err)

	var summary ingestSummary
	require.NoError(t, json.Unmarshal(resp.Data, &summary))
	require.NotEmpty(t, summary.BookID)

	// Global content is visible to everyone, identified or not.
	for _, userID := range []string{"", "student-7"} {
		name := "anonymous"
		if userID != "" {
			name = userID
		}
		t.Run(fmt.Sprintf("visible to %s", name), func(t *testing.T) {
			searchResp, err := env.Post("/v1/search", map[string]any{
				"query": "fractions",
				"limit": 10,
			}, userID)
			require.NoError(t, err)

			var result searchResponse
			require.NoError(t, json.Unmarshal(searchResp.Data, &result))
			require.NotEmpty(t, result.Results)
			for _, hit := range result.Results {
				assert.Equal(t, summary.BookID, hit.Metadata["book_id"])
			}
		})
	}
}
