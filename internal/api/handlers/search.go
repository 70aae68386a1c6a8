package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/praxis-ed/curio/internal/api"
	"github.com/praxis-ed/curio/internal/api/middleware"
	"github.com/praxis-ed/curio/internal/index"
	"github.com/praxis-ed/curio/internal/service"
)

type SearchService interface {
	Search(ctx context.Context, req service.SearchRequest) ([]index.Hit, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	Query            string   `json:"query"`
	Limit            int      `json:"limit,omitempty"`
	BookIDs          []string `json:"book_ids,omitempty"`
	MaxSequenceIndex *int     `json:"max_sequence_index,omitempty"`
	MaxUnit          *int     `json:"max_unit,omitempty"`
}

type SearchHit struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type SearchResponse struct {
	Results []SearchHit `json:"results"`
	Count   int         `json:"count"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	hits, err := h.svc.Search(r.Context(), service.SearchRequest{
		Query:            req.Query,
		Limit:            req.Limit,
		UserID:           middleware.GetUserID(r.Context()),
		BookIDs:          req.BookIDs,
		MaxSequenceIndex: req.MaxSequenceIndex,
		MaxUnit:          req.MaxUnit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	results := make([]SearchHit, len(hits))
	for i, hit := range hits {
		results[i] = SearchHit{
			ID:       hit.ID,
			Text:     hit.Text,
			Score:    hit.Score,
			Metadata: hit.Metadata,
		}
	}

	api.Success(w, http.StatusOK, SearchResponse{Results: results, Count: len(results)})
}
