package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/praxis-ed/curio/internal/api"
	"github.com/praxis-ed/curio/internal/api/middleware"
	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/service"
)

type IngestService interface {
	IngestBook(ctx context.Context, req service.IngestRequest) (*service.IngestSummary, error)
}

type IngestHandler struct {
	svc IngestService
}

func NewIngestHandler(svc IngestService) *IngestHandler {
	return &IngestHandler{svc: svc}
}

type IngestBookRequest struct {
	Path     string `json:"path"`
	Title    string `json:"title"`
	BookID   string `json:"book_id,omitempty"`
	Category string `json:"category,omitempty"`
}

// Ingest runs the full pipeline for one document. The call is synchronous;
// large books can take minutes, so callers set their timeouts accordingly.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Path == "" {
		api.Error(w, http.StatusBadRequest, "path is required")
		return
	}

	bookID := uuid.Nil
	if req.BookID != "" {
		parsed, err := uuid.Parse(req.BookID)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid book_id")
			return
		}
		bookID = parsed
	}

	var category domain.Category
	if req.Category != "" {
		parsed, err := domain.ParseCategory(req.Category)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid category")
			return
		}
		category = parsed
	}

	summary, err := h.svc.IngestBook(r.Context(), service.IngestRequest{
		Path:     req.Path,
		Title:    req.Title,
		BookID:   bookID,
		OwnerID:  middleware.GetUserID(r.Context()),
		Category: category,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, summary)
}
