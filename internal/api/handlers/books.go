package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/praxis-ed/curio/internal/api"
	"github.com/praxis-ed/curio/internal/pagination"
	"github.com/praxis-ed/curio/internal/repository"
)

type BookLister interface {
	ListBooks(ctx context.Context, filter repository.BookFilter, cursor *pagination.Cursor, limit int) (*pagination.PageResult[repository.BookSummary], error)
}

type BooksHandler struct {
	repo BookLister
}

func NewBooksHandler(repo BookLister) *BooksHandler {
	return &BooksHandler{repo: repo}
}

// List returns ingested books, newest first, filtered by title, subject
// and grade level query parameters.
func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := repository.BookFilter{
		Title:   query.Get("title"),
		Subject: query.Get("subject"),
	}
	if gradeStr := query.Get("grade_level"); gradeStr != "" {
		grade, err := strconv.Atoi(gradeStr)
		if err != nil || grade <= 0 {
			api.Error(w, http.StatusBadRequest, "invalid grade_level")
			return
		}
		filter.GradeLevel = grade
	}

	limit := 0
	if limitStr := query.Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := pagination.DecodeCursor(query.Get("cursor"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	page, err := h.repo.ListBooks(r.Context(), filter, cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, page)
}
