package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-ed/curio/internal/pagination"
	"github.com/praxis-ed/curio/internal/repository"
)

type fakeBookLister struct {
	filter repository.BookFilter
	cursor *pagination.Cursor
	limit  int
	page   *pagination.PageResult[repository.BookSummary]
	err    error
}

func (f *fakeBookLister) ListBooks(_ context.Context, filter repository.BookFilter, cursor *pagination.Cursor, limit int) (*pagination.PageResult[repository.BookSummary], error) {
	f.filter = filter
	f.cursor = cursor
	f.limit = limit
	return f.page, f.err
}

func TestBooksHandler(t *testing.T) {
	t.Run("filters come from query parameters", func(t *testing.T) {
		lister := &fakeBookLister{page: &pagination.PageResult[repository.BookSummary]{
			Items: []repository.BookSummary{{BookID: uuid.New(), Title: "English for Beginners"}},
		}}
		handler := NewBooksHandler(lister)

		req := httptest.NewRequest(http.MethodGet, "/v1/books?title=english&subject=language&grade_level=5&limit=10", nil)
		w := httptest.NewRecorder()

		handler.List(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "english", lister.filter.Title)
		assert.Equal(t, "language", lister.filter.Subject)
		assert.Equal(t, 5, lister.filter.GradeLevel)
		assert.Equal(t, 10, lister.limit)
		assert.Nil(t, lister.cursor)

		var resp struct {
			Data pagination.PageResult[repository.BookSummary] `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Data.Items, 1)
		assert.Equal(t, "English for Beginners", resp.Data.Items[0].Title)
	})

	t.Run("cursor round-trips", func(t *testing.T) {
		lister := &fakeBookLister{page: &pagination.PageResult[repository.BookSummary]{}}
		handler := NewBooksHandler(lister)

		lastID := uuid.NewString()
		cursor := pagination.EncodeCursor(lastID, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
		req := httptest.NewRequest(http.MethodGet, "/v1/books?cursor="+cursor, nil)

		handler.List(httptest.NewRecorder(), req)

		require.NotNil(t, lister.cursor)
		assert.Equal(t, lastID, lister.cursor.LastID)
	})

	t.Run("garbage cursor is rejected", func(t *testing.T) {
		handler := NewBooksHandler(&fakeBookLister{})
		req := httptest.NewRequest(http.MethodGet, "/v1/books?cursor=%21%21%21", nil)
		w := httptest.NewRecorder()

		handler.List(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("non-numeric grade is rejected", func(t *testing.T) {
		handler := NewBooksHandler(&fakeBookLister{})
		req := httptest.NewRequest(http.MethodGet, "/v1/books?grade_level=five", nil)
		w := httptest.NewRecorder()

		handler.List(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
