package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-ed/curio/internal/api/middleware"
	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/ingest"
	"github.com/praxis-ed/curio/internal/service"
)

type fakeIngestService struct {
	req     service.IngestRequest
	summary *service.IngestSummary
	err     error
}

func (f *fakeIngestService) IngestBook(_ context.Context, req service.IngestRequest) (*service.IngestSummary, error) {
	f.req = req
	return f.summary, f.err
}

func identified(req *http.Request, userID string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
	return req.WithContext(ctx)
}

func TestIngestHandler(t *testing.T) {
	bookID := uuid.New()

	t.Run("valid request returns 201 with summary", func(t *testing.T) {
		svc := &fakeIngestService{summary: &service.IngestSummary{
			BookID:    bookID,
			Strategy:  ingest.StrategyPrimary,
			Category:  domain.CategoryLanguage,
			NodeCount: 3,
			AtomCount: 12,
		}}
		handler := NewIngestHandler(svc)

		body := `{"path":"/books/english.pdf","title":"English A1","category":"language"}`
		req := identified(httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(body)), "teacher-1")
		w := httptest.NewRecorder()

		handler.Ingest(w, req)

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "/books/english.pdf", svc.req.Path)
		assert.Equal(t, "teacher-1", svc.req.OwnerID)
		assert.Equal(t, domain.CategoryLanguage, svc.req.Category)

		var resp struct {
			Data service.IngestSummary `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, bookID, resp.Data.BookID)
		assert.Equal(t, 12, resp.Data.AtomCount)
	})

	t.Run("missing path is rejected", func(t *testing.T) {
		handler := NewIngestHandler(&fakeIngestService{})
		req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(`{"title":"x"}`))
		w := httptest.NewRecorder()

		handler.Ingest(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed book id is rejected", func(t *testing.T) {
		handler := NewIngestHandler(&fakeIngestService{})
		body := `{"path":"/b.pdf","book_id":"not-a-uuid"}`
		req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(body))
		w := httptest.NewRecorder()

		handler.Ingest(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown category is rejected", func(t *testing.T) {
		handler := NewIngestHandler(&fakeIngestService{})
		body := `{"path":"/b.pdf","category":"astrology"}`
		req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(body))
		w := httptest.NewRecorder()

		handler.Ingest(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("ingestion failure maps to 500", func(t *testing.T) {
		handler := NewIngestHandler(&fakeIngestService{err: domain.ErrIngestionFailed})
		body := `{"path":"/b.pdf"}`
		req := httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(body))
		w := httptest.NewRecorder()

		handler.Ingest(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
