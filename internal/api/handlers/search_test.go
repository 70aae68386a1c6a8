package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/index"
	"github.com/praxis-ed/curio/internal/service"
)

type fakeSearchService struct {
	req  service.SearchRequest
	hits []index.Hit
	err  error
}

func (f *fakeSearchService) Search(_ context.Context, req service.SearchRequest) ([]index.Hit, error) {
	f.req = req
	return f.hits, f.err
}

func TestSearchHandler(t *testing.T) {
	t.Run("returns ranked hits", func(t *testing.T) {
		svc := &fakeSearchService{hits: []index.Hit{
			{ID: "a1", Text: "The cat sat", Score: 0.92, Metadata: map[string]any{"book_id": "b1"}},
			{ID: "a2", Text: "on the mat", Score: 0.81},
		}}
		handler := NewSearchHandler(svc)

		body := `{"query":"cats","limit":5,"book_ids":["b1"],"max_unit":3}`
		req := identified(httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(body)), "user-1")
		w := httptest.NewRecorder()

		handler.Search(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "cats", svc.req.Query)
		assert.Equal(t, 5, svc.req.Limit)
		assert.Equal(t, "user-1", svc.req.UserID)
		assert.Equal(t, []string{"b1"}, svc.req.BookIDs)
		require.NotNil(t, svc.req.MaxUnit)
		assert.Equal(t, 3, *svc.req.MaxUnit)

		var resp struct {
			Data SearchResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Data.Count)
		assert.Equal(t, "a1", resp.Data.Results[0].ID)
		assert.InDelta(t, 0.92, resp.Data.Results[0].Score, 1e-9)
	})

	t.Run("empty query is rejected", func(t *testing.T) {
		handler := NewSearchHandler(&fakeSearchService{})
		req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{}`))
		w := httptest.NewRecorder()

		handler.Search(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("anonymous requests carry no user", func(t *testing.T) {
		svc := &fakeSearchService{}
		handler := NewSearchHandler(svc)

		req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"q"}`))
		handler.Search(httptest.NewRecorder(), req)

		assert.Empty(t, svc.req.UserID)
	})

	t.Run("index unavailable maps to 503", func(t *testing.T) {
		handler := NewSearchHandler(&fakeSearchService{err: domain.ErrIndexUnavailable})
		req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"q"}`))
		w := httptest.NewRecorder()

		handler.Search(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
