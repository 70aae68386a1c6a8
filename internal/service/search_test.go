package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/index"
)

type fakeRetriever struct {
	calls   int
	query   string
	limit   int
	filters *index.FilterSet
	hits    []index.Hit
	err     error
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, limit int, filters *index.FilterSet) ([]index.Hit, error) {
	f.calls++
	f.query = query
	f.limit = limit
	f.filters = filters
	return f.hits, f.err
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("empty query is rejected", func(t *testing.T) {
		svc := NewSearchService(&fakeRetriever{})
		_, err := svc.Search(ctx, SearchRequest{})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrMissingRequiredField)
	})

	t.Run("anonymous caller only sees global content", func(t *testing.T) {
		retriever := &fakeRetriever{hits: []index.Hit{{ID: "a"}}}
		svc := NewSearchService(retriever)

		hits, err := svc.Search(ctx, SearchRequest{Query: "past tense", Limit: 5})
		require.NoError(t, err)
		assert.Len(t, hits, 1)
		assert.Equal(t, "past tense", retriever.query)
		assert.Equal(t, 5, retriever.limit)

		require.NotNil(t, retriever.filters)
		require.Len(t, retriever.filters.Filters, 1)
		assert.Equal(t, "owner_id", retriever.filters.Filters[0].Key)
		assert.Equal(t, index.OpIsEmpty, retriever.filters.Filters[0].Op)
		assert.Empty(t, retriever.filters.Groups)
	})

	t.Run("authenticated caller sees own and global content", func(t *testing.T) {
		retriever := &fakeRetriever{}
		svc := NewSearchService(retriever)

		_, err := svc.Search(ctx, SearchRequest{Query: "q", UserID: "user-1"})
		require.NoError(t, err)

		require.Len(t, retriever.filters.Groups, 1)
		group := retriever.filters.Groups[0]
		assert.Equal(t, index.ConditionOr, group.Condition)
		require.Len(t, group.Filters, 2)
		assert.Equal(t, index.Filter{Key: "owner_id", Op: index.OpEQ, Value: "user-1"}, group.Filters[0])
		assert.Equal(t, index.Filter{Key: "owner_id", Op: index.OpIsEmpty}, group.Filters[1])
	})

	t.Run("empty non-nil book list short-circuits", func(t *testing.T) {
		retriever := &fakeRetriever{hits: []index.Hit{{ID: "should not appear"}}}
		svc := NewSearchService(retriever)

		hits, err := svc.Search(ctx, SearchRequest{Query: "q", BookIDs: []string{}})
		require.NoError(t, err)
		assert.Empty(t, hits)
		assert.Equal(t, 0, retriever.calls)
	})

	t.Run("nil book list leaves retrieval unscoped", func(t *testing.T) {
		retriever := &fakeRetriever{}
		svc := NewSearchService(retriever)

		_, err := svc.Search(ctx, SearchRequest{Query: "q"})
		require.NoError(t, err)
		for _, f := range retriever.filters.Filters {
			assert.NotEqual(t, "book_id", f.Key)
		}
	})

	t.Run("single book uses equality", func(t *testing.T) {
		retriever := &fakeRetriever{}
		svc := NewSearchService(retriever)

		_, err := svc.Search(ctx, SearchRequest{Query: "q", BookIDs: []string{"b1"}})
		require.NoError(t, err)
		assert.Contains(t, retriever.filters.Filters, index.Filter{Key: "book_id", Op: index.OpEQ, Value: "b1"})
	})

	t.Run("multiple books use IN", func(t *testing.T) {
		retriever := &fakeRetriever{}
		svc := NewSearchService(retriever)

		_, err := svc.Search(ctx, SearchRequest{Query: "q", BookIDs: []string{"b1", "b2"}})
		require.NoError(t, err)
		assert.Contains(t, retriever.filters.Filters, index.Filter{Key: "book_id", Op: index.OpIn, Value: []string{"b1", "b2"}})
	})

	t.Run("curriculum bounds become LTE filters", func(t *testing.T) {
		retriever := &fakeRetriever{}
		svc := NewSearchService(retriever)

		maxSeq := 42
		maxUnit := 3
		_, err := svc.Search(ctx, SearchRequest{Query: "q", MaxSequenceIndex: &maxSeq, MaxUnit: &maxUnit})
		require.NoError(t, err)
		assert.Contains(t, retriever.filters.Filters, index.Filter{Key: "sequence_index", Op: index.OpLTE, Value: 42})
		assert.Contains(t, retriever.filters.Filters, index.Filter{Key: "unit_number", Op: index.OpLTE, Value: 3})
	})

	t.Run("retriever errors propagate", func(t *testing.T) {
		retriever := &fakeRetriever{err: errors.New("index down")}
		svc := NewSearchService(retriever)

		_, err := svc.Search(ctx, SearchRequest{Query: "q"})
		assert.Error(t, err)
	})
}
