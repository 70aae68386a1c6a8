package service

import (
	"context"
	"fmt"

	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/index"
)

// Retriever is the query surface of the vector index.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int, filters *index.FilterSet) ([]index.Hit, error)
}

// SearchService builds the retrieval filter set and queries the index.
type SearchService struct {
	retriever Retriever
}

func NewSearchService(retriever Retriever) *SearchService {
	return &SearchService{retriever: retriever}
}

// SearchRequest is one retrieval call. BookIDs semantics: nil means no
// book scoping at all; an empty non-nil list means the caller is in strict
// mode with no books assigned and must get nothing back.
type SearchRequest struct {
	Query            string
	Limit            int
	UserID           string
	BookIDs          []string
	MaxSequenceIndex *int
	MaxUnit          *int
}

// Search returns ranked hits. The ownership filter is always present:
// private content is visible only to its owner, global content to everyone.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) ([]index.Hit, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("%w: query", domain.ErrMissingRequiredField)
	}

	// Strict mode with no books assigned: nothing is in scope, so the
	// index is never consulted.
	if req.BookIDs != nil && len(req.BookIDs) == 0 {
		return []index.Hit{}, nil
	}

	filters := s.buildFilters(req)
	return s.retriever.Retrieve(ctx, req.Query, req.Limit, filters)
}

func (s *SearchService) buildFilters(req SearchRequest) *index.FilterSet {
	fs := &index.FilterSet{Condition: index.ConditionAnd}

	if req.UserID != "" {
		fs.Groups = append(fs.Groups, index.FilterSet{
			Condition: index.ConditionOr,
			Filters: []index.Filter{
				{Key: "owner_id", Op: index.OpEQ, Value: req.UserID},
				{Key: "owner_id", Op: index.OpIsEmpty},
			},
		})
	} else {
		fs.Filters = append(fs.Filters, index.Filter{Key: "owner_id", Op: index.OpIsEmpty})
	}

	switch len(req.BookIDs) {
	case 0:
		// nil: unscoped
	case 1:
		fs.Filters = append(fs.Filters, index.Filter{Key: "book_id", Op: index.OpEQ, Value: req.BookIDs[0]})
	default:
		fs.Filters = append(fs.Filters, index.Filter{Key: "book_id", Op: index.OpIn, Value: req.BookIDs})
	}

	if req.MaxSequenceIndex != nil {
		fs.Filters = append(fs.Filters, index.Filter{Key: "sequence_index", Op: index.OpLTE, Value: *req.MaxSequenceIndex})
	}
	if req.MaxUnit != nil {
		fs.Filters = append(fs.Filters, index.Filter{Key: "unit_number", Op: index.OpLTE, Value: *req.MaxUnit})
	}

	return fs
}
