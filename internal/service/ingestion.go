package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/ingest"
	"github.com/praxis-ed/curio/internal/openai"
)

// StructureStore persists the book hierarchy.
type StructureStore interface {
	EnsureSchema(ctx context.Context) error
	InsertStructureNodes(ctx context.Context, nodes []domain.StructureNode) error
}

// ChainRunner drives the fallback ingestion chain for one document.
type ChainRunner interface {
	Run(ctx context.Context, path string, bookID uuid.UUID, category domain.Category) (*ingest.Result, error)
}

// Classifier detects a book's category and grade level.
type Classifier interface {
	ClassifyBook(ctx context.Context, title, sample string) (openai.BookClassification, error)
}

// TextSampler extracts a classification sample from the source document.
type TextSampler interface {
	SampleText(docPath string, maxLen int) (string, error)
}

// IngestionService runs the full pipeline for one book: classify, parse
// through the fallback chain, persist structure, index atoms.
type IngestionService struct {
	runner     ChainRunner
	structures StructureStore
	indexer    *IndexingService
	classifier Classifier
	sampler    TextSampler
}

func NewIngestionService(runner ChainRunner, structures StructureStore, indexer *IndexingService, classifier Classifier, sampler TextSampler) *IngestionService {
	return &IngestionService{
		runner:     runner,
		structures: structures,
		indexer:    indexer,
		classifier: classifier,
		sampler:    sampler,
	}
}

// IngestRequest describes one book to ingest. Category may be pre-known;
// when empty it is detected from the title and a text sample.
type IngestRequest struct {
	Path     string
	Title    string
	BookID   uuid.UUID
	OwnerID  string
	Category domain.Category
}

// IngestSummary reports what one ingestion run produced.
type IngestSummary struct {
	BookID     uuid.UUID       `json:"book_id"`
	Strategy   ingest.Strategy `json:"strategy"`
	Category   domain.Category `json:"category"`
	GradeLevel int             `json:"grade_level,omitempty"`
	NodeCount  int             `json:"node_count"`
	AtomCount  int             `json:"atom_count"`
}

// IngestBook runs the pipeline. Structure insert and index insert are
// separate commits: an index failure is fatal for the run but leaves the
// already-persisted structure in place.
func (s *IngestionService) IngestBook(ctx context.Context, req IngestRequest) (*IngestSummary, error) {
	if req.Path == "" {
		return nil, fmt.Errorf("%w: path", domain.ErrMissingRequiredField)
	}

	bookID := req.BookID
	if bookID == uuid.Nil {
		bookID = uuid.New()
	}

	category := req.Category
	gradeLevel := 0
	if category == "" {
		category, gradeLevel = s.detectCategory(ctx, req)
	}

	result, err := s.runner.Run(ctx, req.Path, bookID, category)
	if err != nil {
		return nil, err
	}

	s.annotate(result.Nodes, req, category, gradeLevel)

	if err := s.structures.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	if err := s.structures.InsertStructureNodes(ctx, result.Nodes); err != nil {
		return nil, fmt.Errorf("failed to persist structure for book %s: %w", bookID, err)
	}

	if err := s.indexer.IndexAtoms(ctx, result.Nodes, result.Atoms, req.OwnerID); err != nil {
		// Structure nodes are already committed and stay committed.
		// The book exists with no searchable content until a re-run.
		log.Printf("ALERT: book %s has structure but no indexed content: %v", bookID, err)
		return nil, err
	}

	return &IngestSummary{
		BookID:     bookID,
		Strategy:   result.Strategy,
		Category:   category,
		GradeLevel: gradeLevel,
		NodeCount:  len(result.Nodes),
		AtomCount:  len(result.Atoms),
	}, nil
}

func (s *IngestionService) detectCategory(ctx context.Context, req IngestRequest) (domain.Category, int) {
	sample := ""
	if s.sampler != nil {
		var err error
		sample, err = s.sampler.SampleText(req.Path, 500)
		if err != nil {
			log.Printf("no text sample for %s: %v", req.Path, err)
		}
	}

	cls, err := s.classifier.ClassifyBook(ctx, req.Title, sample)
	if err != nil {
		log.Printf("classification failed for %s, defaulting to language: %v", req.Path, err)
		return domain.CategoryLanguage, 0
	}
	return cls.Category, cls.GradeLevel
}

// annotate stamps ownership on every node and the book description onto
// the root, where listBooks reads it back.
func (s *IngestionService) annotate(nodes []domain.StructureNode, req IngestRequest, category domain.Category, gradeLevel int) {
	for i := range nodes {
		nodes[i].OwnerID = req.OwnerID
		if nodes[i].NodeLevel != 0 {
			continue
		}
		if req.Title != "" {
			nodes[i].Title = req.Title
		}
		if nodes[i].MetaData == nil {
			nodes[i].MetaData = map[string]any{}
		}
		nodes[i].MetaData["category"] = string(category)
		if gradeLevel > 0 {
			nodes[i].MetaData["grade_level"] = gradeLevel
		}
	}
}
