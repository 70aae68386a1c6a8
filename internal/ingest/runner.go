package ingest

import (
	"context"
	"fmt"
	"image"
	"log"

	"github.com/google/uuid"

	"github.com/praxis-ed/curio/internal/cloudparse"
	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/openai"
	"github.com/praxis-ed/curio/internal/parser"
)

// CloudParser is the hosted parsing service consumed by the second
// strategy.
type CloudParser interface {
	ParseDocument(ctx context.Context, path string) ([]cloudparse.ParsedSection, error)
}

// VisionModel is the page-extraction surface of the vision fallback.
type VisionModel interface {
	ExtractPage(ctx context.Context, image []byte) (*openai.PageExtraction, error)
}

// PageStore supplies page counts and rasters for the vision fallback.
type PageStore interface {
	PageCount(docPath string) (int, error)
	PageImage(docPath string, page int) (image.Image, error)
}

// Runner drives the fallback chain: primary layout parse, then the cloud
// parsing service, then per-page vision extraction. Strategies run strictly
// in that order and the first success wins; a sparse-looking success never
// re-opens the chain mid-flight.
type Runner struct {
	layout      parser.LayoutParser
	adapter     *parser.Adapter
	cloud       CloudParser
	vision      VisionModel
	pages       PageStore
	concurrency int
}

func NewRunner(layout parser.LayoutParser, adapter *parser.Adapter, cloud CloudParser, vision VisionModel, pages PageStore, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = defaultVisionConcurrency
	}
	return &Runner{
		layout:      layout,
		adapter:     adapter,
		cloud:       cloud,
		vision:      vision,
		pages:       pages,
		concurrency: concurrency,
	}
}

// Run executes the chain for one document and returns the winning attempt.
// A vision failure is terminal: the returned error wraps ErrIngestionFailed
// and the Result still carries the attempt record for reporting.
func (r *Runner) Run(ctx context.Context, path string, bookID uuid.UUID, category domain.Category) (*Result, error) {
	result := &Result{}

	nodes, atoms, err := r.runPrimary(path, bookID, category)
	if err == nil {
		return r.finish(result, StrategyPrimary, nodes, atoms), nil
	}
	log.Printf("primary parse failed for %s, trying cloud fallback: %v", path, err)
	result.Attempts = append(result.Attempts, Attempt{Strategy: StrategyPrimary, Err: err})

	nodes, atoms, err = r.runCloud(ctx, path, bookID, category)
	if err == nil {
		return r.finish(result, StrategyCloud, nodes, atoms), nil
	}
	log.Printf("cloud fallback failed for %s, trying vision fallback: %v", path, err)
	result.Attempts = append(result.Attempts, Attempt{Strategy: StrategyCloud, Err: err})

	nodes, atoms, err = r.runVision(ctx, path, bookID, category)
	if err == nil {
		return r.finish(result, StrategyVision, nodes, atoms), nil
	}
	result.Attempts = append(result.Attempts, Attempt{Strategy: StrategyVision, Err: err})

	return result, fmt.Errorf("%w for %s: %v", domain.ErrIngestionFailed, path, err)
}

func (r *Runner) finish(result *Result, strategy Strategy, nodes []domain.StructureNode, atoms []domain.ContentAtom) *Result {
	result.Strategy = strategy
	result.Nodes = nodes
	result.Atoms = atoms
	result.Attempts = append(result.Attempts, Attempt{Strategy: strategy, Nodes: nodes, Atoms: atoms})
	log.Printf("ingestion succeeded via %s: %d nodes, %d atoms", strategy, len(nodes), len(atoms))
	return result
}

func (r *Runner) runPrimary(path string, bookID uuid.UUID, category domain.Category) ([]domain.StructureNode, []domain.ContentAtom, error) {
	export, err := r.layout.Parse(path)
	if err != nil {
		return nil, nil, err
	}
	if r.adapter.NeedsFallback(export) {
		return nil, nil, domain.ErrLowQualityParse
	}
	return r.adapter.BuildStructure(export, bookID, category, path)
}

func (r *Runner) runCloud(ctx context.Context, path string, bookID uuid.UUID, category domain.Category) ([]domain.StructureNode, []domain.ContentAtom, error) {
	sections, err := r.cloud.ParseDocument(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return cloudparse.BuildStructure(sections, bookID, category, path)
}
