package admin

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxis-ed/curio/internal/cloudparse"
	"github.com/praxis-ed/curio/internal/config"
	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/index"
	"github.com/praxis-ed/curio/internal/ingest"
	"github.com/praxis-ed/curio/internal/openai"
	"github.com/praxis-ed/curio/internal/pageimage"
	"github.com/praxis-ed/curio/internal/parser"
	"github.com/praxis-ed/curio/internal/repository"
	"github.com/praxis-ed/curio/internal/service"
)

// stack is the wired service graph shared by the serve, ingest and enrich
// commands.
type stack struct {
	structures *repository.StructureRepository
	idx        *index.PGIndex
	ingestion  *service.IngestionService
	enrichment *service.EnrichmentService
	search     *service.SearchService
}

func buildStack(cfg *config.Config, pool *pgxpool.Pool) *stack {
	pages := pageimage.NewStore()
	oa := openai.NewClient(cfg.OpenAIAPIKey)

	var vision ingest.VisionModel = oa
	if !cfg.HasOpenAI() {
		vision = disabledVision{}
	}

	runner := ingest.NewRunner(
		parser.NewFileLayoutParser(),
		parser.NewAdapter(),
		cloudparse.NewClient(cfg.ParseAPIURL, cfg.ParseAPIKey),
		vision,
		pages,
		cfg.EnrichConcurrency,
	)

	var embedder index.Embedder = oa
	if cfg.MockEmbedding || !cfg.HasOpenAI() {
		embedder = index.NewMockEmbedder(0)
		log.Println("using deterministic mock embedder")
	}
	idx := index.NewPGIndex(pool, embedder)

	structures := repository.NewStructureRepository(pool)
	indexer := service.NewIndexingService(idx)

	return &stack{
		structures: structures,
		idx:        idx,
		ingestion:  service.NewIngestionService(runner, structures, indexer, oa, pages),
		enrichment: service.NewEnrichmentService(idx, pages, oa, cfg.EnrichBatchSize, cfg.EnrichConcurrency),
		search:     service.NewSearchService(idx),
	}
}

// disabledVision keeps the fallback chain well-defined when no vision
// model is configured: the third strategy fails fast instead of timing
// out against the API.
type disabledVision struct{}

func (disabledVision) ExtractPage(_ context.Context, _ []byte) (*openai.PageExtraction, error) {
	return nil, domain.ErrNoVisionModel
}
