package service

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/index"
	"github.com/praxis-ed/curio/internal/pageimage"
)

// PendingImageIndex is the slice of the vector index the enrichment pass
// needs: finding undescribed images and persisting their descriptions.
type PendingImageIndex interface {
	FindUnreferencedImages(ctx context.Context, limit int) ([]index.Unit, error)
	Add(ctx context.Context, units []index.Unit) error
}

// PageSource supplies rasters and page geometry for cropping.
type PageSource interface {
	PageImage(docPath string, page int) (image.Image, error)
	PageHeight(docPath string, page int) (float64, error)
}

// ImageDescriber generates descriptions for cropped regions.
type ImageDescriber interface {
	DescribeImage(ctx context.Context, image []byte) (string, error)
}

const (
	defaultEnrichBatchSize   = 10
	defaultEnrichConcurrency = 5
)

// EnrichmentService is the idempotent post-ingestion pass that describes
// image atoms. Idempotence rests entirely on the back-reference existence
// check in the pending query: a staged description carries the image's ID,
// so the image never comes back as pending.
type EnrichmentService struct {
	index       PendingImageIndex
	pages       PageSource
	describer   ImageDescriber
	batchSize   int
	concurrency int
}

func NewEnrichmentService(idx PendingImageIndex, pages PageSource, describer ImageDescriber, batchSize, concurrency int) *EnrichmentService {
	if batchSize <= 0 {
		batchSize = defaultEnrichBatchSize
	}
	if concurrency <= 0 {
		concurrency = defaultEnrichConcurrency
	}
	return &EnrichmentService{
		index:       idx,
		pages:       pages,
		describer:   describer,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// ProcessJobs implements the background worker's processor interface.
func (s *EnrichmentService) ProcessJobs(ctx context.Context) error {
	_, err := s.ProcessBatch(ctx)
	return err
}

// ProcessBatch describes one batch of pending images and persists the
// staged descriptions in a single index write. Per-image failures are
// logged and skipped; the image stays pending for the next run.
func (s *EnrichmentService) ProcessBatch(ctx context.Context) (int, error) {
	pending, err := s.index.FindUnreferencedImages(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find pending images: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	log.Printf("enrichment: %d pending images", len(pending))

	sem := semaphore.NewWeighted(int64(s.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var staged []index.Unit

	for _, unit := range pending {
		wg.Add(1)
		go func(unit index.Unit) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			desc, err := s.describeOne(ctx, unit)
			if err != nil {
				log.Printf("enrichment failed for atom %s: %v", unit.ID, err)
				return
			}
			mu.Lock()
			staged = append(staged, desc)
			mu.Unlock()
		}(unit)
	}
	wg.Wait()

	if len(staged) == 0 {
		return 0, nil
	}
	if err := s.index.Add(ctx, staged); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	log.Printf("enrichment: persisted %d image descriptions", len(staged))
	return len(staged), nil
}

func (s *EnrichmentService) describeOne(ctx context.Context, unit index.Unit) (index.Unit, error) {
	filePath, _ := unit.Metadata["file_path"].(string)
	page, pageOK := intFromAny(unit.Metadata["page_number"])
	bbox, bboxOK := domain.BBoxFromMap(unit.Metadata["bbox"])
	if filePath == "" || !pageOK || !bboxOK {
		return index.Unit{}, fmt.Errorf("%w: file_path, page_number or bbox", domain.ErrMissingRequiredField)
	}

	img, err := s.pages.PageImage(filePath, page)
	if err != nil {
		return index.Unit{}, err
	}
	pageHeight, err := s.pages.PageHeight(filePath, page)
	if err != nil {
		// Without page geometry the box is taken as pixel space.
		pageHeight = 0
	}

	crop, err := pageimage.CropRegion(img, bbox, pageHeight)
	if err != nil {
		return index.Unit{}, err
	}
	data, err := pageimage.EncodePNG(crop)
	if err != nil {
		return index.Unit{}, err
	}

	desc, err := s.describer.DescribeImage(ctx, data)
	if err != nil {
		return index.Unit{}, err
	}

	meta := make(map[string]any, len(unit.Metadata)+2)
	for k, v := range unit.Metadata {
		meta[k] = v
	}
	meta["atom_type"] = string(domain.AtomTypeImageDesc)
	meta["content_type"] = string(domain.AtomTypeImageDesc)
	meta["referenced_image_atom_id"] = unit.ID

	return index.Unit{
		ID:       uuid.NewString(),
		Text:     desc,
		Metadata: meta,
	}, nil
}

func intFromAny(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
