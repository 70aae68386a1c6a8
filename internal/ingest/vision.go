package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/openai"
	"github.com/praxis-ed/curio/internal/pageimage"
)

// defaultVisionConcurrency bounds in-flight vision requests to stay under
// the model provider's rate limits.
const defaultVisionConcurrency = 5

type pageResult struct {
	page       int
	extraction *openai.PageExtraction
	err        error
}

// runVision rasterizes every page, fans extraction requests out under the
// permit pool, and maps each page's structured result into a node plus its
// atoms. Page failures are collected, not propagated: the strategy fails
// only when no page at all could be read.
func (r *Runner) runVision(ctx context.Context, path string, bookID uuid.UUID, category domain.Category) ([]domain.StructureNode, []domain.ContentAtom, error) {
	pageCount, err := r.pages.PageCount(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot enumerate pages of %s: %w", path, err)
	}
	if pageCount == 0 {
		return nil, nil, fmt.Errorf("%s has no pages", path)
	}

	sem := semaphore.NewWeighted(int64(r.concurrency))
	results := make([]pageResult, pageCount)
	var wg sync.WaitGroup

	for page := 1; page <= pageCount; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[page-1] = pageResult{page: page, err: err}
				return
			}
			defer sem.Release(1)
			results[page-1] = r.extractPage(ctx, path, page)
		}(page)
	}
	wg.Wait()

	return r.assemble(results, bookID, category, path)
}

func (r *Runner) extractPage(ctx context.Context, path string, page int) pageResult {
	img, err := r.pages.PageImage(path, page)
	if err != nil {
		return pageResult{page: page, err: err}
	}
	data, err := pageimage.EncodeJPEG(img)
	if err != nil {
		return pageResult{page: page, err: err}
	}
	extraction, err := r.vision.ExtractPage(ctx, data)
	if err != nil {
		return pageResult{page: page, err: err}
	}
	return pageResult{page: page, extraction: extraction}
}

func (r *Runner) assemble(results []pageResult, bookID uuid.UUID, category domain.Category, path string) ([]domain.StructureNode, []domain.ContentAtom, error) {
	root := domain.NewRootNode(bookID, "Book Root", map[string]any{
		"parser_source": "vision",
		"file_path":     path,
	})
	nodes := []domain.StructureNode{root}
	var atoms []domain.ContentAtom

	succeeded, failed := 0, 0
	sequence := 0
	for _, res := range results {
		if res.err != nil {
			failed++
			log.Printf("vision extraction failed for %s page %d: %v", path, res.page, res.err)
			continue
		}
		succeeded++

		title := res.extraction.LessonTitle
		if title == "" {
			title = fmt.Sprintf("Page %d", res.page)
		}
		sequence++
		node := domain.StructureNode{
			ID:            uuid.New(),
			BookID:        bookID,
			ParentID:      &root.ID,
			NodeLevel:     1,
			Title:         title,
			SequenceIndex: sequence,
			MetaData:      map[string]any{"page": res.page},
		}
		nodes = append(nodes, node)

		for _, extracted := range res.extraction.Atoms {
			atom, err := buildVisionAtom(extracted, res.extraction, node, res.page, category)
			if err != nil {
				log.Printf("dropping invalid atom on %s page %d: %v", path, res.page, err)
				continue
			}
			atoms = append(atoms, atom)
		}
	}

	if succeeded == 0 {
		return nil, nil, fmt.Errorf("vision extraction failed on all %d pages of %s", len(results), path)
	}
	if failed > 0 {
		log.Printf("vision extraction finished for %s: %d/%d pages ok", path, succeeded, len(results))
	}

	if err := domain.ValidateStructureNodes(nodes); err != nil {
		return nil, nil, fmt.Errorf("vision extraction produced an invalid tree: %w", err)
	}
	return nodes, atoms, nil
}

// visionAtomTypes maps the model's block types onto atom types. Image
// descriptions come back inline here, with no image_asset atom behind
// them, so they are stored as plain text rather than violating the
// back-reference rule image_desc atoms carry.
var visionAtomTypes = map[string]domain.AtomType{
	"text":       domain.AtomTypeText,
	"image_desc": domain.AtomTypeText,
	"vocab":      domain.AtomTypeVocab,
	"grammar":    domain.AtomTypeGrammar,
	"equation":   domain.AtomTypeEquation,
	"table":      domain.AtomTypeTable,
	"exercise":   domain.AtomTypeExercise,
}

// buildVisionAtom validates one extracted block against the book's closed
// metadata schema. Blocks with fields the schema does not know are dropped.
func buildVisionAtom(extracted openai.ExtractedAtom, page *openai.PageExtraction, node domain.StructureNode, pageNo int, category domain.Category) (domain.ContentAtom, error) {
	atomType, ok := visionAtomTypes[extracted.Type]
	if !ok {
		return domain.ContentAtom{}, fmt.Errorf("%w: %q", domain.ErrInvalidAtomType, extracted.Type)
	}
	if extracted.Content == "" {
		return domain.ContentAtom{}, fmt.Errorf("%w: empty content", domain.ErrMissingRequiredField)
	}

	payload := map[string]any{}
	for key, value := range extracted.MetaData {
		payload[key] = value
	}
	if page.UnitNumber != nil {
		payload["unit_number"] = *page.UnitNumber
	}
	if page.LessonTitle != "" {
		payload["section_title"] = page.LessonTitle
	}
	// Authoritative keys are written after the model's metadata so the
	// extraction output can never override them.
	payload["category"] = string(category)
	payload["content_type"] = string(atomType)
	payload["book_id"] = node.BookID.String()
	payload["page_number"] = pageNo

	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.ContentAtom{}, err
	}
	meta, err := domain.DecodeMetadata(raw)
	if err != nil {
		return domain.ContentAtom{}, err
	}

	nodeID := node.ID
	atom := domain.ContentAtom{
		ID:          uuid.New(),
		BookID:      node.BookID,
		NodeID:      &nodeID,
		AtomType:    atomType,
		ContentText: extracted.Content,
		MetaData:    meta,
	}
	if err := domain.ValidateContentAtom(&atom); err != nil {
		return domain.ContentAtom{}, err
	}
	return atom, nil
}
