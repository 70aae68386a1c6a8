package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-ed/curio/internal/cloudparse"
	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/openai"
	"github.com/praxis-ed/curio/internal/parser"
)

type fakeLayout struct {
	export *parser.Export
	err    error
}

func (f *fakeLayout) Parse(string) (*parser.Export, error) {
	return f.export, f.err
}

type fakeCloud struct {
	sections []cloudparse.ParsedSection
	err      error
	calls    int
}

func (f *fakeCloud) ParseDocument(context.Context, string) ([]cloudparse.ParsedSection, error) {
	f.calls++
	return f.sections, f.err
}

// taggedVision routes responses by page number. The fake page store tags
// each raster with the page number as its pixel width, which survives JPEG
// encoding.
type taggedVision struct {
	pages map[int]*openai.PageExtraction
	errs  map[int]error
}

func (f *taggedVision) ExtractPage(_ context.Context, data []byte) (*openai.PageExtraction, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	page := img.Bounds().Dx()
	if err := f.errs[page]; err != nil {
		return nil, err
	}
	if ext := f.pages[page]; ext != nil {
		return ext, nil
	}
	return nil, fmt.Errorf("no extraction for page %d", page)
}

type fakePages struct {
	count    int
	countErr error
	imgErrs  map[int]error
}

func (f *fakePages) PageCount(string) (int, error) {
	return f.count, f.countErr
}

func (f *fakePages) PageImage(_ string, page int) (image.Image, error) {
	if err := f.imgErrs[page]; err != nil {
		return nil, err
	}
	return image.NewGray(image.Rect(0, 0, page, 8)), nil
}

func goodExport() *parser.Export {
	texts := make([]parser.TextBlock, 0, 12)
	level := 1
	texts = append(texts, parser.TextBlock{Text: "Unit 1", Label: "title", Level: &level})
	for i := 0; i < 10; i++ {
		texts = append(texts, parser.TextBlock{Text: fmt.Sprintf("Paragraph %d.", i), Label: "text"})
	}
	return &parser.Export{Texts: texts}
}

func degradedExport() *parser.Export {
	export := goodExport()
	// Two of three tables have no extracted cells: over the threshold.
	filled := parser.TableBlock{Data: parser.TableData{TableCells: []parser.TableCell{{Text: "x"}}}}
	export.Tables = []parser.TableBlock{filled, {}, {}}
	return export
}

func newTestRunner(layout parser.LayoutParser, cloud CloudParser, vision VisionModel, pages PageStore) *Runner {
	return NewRunner(layout, parser.NewAdapter(), cloud, vision, pages, 2)
}

func TestRunnerStrategyOrder(t *testing.T) {
	bookID := uuid.New()
	ctx := context.Background()

	t.Run("primary success never consults later strategies", func(t *testing.T) {
		cloud := &fakeCloud{}
		runner := newTestRunner(&fakeLayout{export: goodExport()}, cloud, &taggedVision{}, &fakePages{count: 1})

		result, err := runner.Run(ctx, "/books/a.pdf", bookID, domain.CategoryLanguage)
		require.NoError(t, err)

		assert.Equal(t, StrategyPrimary, result.Strategy)
		assert.Zero(t, cloud.calls)
		require.Len(t, result.Attempts, 1)
		assert.Len(t, result.Nodes, 2)
		assert.Len(t, result.Atoms, 10)
	})

	t.Run("quality heuristic hands over to the cloud strategy", func(t *testing.T) {
		cloud := &fakeCloud{sections: []cloudparse.ParsedSection{{Title: "Unit 1", Text: "everything"}}}
		runner := newTestRunner(&fakeLayout{export: degradedExport()}, cloud, &taggedVision{}, &fakePages{count: 1})

		result, err := runner.Run(ctx, "/books/a.pdf", bookID, domain.CategoryLanguage)
		require.NoError(t, err)

		assert.Equal(t, StrategyCloud, result.Strategy)
		require.Len(t, result.Attempts, 2)
		assert.ErrorIs(t, result.Attempts[0].Err, domain.ErrLowQualityParse)
		// The cloud output is what gets persisted, not the degraded primary parse.
		require.Len(t, result.Nodes, 2)
		assert.Equal(t, "Unit 1", result.Nodes[1].Title)
		require.Len(t, result.Atoms, 1)
		assert.Equal(t, domain.AtomTypeComplexPage, result.Atoms[0].AtomType)
	})

	t.Run("missing cloud credential fails that state and moves to vision", func(t *testing.T) {
		vision := &taggedVision{pages: map[int]*openai.PageExtraction{
			1: {LessonTitle: "Station 1", Atoms: []openai.ExtractedAtom{{Type: "text", Content: "Hi"}}},
		}}
		runner := newTestRunner(
			&fakeLayout{err: domain.ErrDocumentNotFound},
			&fakeCloud{err: domain.ErrNoParseCredential},
			vision,
			&fakePages{count: 1},
		)

		result, err := runner.Run(ctx, "/books/a.pdf", bookID, domain.CategoryLanguage)
		require.NoError(t, err)

		assert.Equal(t, StrategyVision, result.Strategy)
		require.Len(t, result.Attempts, 3)
		assert.ErrorIs(t, result.Attempts[1].Err, domain.ErrNoParseCredential)
	})

	t.Run("all strategies failing is terminal", func(t *testing.T) {
		runner := newTestRunner(
			&fakeLayout{err: errors.New("parse crash")},
			&fakeCloud{err: errors.New("service down")},
			&taggedVision{},
			&fakePages{countErr: errors.New("unreadable pdf")},
		)

		result, err := runner.Run(ctx, "/books/a.pdf", bookID, domain.CategoryStem)
		assert.ErrorIs(t, err, domain.ErrIngestionFailed)
		require.Len(t, result.Attempts, 3)
		assert.Empty(t, result.Nodes)
	})
}

func TestRunnerVision(t *testing.T) {
	bookID := uuid.New()
	ctx := context.Background()
	failEverythingElse := func(vision VisionModel, pages PageStore) *Runner {
		return newTestRunner(&fakeLayout{err: errors.New("nope")}, &fakeCloud{err: errors.New("nope")}, vision, pages)
	}

	t.Run("page failures are collected and siblings proceed", func(t *testing.T) {
		vision := &taggedVision{
			pages: map[int]*openai.PageExtraction{
				1: {LessonTitle: "Lesson A", Atoms: []openai.ExtractedAtom{{Type: "text", Content: "one"}}},
				3: {Atoms: []openai.ExtractedAtom{{Type: "vocab", Content: "cat"}}},
			},
			errs: map[int]error{2: errors.New("model refused")},
		}
		runner := failEverythingElse(vision, &fakePages{count: 3})

		result, err := runner.Run(ctx, "/books/a.pdf", bookID, domain.CategoryLanguage)
		require.NoError(t, err)

		// Root plus one node per surviving page, sequence stays dense.
		require.Len(t, result.Nodes, 3)
		assert.Equal(t, "Lesson A", result.Nodes[1].Title)
		assert.Equal(t, 1, result.Nodes[1].SequenceIndex)
		assert.Equal(t, "Page 3", result.Nodes[2].Title)
		assert.Equal(t, 2, result.Nodes[2].SequenceIndex)

		require.Len(t, result.Atoms, 2)
		assert.Equal(t, domain.AtomTypeVocab, result.Atoms[1].AtomType)
	})

	t.Run("every page failing fails the strategy", func(t *testing.T) {
		vision := &taggedVision{errs: map[int]error{1: errors.New("bad"), 2: errors.New("bad")}}
		runner := failEverythingElse(vision, &fakePages{count: 2})

		_, err := runner.Run(ctx, "/books/a.pdf", bookID, domain.CategoryLanguage)
		assert.ErrorIs(t, err, domain.ErrIngestionFailed)
	})

	t.Run("atoms with foreign schema fields are dropped", func(t *testing.T) {
		vision := &taggedVision{pages: map[int]*openai.PageExtraction{
			1: {Atoms: []openai.ExtractedAtom{
				{Type: "text", Content: "kept"},
				// latex_formula is not part of the language schema.
				{Type: "equation", Content: "dropped", MetaData: map[string]any{"latex_formula": "x"}},
			}},
		}}
		runner := failEverythingElse(vision, &fakePages{count: 1})

		result, err := runner.Run(ctx, "/books/a.pdf", bookID, domain.CategoryLanguage)
		require.NoError(t, err)
		require.Len(t, result.Atoms, 1)
		assert.Equal(t, "kept", result.Atoms[0].ContentText)
	})

	t.Run("model-claimed category cannot override the book's", func(t *testing.T) {
		vision := &taggedVision{pages: map[int]*openai.PageExtraction{
			1: {Atoms: []openai.ExtractedAtom{
				{Type: "text", Content: "plain", MetaData: map[string]any{"category": "stem"}},
				// Claims the stem schema and carries a stem field; once the
				// category is pinned back to language the field is foreign
				// and the atom is dropped.
				{Type: "equation", Content: "smuggled", MetaData: map[string]any{"category": "stem", "latex_formula": "E=mc^2"}},
				{Type: "text", Content: "typed", MetaData: map[string]any{"content_type": "exercise"}},
			}},
		}}
		runner := failEverythingElse(vision, &fakePages{count: 1})

		result, err := runner.Run(ctx, "/books/a.pdf", bookID, domain.CategoryLanguage)
		require.NoError(t, err)
		require.Len(t, result.Atoms, 2)

		for _, atom := range result.Atoms {
			assert.Equal(t, domain.CategoryLanguage, atom.MetaData.Category())
		}
		assert.Equal(t, "plain", result.Atoms[0].ContentText)
		assert.Equal(t, "typed", result.Atoms[1].ContentText)
		assert.Equal(t, string(domain.AtomTypeText), result.Atoms[1].MetaData.Base().ContentType)
	})

	t.Run("unit number and speaker flow into atom metadata", func(t *testing.T) {
		unit := 4
		vision := &taggedVision{pages: map[int]*openai.PageExtraction{
			1: {
				UnitNumber:  &unit,
				LessonTitle: "Dialogue",
				Atoms: []openai.ExtractedAtom{
					{Type: "text", Content: "Elementary!", MetaData: map[string]any{"speaker": "Sherlock"}},
				},
			},
		}}
		runner := failEverythingElse(vision, &fakePages{count: 1})

		result, err := runner.Run(ctx, "/books/a.pdf", bookID, domain.CategoryLanguage)
		require.NoError(t, err)
		require.Len(t, result.Atoms, 1)

		meta, ok := result.Atoms[0].MetaData.(*domain.LanguageMetadata)
		require.True(t, ok)
		assert.Equal(t, "Sherlock", meta.Speaker)
		assert.Equal(t, "Dialogue", meta.SectionTitle)
		require.NotNil(t, meta.UnitNumber)
		assert.Equal(t, 4, *meta.UnitNumber)
		require.NotNil(t, meta.PageNumber)
		assert.Equal(t, 1, *meta.PageNumber)
	})
}
