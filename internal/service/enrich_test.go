package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-ed/curio/internal/index"
)

type fakePendingIndex struct {
	mu      sync.Mutex
	pending []index.Unit
	findErr error
	added   [][]index.Unit
	addErr  error
}

func (f *fakePendingIndex) FindUnreferencedImages(_ context.Context, limit int) ([]index.Unit, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakePendingIndex) Add(_ context.Context, units []index.Unit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, units)
	return nil
}

type fakePageSource struct {
	imgErr error
}

func (f *fakePageSource) PageImage(_ string, _ int) (image.Image, error) {
	if f.imgErr != nil {
		return nil, f.imgErr
	}
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img, nil
}

func (f *fakePageSource) PageHeight(_ string, _ int) (float64, error) {
	return 0, errors.New("no geometry")
}

type fakeDescriber struct {
	mu    sync.Mutex
	calls int
	desc  string
	err   error
}

func (f *fakeDescriber) DescribeImage(_ context.Context, _ []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.desc, nil
}

func pendingImageUnit(id string) index.Unit {
	return index.Unit{
		ID:   id,
		Text: "Image region on page 3",
		Metadata: map[string]any{
			"category":    "language",
			"atom_type":   "image_asset",
			"book_id":     "b1",
			"file_path":   "/books/english.pdf",
			"page_number": float64(3),
			"bbox":        map[string]any{"l": 10.0, "t": 20.0, "r": 60.0, "b": 80.0, "coord_origin": "TOPLEFT"},
		},
	}
}

func TestProcessBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("describes pending images and persists one batch", func(t *testing.T) {
		idx := &fakePendingIndex{pending: []index.Unit{pendingImageUnit("img-1"), pendingImageUnit("img-2")}}
		describer := &fakeDescriber{desc: "A dialogue between two students"}
		svc := NewEnrichmentService(idx, &fakePageSource{}, describer, 10, 2)

		n, err := svc.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 2, describer.calls)

		// All staged descriptions land in a single index write.
		require.Len(t, idx.added, 1)
		batch := idx.added[0]
		require.Len(t, batch, 2)

		refs := map[string]bool{}
		for _, unit := range batch {
			assert.Equal(t, "A dialogue between two students", unit.Text)
			assert.Equal(t, "image_desc", unit.Metadata["atom_type"])
			assert.Equal(t, "image_desc", unit.Metadata["content_type"])
			assert.Equal(t, "language", unit.Metadata["category"])
			ref, _ := unit.Metadata["referenced_image_atom_id"].(string)
			refs[ref] = true
		}
		assert.True(t, refs["img-1"])
		assert.True(t, refs["img-2"])
	})

	t.Run("no pending images is a quiet no-op", func(t *testing.T) {
		idx := &fakePendingIndex{}
		describer := &fakeDescriber{desc: "unused"}
		svc := NewEnrichmentService(idx, &fakePageSource{}, describer, 10, 2)

		n, err := svc.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Zero(t, describer.calls)
		assert.Empty(t, idx.added)
	})

	t.Run("units without provenance are skipped", func(t *testing.T) {
		broken := index.Unit{ID: "img-x", Metadata: map[string]any{"atom_type": "image_asset"}}
		idx := &fakePendingIndex{pending: []index.Unit{broken, pendingImageUnit("img-ok")}}
		describer := &fakeDescriber{desc: "ok"}
		svc := NewEnrichmentService(idx, &fakePageSource{}, describer, 10, 2)

		n, err := svc.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Len(t, idx.added, 1)
		require.Len(t, idx.added[0], 1)
		assert.Equal(t, "img-ok", idx.added[0][0].Metadata["referenced_image_atom_id"])
	})

	t.Run("description failures leave the image pending", func(t *testing.T) {
		idx := &fakePendingIndex{pending: []index.Unit{pendingImageUnit("img-1")}}
		svc := NewEnrichmentService(idx, &fakePageSource{}, &fakeDescriber{err: errors.New("model timeout")}, 10, 2)

		n, err := svc.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Empty(t, idx.added)
	})

	t.Run("unreadable page rasters are skipped", func(t *testing.T) {
		idx := &fakePendingIndex{pending: []index.Unit{pendingImageUnit("img-1")}}
		describer := &fakeDescriber{desc: "never"}
		svc := NewEnrichmentService(idx, &fakePageSource{imgErr: errors.New("no raster")}, describer, 10, 2)

		n, err := svc.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Zero(t, describer.calls)
	})

	t.Run("pending query failure is an error", func(t *testing.T) {
		idx := &fakePendingIndex{findErr: errors.New("index down")}
		svc := NewEnrichmentService(idx, &fakePageSource{}, &fakeDescriber{}, 10, 2)

		_, err := svc.ProcessBatch(ctx)
		assert.Error(t, err)
	})

	t.Run("batch size caps one run", func(t *testing.T) {
		idx := &fakePendingIndex{pending: []index.Unit{
			pendingImageUnit("img-1"), pendingImageUnit("img-2"), pendingImageUnit("img-3"),
		}}
		describer := &fakeDescriber{desc: "d"}
		svc := NewEnrichmentService(idx, &fakePageSource{}, describer, 2, 2)

		n, err := svc.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}
