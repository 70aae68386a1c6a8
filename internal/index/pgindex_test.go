//go:build integration

package index

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-ed/curio/internal/testutil"
)

func TestPGIndex(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	idx := NewPGIndex(pool, NewMockEmbedder(1536))
	require.NoError(t, idx.EnsureSchema(ctx))

	newUnit := func(text string, meta map[string]any) Unit {
		return Unit{ID: uuid.NewString(), Text: text, Metadata: meta}
	}

	t.Run("add and retrieve by similarity", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		target := newUnit("the quick brown fox", map[string]any{"book_id": "b1"})
		other := newUnit("an entirely different sentence", map[string]any{"book_id": "b1"})
		require.NoError(t, idx.Add(ctx, []Unit{target, other}))

		// The mock embedder is deterministic, so the identical text is
		// the nearest neighbor of itself.
		hits, err := idx.Retrieve(ctx, "the quick brown fox", 2, nil)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, target.ID, hits[0].ID)
		assert.Greater(t, hits[0].Score, hits[1].Score)
	})

	t.Run("re-adding an id is a no-op", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		unit := newUnit("once only", nil)
		require.NoError(t, idx.Add(ctx, []Unit{unit}))
		require.NoError(t, idx.Add(ctx, []Unit{unit}))

		hits, err := idx.Retrieve(ctx, "once only", 10, nil)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})

	t.Run("filters narrow retrieval", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		mine := newUnit("shared text", map[string]any{"owner_id": "user-1"})
		global := newUnit("shared text too", map[string]any{})
		foreign := newUnit("shared text three", map[string]any{"owner_id": "user-2"})
		require.NoError(t, idx.Add(ctx, []Unit{mine, global, foreign}))

		filters := &FilterSet{
			Condition: ConditionOr,
			Filters: []Filter{
				{Key: "owner_id", Op: OpEQ, Value: "user-1"},
				{Key: "owner_id", Op: OpIsEmpty},
			},
		}
		hits, err := idx.Retrieve(ctx, "shared text", 10, filters)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		for _, hit := range hits {
			assert.NotEqual(t, foreign.ID, hit.ID)
		}
	})

	t.Run("pending images honor the back-reference check", func(t *testing.T) {
		require.NoError(t, testutil.TruncateAll(ctx, pool))
		described := newUnit("Image region on page 1", map[string]any{"atom_type": "image_asset"})
		pending := newUnit("Image region on page 2", map[string]any{"atom_type": "image_asset"})
		desc := newUnit("A chart of verb tenses", map[string]any{
			"atom_type":                "image_desc",
			"referenced_image_atom_id": described.ID,
		})
		require.NoError(t, idx.Add(ctx, []Unit{described, pending, desc}))

		units, err := idx.FindUnreferencedImages(ctx, 10)
		require.NoError(t, err)
		require.Len(t, units, 1)
		assert.Equal(t, pending.ID, units[0].ID)
	})
}
