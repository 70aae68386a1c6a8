package index

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const defaultRetrieveLimit = 10

// PGIndex is the pgvector-backed vector index. It owns the content_atoms
// table: embedding happens on the way in, cosine ranking on the way out.
// One handle is constructed at startup and shared.
type PGIndex struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

func NewPGIndex(pool *pgxpool.Pool, embedder Embedder) *PGIndex {
	return &PGIndex{pool: pool, embedder: embedder}
}

// EnsureSchema creates the index table and its access paths if absent.
// Safe to call repeatedly.
func (idx *PGIndex) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS content_atoms (
			id UUID PRIMARY KEY,
			text TEXT NOT NULL,
			meta_data JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding VECTOR(1536),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS content_atoms_embedding_idx
			ON content_atoms USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS content_atoms_meta_data_idx
			ON content_atoms USING gin (meta_data)`,
	}
	for _, stmt := range statements {
		if _, err := idx.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure index schema: %w", err)
		}
	}
	return nil
}

// Add embeds and stores units. Re-inserting an existing ID is a no-op, so
// an interrupted ingestion can simply run again.
func (idx *PGIndex) Add(ctx context.Context, units []Unit) error {
	if len(units) == 0 {
		return nil
	}

	texts := make([]string, len(units))
	for i, unit := range units {
		texts[i] = unit.Text
	}
	vectors, err := idx.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed units: %w", err)
	}
	if len(vectors) != len(units) {
		return fmt.Errorf("embedder returned %d vectors for %d units", len(vectors), len(units))
	}

	for i, unit := range units {
		_, err := idx.pool.Exec(ctx,
			`INSERT INTO content_atoms (id, text, meta_data, embedding)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO NOTHING`,
			unit.ID, unit.Text, unit.Metadata, pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to index unit %s: %w", unit.ID, err)
		}
	}
	return nil
}

// Retrieve embeds the query and returns the closest units passing the
// filter tree, ranked by cosine similarity.
func (idx *PGIndex) Retrieve(ctx context.Context, query string, limit int, filters *FilterSet) ([]Hit, error) {
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}

	vectors, err := idx.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	vec := pgvector.NewVector(vectors[0])

	args := []any{vec}
	where, err := CompileFilters(filters, &args)
	if err != nil {
		return nil, err
	}
	args = append(args, limit)

	sql := fmt.Sprintf(`
		SELECT id, text, meta_data, 1.0 / (1.0 + (embedding <=> $1)) AS score
		FROM content_atoms
		WHERE embedding IS NOT NULL AND (%s)
		ORDER BY embedding <=> $1
		LIMIT $%d`, where, len(args))

	rows, err := idx.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("retrieval query failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var hit Hit
		if err := rows.Scan(&hit.ID, &hit.Text, &hit.Metadata, &hit.Score); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// FindUnreferencedImages returns image_asset units that no image_desc unit
// points back at. This existence check is what keeps the enrichment pass
// idempotent.
func (idx *PGIndex) FindUnreferencedImages(ctx context.Context, limit int) ([]Unit, error) {
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}

	rows, err := idx.pool.Query(ctx, `
		SELECT id, text, meta_data
		FROM content_atoms
		WHERE meta_data->>'atom_type' = 'image_asset'
		  AND NOT EXISTS (
			SELECT 1
			FROM content_atoms AS descs
			WHERE descs.meta_data->>'atom_type' = 'image_desc'
			  AND descs.meta_data->>'referenced_image_atom_id' = content_atoms.id::text
		  )
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("pending image query failed: %w", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var unit Unit
		if err := rows.Scan(&unit.ID, &unit.Text, &unit.Metadata); err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}
