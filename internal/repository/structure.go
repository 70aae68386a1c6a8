package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/pagination"
)

// maxBookPageSize caps listBooks result pages regardless of what the
// caller asks for.
const maxBookPageSize = 20

// titleSimilarityFloor is the trigram similarity below which a fuzzy title
// match is considered noise.
const titleSimilarityFloor = 0.3

// StructureRepository persists the book hierarchy.
type StructureRepository struct {
	db dbtx
}

func NewStructureRepository(pool *pgxpool.Pool) *StructureRepository {
	return &StructureRepository{db: pool}
}

func NewStructureRepositoryWithTx(tx pgx.Tx) *StructureRepository {
	return &StructureRepository{db: tx}
}

// EnsureSchema creates the structure table, its extensions and indexes if
// absent. Safe to call on every ingestion run.
func (r *StructureRepository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE EXTENSION IF NOT EXISTS pg_trgm`,
		`CREATE TABLE IF NOT EXISTS structure_nodes (
			id UUID PRIMARY KEY,
			book_id UUID NOT NULL,
			parent_id UUID REFERENCES structure_nodes(id),
			node_level INT NOT NULL,
			title TEXT NOT NULL,
			sequence_index INT NOT NULL,
			meta_data JSONB NOT NULL DEFAULT '{}'::jsonb,
			owner_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS structure_nodes_book_idx
			ON structure_nodes (book_id, sequence_index)`,
		`CREATE INDEX IF NOT EXISTS structure_nodes_title_trgm_idx
			ON structure_nodes USING gin (title gin_trgm_ops)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure structure schema: %w", err)
		}
	}
	return nil
}

// InsertStructureNodes writes a batch of nodes. Existing IDs are left
// untouched, so replaying an ingestion with overlapping IDs is harmless.
// Parents are inserted before children within the batch.
func (r *StructureRepository) InsertStructureNodes(ctx context.Context, nodes []domain.StructureNode) error {
	if err := domain.ValidateStructureNodes(nodes); err != nil {
		return err
	}

	for _, n := range nodes {
		_, err := r.db.Exec(ctx,
			`INSERT INTO structure_nodes (id, book_id, parent_id, node_level, title, sequence_index, meta_data, owner_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO NOTHING`,
			n.ID, n.BookID, n.ParentID, n.NodeLevel, n.Title, n.SequenceIndex, n.MetaData, nullableString(n.OwnerID),
		)
		if err != nil {
			return fmt.Errorf("failed to insert structure node %s: %w", n.ID, err)
		}
	}
	return nil
}

// GetRootNode returns the book's level-0 node.
func (r *StructureRepository) GetRootNode(ctx context.Context, bookID uuid.UUID) (*domain.StructureNode, error) {
	var n domain.StructureNode
	var ownerID *string
	err := r.db.QueryRow(ctx,
		`SELECT id, book_id, parent_id, node_level, title, sequence_index, meta_data, owner_id
		 FROM structure_nodes
		 WHERE book_id = $1 AND node_level = 0`,
		bookID,
	).Scan(&n.ID, &n.BookID, &n.ParentID, &n.NodeLevel, &n.Title, &n.SequenceIndex, &n.MetaData, &ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookNotFound
		}
		return nil, err
	}
	if ownerID != nil {
		n.OwnerID = *ownerID
	}
	return &n, nil
}

// ListNodes returns a book's full tree ordered by sequence.
func (r *StructureRepository) ListNodes(ctx context.Context, bookID uuid.UUID) ([]domain.StructureNode, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, book_id, parent_id, node_level, title, sequence_index, meta_data, owner_id
		 FROM structure_nodes
		 WHERE book_id = $1
		 ORDER BY sequence_index`,
		bookID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStructureNodes(rows)
}

// BookFilter narrows listBooks results. Title matches either by substring
// or by trigram similarity, so typos still find the book.
type BookFilter struct {
	Title      string
	Subject    string
	GradeLevel int
}

// BookSummary is the root-node view returned by listBooks.
type BookSummary struct {
	BookID     uuid.UUID `json:"book_id"`
	NodeID     uuid.UUID `json:"node_id"`
	Title      string    `json:"title"`
	Category   string    `json:"category,omitempty"`
	GradeLevel int       `json:"grade_level,omitempty"`
	OwnerID    string    `json:"owner_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListBooks returns root-level nodes matching the filter, newest first,
// capped at maxBookPageSize per page.
func (r *StructureRepository) ListBooks(ctx context.Context, filter BookFilter, cursor *pagination.Cursor, limit int) (*pagination.PageResult[BookSummary], error) {
	if limit <= 0 || limit > maxBookPageSize {
		limit = maxBookPageSize
	}

	query := `SELECT id, book_id, title, meta_data->>'category', meta_data->>'grade_level', owner_id, created_at
		FROM structure_nodes
		WHERE node_level = 0`
	var args []any

	if filter.Title != "" {
		args = append(args, filter.Title)
		query += fmt.Sprintf(" AND (title ILIKE '%%' || $%d || '%%' OR similarity(title, $%d) >= %g)",
			len(args), len(args), titleSimilarityFloor)
	}
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		query += fmt.Sprintf(" AND meta_data->>'category' = $%d", len(args))
	}
	if filter.GradeLevel > 0 {
		args = append(args, filter.GradeLevel)
		query += fmt.Sprintf(" AND (meta_data->>'grade_level')::int = $%d", len(args))
	}
	if cursor != nil {
		lastID, err := uuid.Parse(cursor.LastID)
		if err != nil {
			return nil, pagination.ErrInvalidCursor
		}
		args = append(args, cursor.Timestamp, lastID)
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []BookSummary
	for rows.Next() {
		var b BookSummary
		var category, grade, ownerID *string
		if err := rows.Scan(&b.NodeID, &b.BookID, &b.Title, &category, &grade, &ownerID, &b.CreatedAt); err != nil {
			return nil, err
		}
		if category != nil {
			b.Category = *category
		}
		if grade != nil {
			fmt.Sscanf(*grade, "%d", &b.GradeLevel)
		}
		if ownerID != nil {
			b.OwnerID = *ownerID
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.NodeID.String(), last.CreatedAt)
	}

	return &pagination.PageResult[BookSummary]{
		Items:   items,
		Cursor:  nextCursor,
		HasMore: hasMore,
	}, nil
}

func scanStructureNodes(rows pgx.Rows) ([]domain.StructureNode, error) {
	var nodes []domain.StructureNode
	for rows.Next() {
		var n domain.StructureNode
		var ownerID *string
		if err := rows.Scan(&n.ID, &n.BookID, &n.ParentID, &n.NodeLevel, &n.Title, &n.SequenceIndex, &n.MetaData, &ownerID); err != nil {
			return nil, err
		}
		if ownerID != nil {
			n.OwnerID = *ownerID
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
