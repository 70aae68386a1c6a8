package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/index"
)

// VectorIndex is the storage surface the indexing service writes to.
type VectorIndex interface {
	Add(ctx context.Context, units []index.Unit) error
}

// IndexingService converts content atoms to index-ready units: flat
// metadata plus the sequence and ownership keys retrieval filters on.
type IndexingService struct {
	index VectorIndex
}

func NewIndexingService(idx VectorIndex) *IndexingService {
	return &IndexingService{index: idx}
}

// IndexAtoms embeds and stores a book's atoms. The node sequence map is
// built once per call, not per atom.
func (s *IndexingService) IndexAtoms(ctx context.Context, nodes []domain.StructureNode, atoms []domain.ContentAtom, ownerID string) error {
	if len(atoms) == 0 {
		return nil
	}

	seqByNode := make(map[uuid.UUID]int, len(nodes))
	for _, n := range nodes {
		seqByNode[n.ID] = n.SequenceIndex
	}

	units := make([]index.Unit, 0, len(atoms))
	for i := range atoms {
		atom := &atoms[i]
		if err := domain.ValidateContentAtom(atom); err != nil {
			return fmt.Errorf("refusing to index: %w", err)
		}

		flat := atom.MetaData.Flatten()
		flat["book_id"] = atom.BookID.String()
		flat["atom_type"] = string(atom.AtomType)
		if atom.NodeID != nil {
			flat["node_id"] = atom.NodeID.String()
			if seq, ok := seqByNode[*atom.NodeID]; ok {
				flat["sequence_index"] = seq
			}
		}
		if ownerID != "" {
			flat["owner_id"] = ownerID
		}

		units = append(units, index.Unit{
			ID:       atom.ID.String(),
			Text:     atom.ContentText,
			Metadata: flat,
		})
	}

	if err := s.index.Add(ctx, units); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	return nil
}
