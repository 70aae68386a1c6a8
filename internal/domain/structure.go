package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// StructureNode is one entry in a book's hierarchy: the root document node,
// a unit, or a section. Nodes are created in a single batch at ingestion
// time and never mutated afterwards.
type StructureNode struct {
	ID            uuid.UUID
	BookID        uuid.UUID
	ParentID      *uuid.UUID // nil for the root node
	NodeLevel     int        // 0 = document root, increasing with depth
	Title         string
	SequenceIndex int // monotonic position within the book, curriculum ordering key
	MetaData      map[string]any
	OwnerID       string // empty = globally visible, non-empty = private to that owner
}

// NewRootNode creates the level-0 node for a book.
func NewRootNode(bookID uuid.UUID, title string, meta map[string]any) StructureNode {
	if meta == nil {
		meta = map[string]any{}
	}
	return StructureNode{
		ID:            uuid.New(),
		BookID:        bookID,
		ParentID:      nil,
		NodeLevel:     0,
		Title:         title,
		SequenceIndex: 0,
		MetaData:      meta,
	}
}

// ValidateStructureNodes checks the hierarchy invariants over a full batch:
// exactly one root per batch, every non-root parent resolves to a node with
// a strictly smaller level, and sequence indexes are unique.
func ValidateStructureNodes(nodes []StructureNode) error {
	if len(nodes) == 0 {
		return fmt.Errorf("structure node batch is empty")
	}

	byID := make(map[uuid.UUID]*StructureNode, len(nodes))
	seqs := make(map[int]uuid.UUID, len(nodes))
	roots := 0

	for i := range nodes {
		n := &nodes[i]
		if n.ID == uuid.Nil {
			return fmt.Errorf("structure node %q has no id", n.Title)
		}
		if prev, ok := seqs[n.SequenceIndex]; ok {
			return fmt.Errorf("duplicate sequence_index %d (nodes %s and %s)", n.SequenceIndex, prev, n.ID)
		}
		seqs[n.SequenceIndex] = n.ID
		byID[n.ID] = n
		if n.ParentID == nil {
			roots++
			if n.NodeLevel != 0 {
				return fmt.Errorf("root node %s has node_level %d, want 0", n.ID, n.NodeLevel)
			}
		}
	}

	if roots != 1 {
		return fmt.Errorf("structure node batch has %d root nodes, want 1", roots)
	}

	for i := range nodes {
		n := &nodes[i]
		if n.ParentID == nil {
			continue
		}
		parent, ok := byID[*n.ParentID]
		if !ok {
			return fmt.Errorf("node %s references missing parent %s", n.ID, *n.ParentID)
		}
		if parent.NodeLevel >= n.NodeLevel {
			return fmt.Errorf("node %s (level %d) has parent %s at level %d", n.ID, n.NodeLevel, parent.ID, parent.NodeLevel)
		}
	}

	return nil
}
