package cloudparse

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/praxis-ed/curio/internal/domain"
)

// BuildStructure maps the service's flat section list into a two-level
// tree: a root node plus one section node per returned unit, each carrying
// a single complex_page atom with the full section text. The deep hierarchy
// of the primary parser is not recoverable from this output.
func BuildStructure(sections []ParsedSection, bookID uuid.UUID, category domain.Category, sourcePath string) ([]domain.StructureNode, []domain.ContentAtom, error) {
	root := domain.NewRootNode(bookID, "Book Root", map[string]any{
		"parser_source": "cloud",
		"file_path":     sourcePath,
	})

	nodes := []domain.StructureNode{root}
	atoms := make([]domain.ContentAtom, 0, len(sections))

	for i, section := range sections {
		title := section.Title
		if title == "" {
			title = fmt.Sprintf("Section %d", i+1)
		}
		page := section.Page
		if page == 0 {
			page = i + 1
		}

		node := domain.StructureNode{
			ID:            uuid.New(),
			BookID:        bookID,
			ParentID:      &root.ID,
			NodeLevel:     1,
			Title:         title,
			SequenceIndex: i + 1,
			MetaData:      map[string]any{"page": page},
		}
		nodes = append(nodes, node)

		meta, err := domain.NewMetadata(category, domain.BaseMetadata{
			BookID:       bookID.String(),
			ContentType:  string(domain.AtomTypeComplexPage),
			PageNumber:   &page,
			SectionTitle: title,
		})
		if err != nil {
			return nil, nil, err
		}

		nodeID := node.ID
		atoms = append(atoms, domain.ContentAtom{
			ID:          uuid.New(),
			BookID:      bookID,
			NodeID:      &nodeID,
			AtomType:    domain.AtomTypeComplexPage,
			ContentText: section.Text,
			MetaData:    meta,
		})
	}

	if err := domain.ValidateStructureNodes(nodes); err != nil {
		return nil, nil, fmt.Errorf("cloud parse produced an invalid tree: %w", err)
	}
	return nodes, atoms, nil
}
