package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// AtomType discriminates the kinds of content atoms a book can carry.
type AtomType string

const (
	AtomTypeText        AtomType = "text"
	AtomTypeImageAsset  AtomType = "image_asset"
	AtomTypeImageDesc   AtomType = "image_desc"
	AtomTypeEquation    AtomType = "equation"
	AtomTypeVocab       AtomType = "vocab"
	AtomTypeTable       AtomType = "table"
	AtomTypeExercise    AtomType = "exercise"
	AtomTypeGrammar     AtomType = "grammar"
	AtomTypeComplexPage AtomType = "complex_page"
)

// ContentAtom is the smallest indexable unit of content: a paragraph, a
// table, an equation, an image and later its generated description. Atoms
// are immutable after insertion; the enrichment pass only ever adds new
// image_desc atoms, it never rewrites existing ones.
type ContentAtom struct {
	ID          uuid.UUID
	BookID      uuid.UUID
	NodeID      *uuid.UUID // owning structure node, nil if orphaned
	AtomType    AtomType
	ContentText string
	MetaData    AtomMetadata
	Embedding   []float32 // populated by the indexing step, never by a parser
}

// ValidateContentAtom checks per-atom invariants, including the image
// description back-reference required before an image_desc atom may be
// persisted.
func ValidateContentAtom(a *ContentAtom) error {
	if a == nil {
		return fmt.Errorf("content atom cannot be nil")
	}
	if a.ID == uuid.Nil {
		return fmt.Errorf("content atom has no id")
	}
	if a.BookID == uuid.Nil {
		return fmt.Errorf("content atom %s has no book_id", a.ID)
	}
	if !isValidAtomType(a.AtomType) {
		return fmt.Errorf("content atom %s has invalid atom_type %q", a.ID, a.AtomType)
	}
	if a.MetaData == nil {
		return fmt.Errorf("content atom %s has no metadata", a.ID)
	}
	if err := a.MetaData.Validate(); err != nil {
		return fmt.Errorf("content atom %s: %w", a.ID, err)
	}
	if a.AtomType == AtomTypeImageDesc && a.MetaData.Base().ReferencedImageAtomID == "" {
		return fmt.Errorf("content atom %s is image_desc but carries no referenced_image_atom_id", a.ID)
	}
	return nil
}

func isValidAtomType(t AtomType) bool {
	switch t {
	case AtomTypeText, AtomTypeImageAsset, AtomTypeImageDesc, AtomTypeEquation,
		AtomTypeVocab, AtomTypeTable, AtomTypeExercise, AtomTypeGrammar, AtomTypeComplexPage:
		return true
	}
	return false
}
