package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Category is the book's detected subject domain. It selects which closed
// metadata variant every atom in the book must carry.
type Category string

const (
	CategoryLanguage Category = "language"
	CategoryStem     Category = "stem"
	CategoryHistory  Category = "history"
)

// ParseCategory validates a category string.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryLanguage, CategoryStem, CategoryHistory:
		return Category(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// AtomMetadata is the closed sum of the three domain metadata variants.
// The only implementations are LanguageMetadata, StemMetadata and
// HistoryMetadata; dispatch is on Category.
type AtomMetadata interface {
	Category() Category
	Base() *BaseMetadata
	// Flatten serializes the metadata to the flat key/value map stored
	// alongside the atom in the vector index. Zero values are omitted.
	Flatten() map[string]any
	Validate() error
}

// BaseMetadata is the field contract shared by every variant.
type BaseMetadata struct {
	BookID       string `json:"book_id,omitempty"`
	ContentType  string `json:"content_type"`
	UnitNumber   *int   `json:"unit_number,omitempty"`
	PageNumber   *int   `json:"page_number,omitempty"`
	SectionTitle string `json:"section_title,omitempty"`

	// Provenance for image atoms: where in the source document the
	// region lives, so the enrichment pass can crop it later.
	FilePath string       `json:"file_path,omitempty"`
	BBox     *BoundingBox `json:"bbox,omitempty"`

	// Set only on image_desc atoms; points at the image_asset atom the
	// description was generated for. Its presence is what makes the
	// enrichment pass idempotent.
	ReferencedImageAtomID string `json:"referenced_image_atom_id,omitempty"`
}

func (b *BaseMetadata) flattenInto(m map[string]any) {
	if b.BookID != "" {
		m["book_id"] = b.BookID
	}
	if b.ContentType != "" {
		m["content_type"] = b.ContentType
	}
	if b.UnitNumber != nil {
		m["unit_number"] = *b.UnitNumber
	}
	if b.PageNumber != nil {
		m["page_number"] = *b.PageNumber
	}
	if b.SectionTitle != "" {
		m["section_title"] = b.SectionTitle
	}
	if b.FilePath != "" {
		m["file_path"] = b.FilePath
	}
	if b.BBox != nil {
		m["bbox"] = b.BBox.asMap()
	}
	if b.ReferencedImageAtomID != "" {
		m["referenced_image_atom_id"] = b.ReferencedImageAtomID
	}
}

func (b *BaseMetadata) validate() error {
	if b.ContentType == "" {
		return fmt.Errorf("metadata missing content_type")
	}
	return nil
}

// LanguageMetadata covers ESL / language textbooks.
type LanguageMetadata struct {
	BaseMetadata
	CEFRLevel    string `json:"cefr_level,omitempty"`    // e.g. A1, B2
	VocabWord    string `json:"vocab_word,omitempty"`    // target word when content_type=vocab
	WordClass    string `json:"word_class,omitempty"`    // noun, verb, adjective
	GrammarTopic string `json:"grammar_topic,omitempty"` // e.g. past_tense
	Speaker      string `json:"speaker,omitempty"`       // for dialogues
}

func (m *LanguageMetadata) Category() Category  { return CategoryLanguage }
func (m *LanguageMetadata) Base() *BaseMetadata { return &m.BaseMetadata }
func (m *LanguageMetadata) Validate() error     { return m.validate() }

func (m *LanguageMetadata) Flatten() map[string]any {
	out := map[string]any{"category": string(CategoryLanguage)}
	m.flattenInto(out)
	if m.CEFRLevel != "" {
		out["cefr_level"] = m.CEFRLevel
	}
	if m.VocabWord != "" {
		out["vocab_word"] = m.VocabWord
	}
	if m.WordClass != "" {
		out["word_class"] = m.WordClass
	}
	if m.GrammarTopic != "" {
		out["grammar_topic"] = m.GrammarTopic
	}
	if m.Speaker != "" {
		out["speaker"] = m.Speaker
	}
	return out
}

// StemMetadata covers math, physics, chemistry and similar books.
type StemMetadata struct {
	BaseMetadata
	LatexFormula string   `json:"latex_formula,omitempty"`
	ConceptTags  []string `json:"concept_tags,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"` // easy, medium, hard
	IsSolution   bool     `json:"is_solution,omitempty"`
}

func (m *StemMetadata) Category() Category  { return CategoryStem }
func (m *StemMetadata) Base() *BaseMetadata { return &m.BaseMetadata }
func (m *StemMetadata) Validate() error     { return m.validate() }

func (m *StemMetadata) Flatten() map[string]any {
	out := map[string]any{"category": string(CategoryStem)}
	m.flattenInto(out)
	if m.LatexFormula != "" {
		out["latex_formula"] = m.LatexFormula
	}
	if len(m.ConceptTags) > 0 {
		out["concept_tags"] = m.ConceptTags
	}
	if m.Difficulty != "" {
		out["difficulty"] = m.Difficulty
	}
	if m.IsSolution {
		out["is_solution"] = true
	}
	return out
}

// HistoryMetadata covers history and social science books.
type HistoryMetadata struct {
	BaseMetadata
	Era        string   `json:"era,omitempty"`        // e.g. Bronze Age, Cold War
	DateRange  string   `json:"date_range,omitempty"` // e.g. 1939-1945
	KeyFigures []string `json:"key_figures,omitempty"`
	Location   string   `json:"location,omitempty"`
	SourceType string   `json:"source_type,omitempty"` // primary_source, secondary_source
}

func (m *HistoryMetadata) Category() Category  { return CategoryHistory }
func (m *HistoryMetadata) Base() *BaseMetadata { return &m.BaseMetadata }
func (m *HistoryMetadata) Validate() error     { return m.validate() }

func (m *HistoryMetadata) Flatten() map[string]any {
	out := map[string]any{"category": string(CategoryHistory)}
	m.flattenInto(out)
	if m.Era != "" {
		out["era"] = m.Era
	}
	if m.DateRange != "" {
		out["date_range"] = m.DateRange
	}
	if len(m.KeyFigures) > 0 {
		out["key_figures"] = m.KeyFigures
	}
	if m.Location != "" {
		out["location"] = m.Location
	}
	if m.SourceType != "" {
		out["source_type"] = m.SourceType
	}
	return out
}

// NewMetadata returns the empty variant for a category with base fields set.
func NewMetadata(category Category, base BaseMetadata) (AtomMetadata, error) {
	switch category {
	case CategoryLanguage:
		return &LanguageMetadata{BaseMetadata: base}, nil
	case CategoryStem:
		return &StemMetadata{BaseMetadata: base}, nil
	case CategoryHistory:
		return &HistoryMetadata{BaseMetadata: base}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
}

type metadataEnvelope struct {
	Category Category `json:"category"`
}

// EncodeMetadata serializes a variant with its category tag spliced in.
func EncodeMetadata(m AtomMetadata) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	obj["category"] = json.RawMessage(`"` + string(m.Category()) + `"`)
	return json.Marshal(obj)
}

// DecodeMetadata deserializes metadata by its category tag. Unknown
// categories, unknown fields and malformed variant payloads are rejected;
// this is the boundary validation the vision fallback relies on.
func DecodeMetadata(raw []byte) (AtomMetadata, error) {
	var env metadataEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid metadata payload: %w", err)
	}

	var m AtomMetadata
	switch env.Category {
	case CategoryLanguage:
		m = &LanguageMetadata{}
	case CategoryStem:
		m = &StemMetadata{}
	case CategoryHistory:
		m = &HistoryMetadata{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, env.Category)
	}

	// The discriminator is not a field on the variants; strip it before
	// decoding strictly.
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("invalid metadata payload: %w", err)
	}
	delete(obj, "category")
	body, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("invalid %s metadata: %w", env.Category, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
