package index

import "context"

// Unit is one index-ready record: the text to embed plus its flat metadata.
type Unit struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Hit is a ranked retrieval result. Metadata comes back exactly as stored;
// callers that want book-specific shapes derive them from metadata keys.
type Hit struct {
	ID       string
	Text     string
	Metadata map[string]any
	Score    float64
}

// Operator is a metadata comparison kind.
type Operator string

const (
	OpEQ      Operator = "eq"
	OpLTE     Operator = "lte"
	OpIn      Operator = "in"
	OpIsEmpty Operator = "is_empty"
)

// Condition joins the members of a filter set.
type Condition string

const (
	ConditionAnd Condition = "and"
	ConditionOr  Condition = "or"
)

// Filter is one metadata predicate.
type Filter struct {
	Key   string
	Op    Operator
	Value any
}

// FilterSet is a tree of predicates: leaf filters and nested groups joined
// by a single condition.
type FilterSet struct {
	Condition Condition
	Filters   []Filter
	Groups    []FilterSet
}

// Embedder turns texts into vectors. *openai.Client implements it; the
// deterministic mock stands in during tests and offline runs.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
