package ingest

import (
	"github.com/praxis-ed/curio/internal/domain"
)

// Strategy tags one way of turning a document into structure and atoms.
type Strategy string

const (
	StrategyPrimary Strategy = "primary"
	StrategyCloud   Strategy = "cloud_fallback"
	StrategyVision  Strategy = "vision_fallback"
)

// Attempt is the outcome of running one strategy. Failed attempts carry the
// error that pushed the chain forward; the succeeding attempt carries the
// tree that gets persisted.
type Attempt struct {
	Strategy Strategy
	Nodes    []domain.StructureNode
	Atoms    []domain.ContentAtom
	Err      error
}

// Result is the outcome of a full chain run: the winning attempt plus the
// record of everything tried before it.
type Result struct {
	Strategy Strategy
	Nodes    []domain.StructureNode
	Atoms    []domain.ContentAtom
	Attempts []Attempt
}
