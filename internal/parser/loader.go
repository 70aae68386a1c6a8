package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/praxis-ed/curio/internal/domain"
)

// LayoutParser obtains a layout export for a source document. The default
// implementation reads pre-produced exports from disk; production deploys a
// layout engine next to the service that writes them.
type LayoutParser interface {
	Parse(path string) (*Export, error)
}

// FileLayoutParser resolves exports by convention: a .json path is loaded
// directly as an export, while any other document format expects a sidecar
// file at "<path>.layout.json". A missing sidecar is surfaced as
// ErrDocumentNotFound, which sends ingestion down the fallback chain.
type FileLayoutParser struct{}

func NewFileLayoutParser() *FileLayoutParser {
	return &FileLayoutParser{}
}

func (p *FileLayoutParser) Parse(path string) (*Export, error) {
	exportPath := path
	if strings.ToLower(filepath.Ext(path)) != ".json" {
		exportPath = path + ".layout.json"
	}

	if _, err := os.Stat(exportPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no layout export at %s: %w", exportPath, domain.ErrDocumentNotFound)
		}
		return nil, fmt.Errorf("failed to stat layout export %s: %w", exportPath, err)
	}

	return LoadExport(exportPath)
}
