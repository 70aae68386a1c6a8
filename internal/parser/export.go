package parser

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/praxis-ed/curio/internal/domain"
)

// Export is the layout parser's JSON document export: a flat stream of text
// blocks plus the tables and pictures detected on each page.
type Export struct {
	Texts    []TextBlock    `json:"texts"`
	Tables   []TableBlock   `json:"tables"`
	Pictures []PictureBlock `json:"pictures"`
}

// Prov carries the provenance of a block: which page it came from and
// where on the page it sits.
type Prov struct {
	PageNo int                 `json:"page_no"`
	BBox   *domain.BoundingBox `json:"bbox,omitempty"`
}

// TextBlock is one unit of the flat text stream. Heading-class labels
// (title, section_header, header) open structure nodes; everything else
// becomes a content atom.
type TextBlock struct {
	Text  string `json:"text"`
	Orig  string `json:"orig,omitempty"`
	Label string `json:"label"`
	Level *int   `json:"level,omitempty"`
	Prov  []Prov `json:"prov,omitempty"`
}

// Content returns the block text, falling back to the pre-normalization
// original when the cleaned text is empty.
func (b *TextBlock) Content() string {
	if s := strings.TrimSpace(b.Text); s != "" {
		return s
	}
	return strings.TrimSpace(b.Orig)
}

// TableBlock is a detected table with its extracted cell grid. Scanned or
// rasterized tables come back with no cells at all, which is the signal the
// quality heuristic keys on.
type TableBlock struct {
	Data TableData `json:"data"`
	Prov []Prov    `json:"prov,omitempty"`
}

type TableData struct {
	TableCells []TableCell `json:"table_cells"`
}

type TableCell struct {
	Text              string `json:"text"`
	StartRowOffsetIdx int    `json:"start_row_offset_idx"`
	StartColOffsetIdx int    `json:"start_col_offset_idx"`
}

// IsEmpty reports whether the table carries no extracted cell data.
func (t *TableBlock) IsEmpty() bool {
	return len(t.Data.TableCells) == 0
}

// Flatten renders the cell grid as tab-separated lines in row order.
// Returns "" for an empty table.
func (t *TableBlock) Flatten() string {
	if t.IsEmpty() {
		return ""
	}

	rows := map[int]map[int]string{}
	for _, cell := range t.Data.TableCells {
		if rows[cell.StartRowOffsetIdx] == nil {
			rows[cell.StartRowOffsetIdx] = map[int]string{}
		}
		rows[cell.StartRowOffsetIdx][cell.StartColOffsetIdx] = strings.TrimSpace(cell.Text)
	}

	rowIdxs := make([]int, 0, len(rows))
	for idx := range rows {
		rowIdxs = append(rowIdxs, idx)
	}
	sort.Ints(rowIdxs)

	var lines []string
	for _, rowIdx := range rowIdxs {
		row := rows[rowIdx]
		colIdxs := make([]int, 0, len(row))
		for idx := range row {
			colIdxs = append(colIdxs, idx)
		}
		sort.Ints(colIdxs)

		var cols []string
		for _, colIdx := range colIdxs {
			if row[colIdx] != "" {
				cols = append(cols, row[colIdx])
			}
		}
		line := strings.Join(cols, "\t")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// PictureBlock is a detected image region. It carries no pixel data, only
// provenance; the enrichment pass crops the region out of the source later.
type PictureBlock struct {
	Prov []Prov `json:"prov,omitempty"`
}

func firstProv(prov []Prov) *Prov {
	if len(prov) == 0 {
		return nil
	}
	return &prov[0]
}

// LoadExport reads a layout export JSON file from disk.
func LoadExport(path string) (*Export, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout export %s: %w", path, err)
	}
	var export Export
	if err := json.Unmarshal(raw, &export); err != nil {
		return nil, fmt.Errorf("failed to decode layout export %s: %w", path, err)
	}
	return &export, nil
}
