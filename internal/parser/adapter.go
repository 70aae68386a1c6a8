package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/praxis-ed/curio/internal/domain"
)

const (
	maxNodeTitleLen = 200

	// Quality thresholds. A table stream where more than a fifth of the
	// tables came back cellless, or a document with almost no readable
	// text, is a scanned or heavily stylized source the layout engine
	// cannot handle.
	emptyTableRatio   = 0.2
	minReadableBlocks = 5
)

var headingLabels = map[string]bool{
	"title":          true,
	"section_header": true,
	"header":         true,
}

var unitNumberRe = regexp.MustCompile(`(?i)\bunit\s+(\d+)\b`)

// Adapter transforms a flat layout export into a structure tree and its
// content atoms. It is a pure transform; all document I/O belongs to the
// caller.
type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

// NeedsFallback reports whether the export looks too degraded to trust,
// sending ingestion to the next strategy in the chain.
func (a *Adapter) NeedsFallback(export *Export) bool {
	if len(export.Tables) > 0 {
		empty := 0
		for i := range export.Tables {
			if export.Tables[i].IsEmpty() {
				empty++
			}
		}
		if float64(empty)/float64(len(export.Tables)) > emptyTableRatio {
			return true
		}
	}

	readable := 0
	for i := range export.Texts {
		if export.Texts[i].Content() != "" {
			readable++
		}
	}
	return readable < minReadableBlocks
}

// stream entry kinds, ordered the way the layout engine emits them within
// a page.
type blockKind int

const (
	kindText blockKind = iota
	kindTable
	kindPicture
)

type streamBlock struct {
	kind    blockKind
	page    int
	order   int
	text    *TextBlock
	table   *TableBlock
	picture *PictureBlock
}

// BuildStructure walks the export's flat block stream and emits the
// hierarchy. Heading blocks open nodes; each heading's parent is the most
// recently opened node at the nearest smaller level, or the root. Content
// blocks attach to the most recently opened node.
func (a *Adapter) BuildStructure(export *Export, bookID uuid.UUID, category domain.Category, sourcePath string) ([]domain.StructureNode, []domain.ContentAtom, error) {
	root := domain.NewRootNode(bookID, "Book Root", map[string]any{
		"parser_source": "layout",
		"file_path":     sourcePath,
	})

	nodes := []domain.StructureNode{root}
	var atoms []domain.ContentAtom

	currentParents := map[int]uuid.UUID{0: root.ID}
	lastNodeID := root.ID
	lastNodeTitle := ""
	sequence := 0
	var currentUnit *int

	for _, block := range a.mergeStream(export) {
		switch block.kind {
		case kindText:
			text := block.text.Content()
			if text == "" {
				continue
			}

			if headingLabels[block.text.Label] {
				nodeLevel := 1
				if block.text.Level != nil && *block.text.Level > 0 {
					nodeLevel = *block.text.Level
				}

				parentLevel := nodeLevel - 1
				for parentLevel > 0 {
					if _, ok := currentParents[parentLevel]; ok {
						break
					}
					parentLevel--
				}
				parentID := currentParents[parentLevel]

				sequence++
				node := domain.StructureNode{
					ID:            uuid.New(),
					BookID:        bookID,
					ParentID:      &parentID,
					NodeLevel:     nodeLevel,
					Title:         truncate(text, maxNodeTitleLen),
					SequenceIndex: sequence,
					MetaData:      provMeta(firstProv(block.text.Prov)),
				}
				nodes = append(nodes, node)
				currentParents[nodeLevel] = node.ID
				lastNodeID = node.ID
				lastNodeTitle = node.Title

				if nodeLevel == 1 {
					currentUnit = parseUnitNumber(text)
				}
				continue
			}

			atom, err := a.newAtom(bookID, lastNodeID, atomTypeForLabel(block.text.Label), text,
				category, lastNodeTitle, currentUnit, firstProv(block.text.Prov), "")
			if err != nil {
				return nil, nil, err
			}
			atoms = append(atoms, atom)

		case kindTable:
			text := block.table.Flatten()
			if text == "" {
				continue
			}
			atom, err := a.newAtom(bookID, lastNodeID, domain.AtomTypeTable, text,
				category, lastNodeTitle, currentUnit, firstProv(block.table.Prov), "")
			if err != nil {
				return nil, nil, err
			}
			atoms = append(atoms, atom)

		case kindPicture:
			prov := firstProv(block.picture.Prov)
			if prov == nil || prov.BBox == nil {
				// Nothing to crop later; skip regions with no provenance.
				continue
			}
			text := fmt.Sprintf("Image region on page %d", prov.PageNo)
			atom, err := a.newAtom(bookID, lastNodeID, domain.AtomTypeImageAsset, text,
				category, lastNodeTitle, currentUnit, prov, sourcePath)
			if err != nil {
				return nil, nil, err
			}
			atoms = append(atoms, atom)
		}
	}

	if err := domain.ValidateStructureNodes(nodes); err != nil {
		return nil, nil, fmt.Errorf("layout parse produced an invalid tree: %w", err)
	}
	return nodes, atoms, nil
}

// mergeStream interleaves texts, tables and pictures into page reading
// order. Within a page the engine's emission order is preserved, with
// tables and pictures trailing the text of their page.
func (a *Adapter) mergeStream(export *Export) []streamBlock {
	blocks := make([]streamBlock, 0, len(export.Texts)+len(export.Tables)+len(export.Pictures))

	for i := range export.Texts {
		blocks = append(blocks, streamBlock{
			kind:  kindText,
			page:  provPage(firstProv(export.Texts[i].Prov)),
			order: i,
			text:  &export.Texts[i],
		})
	}
	tableOffset := len(export.Texts) + 1000
	for i := range export.Tables {
		blocks = append(blocks, streamBlock{
			kind:  kindTable,
			page:  provPage(firstProv(export.Tables[i].Prov)),
			order: tableOffset + i,
			table: &export.Tables[i],
		})
	}
	pictureOffset := tableOffset + len(export.Tables) + 1000
	for i := range export.Pictures {
		blocks = append(blocks, streamBlock{
			kind:    kindPicture,
			page:    provPage(firstProv(export.Pictures[i].Prov)),
			order:   pictureOffset + i,
			picture: &export.Pictures[i],
		})
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].page != blocks[j].page {
			return blocks[i].page < blocks[j].page
		}
		return blocks[i].order < blocks[j].order
	})
	return blocks
}

func (a *Adapter) newAtom(bookID uuid.UUID, nodeID uuid.UUID, atomType domain.AtomType, text string,
	category domain.Category, sectionTitle string, unit *int, prov *Prov, sourcePath string) (domain.ContentAtom, error) {

	base := domain.BaseMetadata{
		BookID:       bookID.String(),
		ContentType:  string(atomType),
		SectionTitle: sectionTitle,
	}
	if unit != nil {
		u := *unit
		base.UnitNumber = &u
	}
	if prov != nil {
		page := prov.PageNo
		base.PageNumber = &page
		base.BBox = prov.BBox
	}
	if sourcePath != "" {
		base.FilePath = sourcePath
	}

	meta, err := domain.NewMetadata(category, base)
	if err != nil {
		return domain.ContentAtom{}, err
	}

	node := nodeID
	atom := domain.ContentAtom{
		ID:          uuid.New(),
		BookID:      bookID,
		NodeID:      &node,
		AtomType:    atomType,
		ContentText: text,
		MetaData:    meta,
	}
	if err := domain.ValidateContentAtom(&atom); err != nil {
		return domain.ContentAtom{}, err
	}
	return atom, nil
}

func atomTypeForLabel(label string) domain.AtomType {
	switch label {
	case "formula":
		return domain.AtomTypeEquation
	default:
		return domain.AtomTypeText
	}
}

func provMeta(prov *Prov) map[string]any {
	meta := map[string]any{}
	if prov == nil {
		return meta
	}
	meta["page_no"] = prov.PageNo
	if prov.BBox != nil {
		meta["bbox"] = map[string]any{
			"l": prov.BBox.L, "t": prov.BBox.T, "r": prov.BBox.R, "b": prov.BBox.B,
			"coord_origin": prov.BBox.CoordOrigin,
		}
	}
	return meta
}

func provPage(prov *Prov) int {
	if prov == nil {
		return 0
	}
	return prov.PageNo
}

func parseUnitNumber(title string) *int {
	m := unitNumberRe.FindStringSubmatch(title)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Back off to a rune boundary so the cut never leaves invalid UTF-8.
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
