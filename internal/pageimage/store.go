package pageimage

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"github.com/praxis-ed/curio/internal/domain"
)

// Store locates page rasters for source documents. Rasters are produced by
// the rendering step that runs next to the layout engine and land in a
// sidecar directory: "<doc>.pages/page-0001.png". The store only reads.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// pageImageExtensions in lookup order.
var pageImageExtensions = []string{".png", ".jpg", ".jpeg"}

// PagePath returns the raster path for a 1-based page number, or
// ErrDocumentNotFound when no raster exists.
func (s *Store) PagePath(docPath string, page int) (string, error) {
	if page < 1 {
		return "", fmt.Errorf("page %d: %w", page, domain.ErrPageOutOfRange)
	}
	dir := docPath + ".pages"
	for _, ext := range pageImageExtensions {
		candidate := filepath.Join(dir, fmt.Sprintf("page-%04d%s", page, ext))
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no page raster for %s page %d: %w", filepath.Base(docPath), page, domain.ErrDocumentNotFound)
}

// PageImage loads and decodes the raster for a page.
func (s *Store) PageImage(docPath string, page int) (image.Image, error) {
	path, err := s.PagePath(docPath, page)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open page raster %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode page raster %s: %w", path, err)
	}
	return img, nil
}

// PageCount reads the page count from the source PDF.
func (s *Store) PageCount(docPath string) (int, error) {
	file, reader, err := pdf.Open(docPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open pdf %s: %w", docPath, err)
	}
	defer file.Close()
	return reader.NumPage(), nil
}

// PageHeight returns the page's media-box height in PDF points, used to
// normalize bottom-left bounding boxes before cropping.
func (s *Store) PageHeight(docPath string, page int) (float64, error) {
	file, reader, err := pdf.Open(docPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open pdf %s: %w", docPath, err)
	}
	defer file.Close()

	if page < 1 || page > reader.NumPage() {
		return 0, fmt.Errorf("page %d of %d: %w", page, reader.NumPage(), domain.ErrPageOutOfRange)
	}

	box := reader.Page(page).V.Key("MediaBox")
	if box.Len() != 4 {
		return 0, fmt.Errorf("pdf %s page %d has no media box", docPath, page)
	}
	height := box.Index(3).Float64() - box.Index(1).Float64()
	if height <= 0 {
		return 0, fmt.Errorf("pdf %s page %d has invalid media box height", docPath, page)
	}
	return height, nil
}

// SampleText extracts up to maxLen characters of plain text from the start
// of the PDF, used as the classification sample.
func (s *Store) SampleText(docPath string, maxLen int) (string, error) {
	file, reader, err := pdf.Open(docPath)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf %s: %w", docPath, err)
	}
	defer file.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to extract text from %s: %w", docPath, err)
	}
	raw, err := io.ReadAll(io.LimitReader(plain, int64(maxLen)*4))
	if err != nil {
		return "", fmt.Errorf("failed to read text from %s: %w", docPath, err)
	}

	text := strings.Join(strings.Fields(string(raw)), " ")
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return text, nil
}
