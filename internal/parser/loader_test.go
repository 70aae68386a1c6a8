package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-ed/curio/internal/domain"
)

func TestFileLayoutParser(t *testing.T) {
	loader := NewFileLayoutParser()

	t.Run("loads json exports directly", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "book.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"texts":[{"text":"hi","label":"text"}]}`), 0o644))

		export, err := loader.Parse(path)
		require.NoError(t, err)
		require.Len(t, export.Texts, 1)
		assert.Equal(t, "hi", export.Texts[0].Text)
	})

	t.Run("resolves sidecar for pdf documents", func(t *testing.T) {
		dir := t.TempDir()
		pdfPath := filepath.Join(dir, "book.pdf")
		require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644))
		require.NoError(t, os.WriteFile(pdfPath+".layout.json", []byte(`{"texts":[]}`), 0o644))

		export, err := loader.Parse(pdfPath)
		require.NoError(t, err)
		assert.Empty(t, export.Texts)
	})

	t.Run("missing sidecar surfaces document-not-found", func(t *testing.T) {
		dir := t.TempDir()
		pdfPath := filepath.Join(dir, "scanned.pdf")
		require.NoError(t, os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644))

		_, err := loader.Parse(pdfPath)
		assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	})

	t.Run("malformed export is an error", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))

		_, err := loader.Parse(path)
		assert.ErrorContains(t, err, "failed to decode")
	})
}
