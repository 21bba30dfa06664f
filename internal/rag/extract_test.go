package rag

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRejectsUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	_, err := ExtractText(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractRejectsNoExtension(t *testing.T) {
	_, err := ExtractText("/tmp/file-without-extension")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractMissingPDF(t *testing.T) {
	_, err := ExtractText(filepath.Join(t.TempDir(), "nope.pdf"))
	assert.ErrorIs(t, err, ErrMissingDocument)
}

func TestExtractMissingDOCX(t *testing.T) {
	_, err := ExtractText(filepath.Join(t.TempDir(), "nope.docx"))
	assert.ErrorIs(t, err, ErrMissingDocument)
}
