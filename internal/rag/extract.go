// Package rag implements content-addressed document indexing and
// query-adaptive passage retrieval.
package rag

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	docx "github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
)

var (
	// ErrUnsupportedFormat is returned for file extensions other than
	// .pdf and .docx, before any indexing work is attempted.
	ErrUnsupportedFormat = errors.New("unsupported document format (only .pdf and .docx are supported)")

	// ErrNoText is returned when a supported document yields no
	// extractable text. This is a distinct failure, never an empty index.
	ErrNoText = errors.New("document contains no extractable text")

	// ErrMissingDocument is returned when the document path does not exist.
	ErrMissingDocument = errors.New("document not found")
)

// ExtractText reads the document at path and returns its plain text. The
// file extension selects the extractor; unsupported extensions are rejected
// before the file is touched.
func ExtractText(path string) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = extractPDF(path)
	case ".docx":
		text, err = extractDOCX(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: %s", ErrNoText, path)
	}
	return text, nil
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrMissingDocument, path)
		}
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

func extractDOCX(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrMissingDocument, path)
		}
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat docx: %w", err)
	}

	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return "", fmt.Errorf("parse docx: %w", err)
	}

	var sb strings.Builder
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			sb.WriteString(it.String())
			sb.WriteString("\n")
		case *docx.Table:
			sb.WriteString(it.String())
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}
