// Package extract provides text extraction from various document formats.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lu4p/cat"
)

// ErrUnsupportedFormat indicates a file format no extractor understands.
// Callers should match it with errors.Is.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// SupportedFormats returns the file extensions Extract understands, sorted.
func SupportedFormats() []string {
	return []string{
		".docx", ".md", ".odp", ".ods", ".odt",
		".pdf", ".pptx", ".rst", ".rtf", ".txt", ".xlsx",
	}
}

// Extract reads the file at path and returns its text content.
// For plain text files (.txt, .md, .rst), content is returned as-is (UTF-8 validated).
// PDF, DOCX, Excel, PPTX, ODP, and ODS are parsed from the binary format;
// ODT and RTF go through the cat library. Returns an error wrapping
// ErrUnsupportedFormat if the extension is not recognized.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractFile(path, content)
}

// ExtractFile extracts text for a file whose bytes are already in hand,
// which saves a second read when the caller hashed the file first.
// ODT and RTF still go through the path because cat parses files, not bytes.
func (e *Extractor) ExtractFile(path string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".odt", ".rtf":
		text, err := cat.File(path)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", strings.TrimPrefix(ext, "."), err)
		}
		return text, nil
	}
	return e.ExtractBytes(content, ext)
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"). An empty extension is
// treated as plain text, which is what inline API documents use.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch ext {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".pptx":
		return extractPPTX(content)
	case ".odp", ".ods":
		return extractODF(content)
	case ".txt", ".md", ".rst", "":
		return extractPlain(content)
	case ".odt", ".rtf":
		return "", fmt.Errorf("%w: %s needs a file on disk", ErrUnsupportedFormat, ext)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}
