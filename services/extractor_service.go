package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/phuslu/log"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// TextExtractor returns the plain text of a document file. It never fails:
// an unreadable or unsupported file yields an empty string.
type TextExtractor interface {
	Extract(path string) string
}

// FileTextExtractor reads .txt and .md files directly and PDFs through UniPDF.
type FileTextExtractor struct{}

// SetPDFLicense registers the UniPDF metered key. Without one, PDF files
// extract to nothing and a warning is logged per file.
func SetPDFLicense(key string) error {
	if key == "" {
		return fmt.Errorf("no UniPDF license key configured")
	}
	if err := license.SetMeteredKey(key); err != nil {
		return fmt.Errorf("failed to set UniPDF license key: %w", err)
	}
	return nil
}

// IsSupportedFile reports whether path has an extension Extract handles.
func IsSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".pdf":
		return true
	default:
		return false
	}
}

func (FileTextExtractor) Extract(path string) string {
	text, err := ExtractTextFromFile(path)
	if err != nil {
		log.Warn().Err(err).Str("file", path).Msg("text extraction failed, document skipped")
		return ""
	}
	return text
}

// ExtractTextFromFile reads a file and returns its text content according to
// its extension.
func ExtractTextFromFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".txt", ".md":
		content, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(content), nil
	case ".pdf":
		return extractTextFromPDF(path)
	default:
		return "", fmt.Errorf("unsupported file type: %s", ext)
	}
}

// extractTextFromPDF joins the text of every page, separated by a blank line.
func extractTextFromPDF(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return "", err
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}

		ex, err := extractor.New(page)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}

		text, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	return sb.String(), nil
}
