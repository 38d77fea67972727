package document

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// imageExtensions are uploads recorded as image references instead of text.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// IsImage reports whether the filename is an image upload.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// ExtractText pulls plain text from a stored file based on its extension.
// Unsupported extensions yield empty text with no error; the file is still
// kept on disk and served back by URL.
func ExtractText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return extractPDF(path)
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read text file: %w", err)
		}
		return string(data), nil
	case ".docx":
		return extractDOCX(path)
	default:
		return "", nil
	}
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var text strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if content != "" {
			text.WriteString(content)
			text.WriteString("\n")
		}
	}
	return text.String(), nil
}

// docx word/document.xml: paragraphs are w:p elements, runs carry w:t text.
type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Text string `xml:"t"`
	} `xml:"r"`
}

func extractDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	for _, file := range zr.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open docx document.xml: %w", err)
		}
		defer rc.Close()

		var doc docxDocument
		if err := xml.NewDecoder(rc).Decode(&doc); err != nil {
			return "", fmt.Errorf("parse docx document.xml: %w", err)
		}

		var lines []string
		for _, para := range doc.Body.Paragraphs {
			var line strings.Builder
			for _, run := range para.Runs {
				line.WriteString(run.Text)
			}
			lines = append(lines, line.String())
		}
		return strings.Join(lines, "\n"), nil
	}
	return "", fmt.Errorf("docx has no word/document.xml")
}
