package document

import (
	"fmt"
	"strings"

	"github.com/amul-dhungel/Deepwork/session"
)

const (
	// abstractScanWindow is how far into the document the word "Abstract" is
	// searched for before falling back to the document head.
	abstractScanWindow = 2000
	abstractLen        = 500
	headLen            = 300
)

// NoAbstract is reported when a file yields no text to summarize.
const NoAbstract = "No abstract content detected."

// Abstract applies the upload-time summary heuristic: if the first 2000
// characters mention "Abstract", take the 500 characters following it;
// otherwise take the document head. A crude placeholder, but the real
// summary comes from the /api/summarize model call.
func Abstract(text string) string {
	if strings.TrimSpace(text) == "" {
		return NoAbstract
	}

	window := text
	if len(window) > abstractScanWindow {
		window = window[:abstractScanWindow]
	}

	if _, after, found := strings.Cut(window, "Abstract"); found {
		if len(after) > abstractLen {
			after = after[:abstractLen]
		}
		return strings.TrimSpace(after) + "..."
	}

	head := text
	if len(head) > headLen {
		head = head[:headLen]
	}
	return strings.TrimSpace(head) + "..."
}

// BuildMetadata constructs the document record stored in the session and
// returned from the upload endpoint. Author and year are placeholders; the
// original filename keeps the citation readable.
func BuildMetadata(originalName, storedName, baseURL, text string, size int64) session.Document {
	author := "Unknown Author"
	year := "2024"

	return session.Document{
		Name:     originalName,
		Title:    originalName,
		Author:   author,
		Citation: fmt.Sprintf("%s (%s). *%s*. Retrieved from Deepwork.", author, year, originalName),
		Summary:  Abstract(text),
		Size:     size,
		URL:      baseURL + "/uploads/" + storedName,
	}
}
