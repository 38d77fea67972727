// Package prompt assembles the text sent to providers. The frontend renders
// replies as inner HTML, so every template instructs the model to emit body
// content only, without markdown fences or document scaffolding.
package prompt

import (
	"fmt"
	"strings"

	"github.com/amul-dhungel/Deepwork/session"
)

// ReportOptions toggles the optional structures of a generated document.
type ReportOptions struct {
	IncludeTable   bool `json:"includeTable"`
	IncludeMermaid bool `json:"includeMermaid"`
	IncludeToC     bool `json:"includeToC"`
}

// ReportRequest carries the inputs of the /api/generate endpoint.
type ReportRequest struct {
	Topic     string        `json:"topic"`
	Purpose   string        `json:"purpose"`
	Tone      string        `json:"tone"`
	Style     string        `json:"style"`
	KeyPoints []string      `json:"key_points"`
	Options   ReportOptions `json:"options"`
}

// imageContext lists uploaded images so the model can embed them by URL.
func imageContext(images []session.Image) string {
	lines := make([]string, 0, len(images))
	for _, img := range images {
		lines = append(lines, fmt.Sprintf("Image '%s' available at: %s", img.Name, img.URL))
	}
	return strings.Join(lines, "\n")
}

// Chat wraps a user message with the session's document context. A session
// with no uploads gets the message passed through untouched.
func Chat(sess *session.Session, message string) string {
	docContext := sess.Context()
	imgContext := imageContext(sess.Images())
	if docContext == "" && imgContext == "" {
		return message
	}

	var b strings.Builder
	b.WriteString("Context from uploaded documents:\n")
	b.WriteString(docContext)
	b.WriteString("\n\nAvailable Images:\n")
	b.WriteString(imgContext)
	b.WriteString("\n\nUser Question: ")
	b.WriteString(message)
	b.WriteString(`

Instructions:
- Role: Expert Research Assistant.
- Tone: Professional, clear, and high-quality.
- Formatting: Use detailed HTML.
  - <h1>, <h2> for structure.
  - <p> for paragraphs.
  - <ul>/<li> for lists.
  - <table border="1" style="border-collapse: collapse; width: 100%;"> for data comparisons.
- Images: If applicable, embed images using <img src="URL" style="max-width:100%; height:auto;" />.
- Accuracy: Base answers strictly on the provided context if possible.
`)
	return b.String()
}

// Report builds the full document-generation prompt.
func Report(sess *session.Session, req ReportRequest) string {
	style := req.Style
	if style == "" {
		style = "professional"
	}

	var b strings.Builder
	b.WriteString("You are an expert academic and professional writer.\n")
	fmt.Fprintf(&b, "Role: Write a comprehensive %s document about %q.\n", style, req.Topic)
	if req.Purpose != "" {
		fmt.Fprintf(&b, "Purpose: %s\n", req.Purpose)
	}
	fmt.Fprintf(&b, "Tone: %s\n", req.Tone)

	docContext := sess.Context()
	imgContext := imageContext(sess.Images())
	if docContext != "" || imgContext != "" {
		b.WriteString("\nUse these uploaded documents as context/source material:\n")
		b.WriteString(docContext)
		b.WriteString("\n\nAvailable Images:\n")
		b.WriteString(imgContext)
		b.WriteString("\n")
	}

	if len(req.KeyPoints) > 0 {
		b.WriteString("\nKey points to cover:\n")
		for _, point := range req.KeyPoints {
			b.WriteString("- " + point + "\n")
		}
	}

	b.WriteString(`
Instructions:
1. Format: Return ONLY the inner HTML body content.
   - DO NOT include <html>, <head>, or <body> tags.
   - DO NOT wrap in markdown code blocks (no ` + "```" + `).
2. Content Structure:
   - Minimize Bullet Points: Prefer detailed, well-written paragraphs for narrative flow. Only use lists when absolutely necessary for sequential steps or distinct data points.
   - NO Empty List Items: Ensure every <li> contains text.
   - Professional Indexing: Use <ol> only for numbered priorities/steps. Use <ul> for non-ordered items.
3. Tags:
   - <h1> for Main Title.
   - <h2> for Sections.
   - <p> for paragraphs.
4. References:
   - Include a "References" section at the end with mock academic citations.
   - Use <b>bold</b> for key concepts.

Specific Requirements:
`)
	if req.Options.IncludeTable {
		b.WriteString(" - CREATE A COMPARISON TABLE: Isolate key data points and present them in a standard HTML <table> with <thead> and <tbody>.\n")
	}
	if req.Options.IncludeMermaid {
		b.WriteString(" - GENERATE A MERMAID DIAGRAM: Create a flowchart or sequence diagram using Mermaid syntax code block (```mermaid ... ```) to visualize the structure or process.\n")
	}
	if req.Options.IncludeToC {
		b.WriteString(" - TABLE OF CONTENTS: Include a Table of Contents at the beginning, linking to the sections.\n")
	}

	b.WriteString("\nContent Topic:\n")
	b.WriteString(req.Topic)
	b.WriteString("\n")
	return b.String()
}

// Summary builds the prompt for summarizing one previously uploaded document.
// The document text is re-located in the session context by its delimiter
// block; when absent, the whole context is offered instead.
func Summary(sess *session.Session, filename string) string {
	text := DocumentText(sess, filename)
	if text == "" {
		text = sess.Context()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the document %q for an academic reader.\n\n", filename)
	b.WriteString("Document text:\n")
	b.WriteString(text)
	b.WriteString(`

Instructions:
- Produce a concise summary (3-5 paragraphs) of the document's argument, method, and findings.
- Return ONLY inner HTML body content: <h2> for section headers, <p> for paragraphs.
- Do not wrap the output in markdown code blocks.
`)
	return b.String()
}

// Refine builds the prompt for rewriting a text fragment per an instruction.
func Refine(text, instruction string) string {
	var b strings.Builder
	b.WriteString("Refine the following text.\n\n")
	fmt.Fprintf(&b, "Instruction: %s\n\n", instruction)
	b.WriteString("Text:\n")
	b.WriteString(text)
	b.WriteString(`

Instructions:
- Apply the instruction while preserving the author's meaning.
- Return ONLY the refined text as inner HTML (use <p> tags for paragraphs), with no commentary before or after.
- Do not wrap the output in markdown code blocks.
`)
	return b.String()
}

// DocumentText extracts the delimited block for filename from the session
// context. Returns "" when the document is not present (e.g. truncated away
// by the context cap).
func DocumentText(sess *session.Session, filename string) string {
	ctx := sess.Context()
	marker := "--- Document: " + filename + " ---\n"

	_, after, found := strings.Cut(ctx, marker)
	if !found {
		return ""
	}
	if idx := strings.Index(after, "\n--- Document: "); idx >= 0 {
		after = after[:idx]
	}
	return after
}
