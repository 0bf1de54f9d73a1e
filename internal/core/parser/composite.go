// Package parser adapts external document-parsing capabilities to the
// uniform core.DocumentParser contract: bytes + mime type in, ordered
// page-anchored blocks out.
package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/tayler-id/lab-agent-rag/internal/core"
)

// Composite routes parsing by mime type: PDFs go through the page-aware
// reader, every other supported format through docconv.
type Composite struct {
	pdf     *pdfParser
	docconv *docconvParser
}

func NewComposite() *Composite {
	return &Composite{
		pdf:     &pdfParser{},
		docconv: &docconvParser{},
	}
}

var _ core.DocumentParser = (*Composite)(nil)

// docconvMimes are the non-PDF formats docconv can convert.
var docconvMimes = map[string]bool{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/msword":             true,
	"application/vnd.oasis.opendocument.text": true,
	"application/rtf":                true,
	"text/html":                      true,
	"text/plain":                     true,
	"text/markdown":                  true,
}

func (c *Composite) Parse(ctx context.Context, data []byte, mimeType string) (*core.ParseResult, error) {
	mt := mimeType
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	mt = strings.TrimSpace(strings.ToLower(mt))

	switch {
	case mt == "application/pdf":
		return c.pdf.parse(ctx, data)
	case docconvMimes[mt]:
		return c.docconv.parse(ctx, data, mt)
	default:
		return nil, &core.ParseError{MimeType: mimeType, Err: fmt.Errorf("unsupported format")}
	}
}

// splitParagraphs breaks extracted text on blank lines, dropping empty and
// whitespace-only spans.
func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// looksLikeHeading is a cheap structural heuristic: short single line,
// no terminal punctuation, starts with a number-dot prefix or is mostly
// upper case.
func looksLikeHeading(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || len(line) > 80 || strings.Contains(line, "\n") {
		return false
	}
	if strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") || strings.HasSuffix(line, ";") {
		return false
	}
	var upper, lower int
	for _, r := range line {
		switch {
		case r >= 'A' && r <= 'Z':
			upper++
		case r >= 'a' && r <= 'z':
			lower++
		}
	}
	if upper > 0 && lower == 0 {
		return true
	}
	// "3.2 Maintenance schedule" style.
	fields := strings.Fields(line)
	if len(fields) >= 2 && len(fields) <= 8 {
		first := strings.TrimSuffix(fields[0], ".")
		digits := true
		for _, r := range first {
			if (r < '0' || r > '9') && r != '.' {
				digits = false
				break
			}
		}
		if digits && first != "" {
			return true
		}
	}
	return false
}
