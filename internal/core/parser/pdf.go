package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/tayler-id/lab-agent-rag/internal/core"
)

// pdfParser extracts text per page so every block keeps a real page anchor.
type pdfParser struct{}

func (p *pdfParser) parse(ctx context.Context, data []byte) (*core.ParseResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &core.ParseError{MimeType: "application/pdf", Err: err}
	}

	res := &core.ParseResult{PageCount: reader.NumPage()}
	section := "Document"
	emptyPages := 0

	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			emptyPages++
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			res.Warnings = append(res.Warnings, core.ParseWarning{
				Code:     "page_extract_failed",
				Severity: core.SeverityWarn,
				Detail:   fmt.Sprintf("page %d: %v", i, err),
			})
			emptyPages++
			continue
		}
		if strings.TrimSpace(text) == "" {
			emptyPages++
			continue
		}

		for _, para := range splitParagraphs(text) {
			if cells, ok := gridCells(para); ok {
				res.Blocks = append(res.Blocks, core.Block{
					Kind:        core.BlockTable,
					Text:        para,
					PageStart:   i,
					PageEnd:     i,
					SectionPath: section,
					Cells:       cells,
				})
				continue
			}
			if hintsTable(para) {
				res.TablesExpected++
			}
			kind := core.BlockParagraph
			if looksLikeHeading(para) {
				section = firstLine(para)
				kind = core.BlockHeading
			}
			res.Blocks = append(res.Blocks, core.Block{
				Kind:        kind,
				Text:        para,
				PageStart:   i,
				PageEnd:     i,
				SectionPath: section,
			})
		}
	}

	if emptyPages > 0 && emptyPages == reader.NumPage() {
		res.Warnings = append(res.Warnings, core.ParseWarning{
			Code:     "suspected_scan",
			Severity: core.SeverityError,
			Detail:   "no extractable text on any page",
		})
	} else if emptyPages > 0 {
		res.Warnings = append(res.Warnings, core.ParseWarning{
			Code:     "empty_pages",
			Severity: core.SeverityInfo,
			Detail:   fmt.Sprintf("%d of %d pages yielded no text", emptyPages, reader.NumPage()),
		})
	}
	return res, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// gridCells recognizes a run of lines whose columns align on multi-space
// gaps. Two or more such rows with a consistent column count read as an
// extracted table.
func gridCells(para string) ([][]string, bool) {
	lines := strings.Split(para, "\n")
	var rows [][]string
	for _, line := range lines {
		cols := splitColumns(line)
		if len(cols) < 2 {
			return nil, false
		}
		rows = append(rows, cols)
	}
	if len(rows) < 2 {
		return nil, false
	}
	width := len(rows[0])
	for _, r := range rows[1:] {
		if len(r) != width {
			return nil, false
		}
	}
	return rows, true
}

// hintsTable flags a single grid-ish line: a layout hint that tabular
// content existed even though no table could be extracted.
func hintsTable(para string) bool {
	lines := strings.Split(para, "\n")
	if len(lines) != 1 {
		return false
	}
	return len(splitColumns(lines[0])) >= 3
}

func splitColumns(line string) []string {
	var cols []string
	for _, c := range strings.Split(line, "  ") {
		c = strings.TrimSpace(c)
		if c != "" {
			cols = append(cols, c)
		}
	}
	if len(cols) < 2 {
		// Tab-separated fallback.
		cols = cols[:0]
		for _, c := range strings.Split(line, "\t") {
			c = strings.TrimSpace(c)
			if c != "" {
				cols = append(cols, c)
			}
		}
	}
	return cols
}
