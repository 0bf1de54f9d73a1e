package parser

import (
	"bytes"
	"context"

	"code.sajari.com/docconv"

	"github.com/tayler-id/lab-agent-rag/internal/core"
)

// docconvParser converts Word/HTML/text formats via docconv. docconv loses
// page geometry, so blocks carry page 0 and the result is flagged with
// missing_page_anchor instead of inventing an anchor.
type docconvParser struct{}

func (d *docconvParser) parse(ctx context.Context, data []byte, mimeType string) (*core.ParseResult, error) {
	res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
	if err != nil {
		return nil, &core.ParseError{MimeType: mimeType, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &core.ParseResult{PageCount: 1}
	section := "Document"
	for _, para := range splitParagraphs(res.Body) {
		kind := core.BlockParagraph
		if looksLikeHeading(para) {
			section = firstLine(para)
			kind = core.BlockHeading
		}
		out.Blocks = append(out.Blocks, core.Block{
			Kind:        kind,
			Text:        para,
			PageStart:   0,
			PageEnd:     0,
			SectionPath: section,
		})
	}
	if len(out.Blocks) > 0 {
		out.Warnings = append(out.Warnings, core.ParseWarning{
			Code:     "missing_page_anchor",
			Severity: core.SeverityWarn,
			Detail:   "converter does not report page geometry",
		})
	}
	return out, nil
}
