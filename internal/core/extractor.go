package core

import "context"

// Block kinds produced by parsers.
const (
	BlockParagraph = "paragraph"
	BlockHeading   = "heading"
	BlockTable     = "table"
	BlockFigure    = "figure"
	BlockList      = "list"
)

// Block is one typed span of parsed content, anchored to a page range and
// a hierarchical section path. A block the parser could not anchor keeps
// page 0 and the parse result carries a missing_page_anchor warning; it is
// never silently defaulted to page 1.
type Block struct {
	Kind        string
	Text        string
	PageStart   int
	PageEnd     int
	SectionPath string
	// Cells is populated for table blocks only.
	Cells [][]string
}

// Warning severities reported by parsers.
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// ParseWarning is a structured, non-fatal parser observation.
type ParseWarning struct {
	Code     string
	Severity string
	Detail   string
}

// ParseResult is the uniform output of every parser implementation.
type ParseResult struct {
	Blocks    []Block
	Warnings  []ParseWarning
	PageCount int
	// TablesExpected counts layout hints suggesting tabular content, even
	// when no table block could be extracted. The quality scorer compares
	// it against the tables actually found.
	TablesExpected int
}

// DocumentParser wraps an external parsing capability behind a uniform
// contract: bytes + mime type in, ordered page-anchored blocks out.
// Failures are *ParseError and are terminal for the ingesting job.
type DocumentParser interface {
	Parse(ctx context.Context, data []byte, mimeType string) (*ParseResult, error)
}
