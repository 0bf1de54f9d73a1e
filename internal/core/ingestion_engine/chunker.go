package ingestion_engine

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tayler-id/lab-agent-rag/internal/core"
	"github.com/tayler-id/lab-agent-rag/internal/core/hash"
	"github.com/tayler-id/lab-agent-rag/internal/models"
)

var (
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	warningRe  = regexp.MustCompile(`(?i)\b(warning|caution|danger)\b`)
	stepRe     = regexp.MustCompile(`(?im)^\s*(\d+[.)]\s|step\s+\d+)`)
)

// Chunker groups parsed blocks into overlapping, kind-tagged passages.
type Chunker struct {
	targetTokens     int
	overlapSentences int
}

func NewChunker(targetTokens, overlapSentences int) *Chunker {
	if targetTokens <= 0 {
		targetTokens = 512
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	return &Chunker{targetTokens: targetTokens, overlapSentences: overlapSentences}
}

// Chunk walks blocks in document order and emits passages plus the table
// records behind table passages. Table blocks always become their own
// passage regardless of size; empty blocks are dropped. A document that
// yields no passages is a valid "empty" outcome, not an error.
func (c *Chunker) Chunk(versionID string, blocks []core.Block) ([]models.Chunk, []models.Table) {
	var (
		chunks []models.Chunk
		tables []models.Table

		buf       []string // pending sentences
		tokSum    int
		fresh     int // sentences added since the last flush
		section   string
		pageStart int
		pageEnd   int
		procedure bool
	)

	flush := func() {
		// A buffer holding only the previous passage's overlap tail is
		// not a new passage.
		if len(buf) == 0 || fresh == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(buf, " "))
		if text == "" {
			buf, tokSum, fresh, procedure = nil, 0, 0, false
			return
		}
		kind := models.KindParagraph
		if procedure {
			kind = models.KindProcedure
		}
		if warningRe.MatchString(text) {
			kind = models.KindWarning
		}
		chunks = append(chunks, models.Chunk{
			ID:           uuid.NewString(),
			DocVersionID: versionID,
			SectionPath:  section,
			PageStart:    pageStart,
			PageEnd:      pageEnd,
			Kind:         kind,
			Text:         text,
			TokenCount:   tokSum,
			Meta:         map[string]string{"source": "parser"},
			Hash:         hash.Passage(text),
		})

		// Seed the next passage with the overlap tail.
		if c.overlapSentences > 0 && len(buf) > c.overlapSentences {
			buf = append([]string(nil), buf[len(buf)-c.overlapSentences:]...)
		} else if c.overlapSentences == 0 {
			buf = nil
		}
		tokSum = 0
		for _, s := range buf {
			tokSum += approxTokens(s)
		}
		fresh = 0
		procedure = false
	}

	resetPages := func(b core.Block) {
		pageStart = b.PageStart
		pageEnd = b.PageEnd
	}
	extendPages := func(b core.Block) {
		if len(buf) == 0 {
			resetPages(b)
			return
		}
		if b.PageStart < pageStart {
			pageStart = b.PageStart
		}
		if b.PageEnd > pageEnd {
			pageEnd = b.PageEnd
		}
	}

	for _, b := range blocks {
		text := strings.TrimSpace(b.Text)
		if text == "" {
			continue
		}

		if b.SectionPath != section {
			flush()
			buf, tokSum, fresh = nil, 0, 0
			section = b.SectionPath
		}

		switch b.Kind {
		case core.BlockHeading:
			// Headings name the section; their text travels in section_path.
			continue

		case core.BlockTable:
			flush()
			buf, tokSum, fresh = nil, 0, 0
			chunkID := uuid.NewString()
			chunks = append(chunks, models.Chunk{
				ID:           chunkID,
				DocVersionID: versionID,
				SectionPath:  b.SectionPath,
				PageStart:    b.PageStart,
				PageEnd:      b.PageEnd,
				Kind:         models.KindTable,
				Text:         text,
				TokenCount:   approxTokens(text),
				Meta:         map[string]string{"source": "parser"},
				Hash:         hash.Passage(text),
			})
			nrows := len(b.Cells)
			ncols := 0
			if nrows > 0 {
				ncols = len(b.Cells[0])
			}
			tables = append(tables, models.Table{
				ID:           uuid.NewString(),
				ChunkID:      chunkID,
				DocVersionID: versionID,
				Page:         b.PageStart,
				Path:         b.SectionPath,
				NRows:        nrows,
				NCols:        ncols,
				Cells:        b.Cells,
			})
			continue

		case core.BlockFigure:
			flush()
			buf, tokSum, fresh = nil, 0, 0
			chunks = append(chunks, models.Chunk{
				ID:           uuid.NewString(),
				DocVersionID: versionID,
				SectionPath:  b.SectionPath,
				PageStart:    b.PageStart,
				PageEnd:      b.PageEnd,
				Kind:         models.KindFigure,
				Text:         text,
				TokenCount:   approxTokens(text),
				Meta:         map[string]string{"source": "parser"},
				Hash:         hash.Passage(text),
			})
			continue
		}

		if b.Kind == core.BlockList || stepRe.MatchString(text) {
			procedure = true
		}
		extendPages(b)

		for _, sentence := range splitSentences(text) {
			if len(buf) == 0 {
				resetPages(b)
				extendPages(b)
			}
			buf = append(buf, sentence)
			fresh++
			tokSum += approxTokens(sentence)
			if tokSum >= c.targetTokens {
				flush()
				if len(buf) > 0 {
					// Overlap tail inherits this block's anchors.
					resetPages(b)
				}
			}
		}
	}
	flush()

	return dedupeByHash(chunks), tables
}

// splitSentences breaks text on sentence punctuation; text without any
// terminal punctuation is one sentence.
func splitSentences(text string) []string {
	matches := sentenceRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return []string{strings.TrimSpace(text)}
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	// Keep an unterminated trailing fragment.
	if tail := strings.TrimSpace(text[lastMatchEnd(text):]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func lastMatchEnd(text string) int {
	locs := sentenceRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return 0
	}
	return locs[len(locs)-1][1]
}

// dedupeByHash collapses passages with identical normalized text within
// the version, keeping the first occurrence.
func dedupeByHash(chunks []models.Chunk) []models.Chunk {
	seen := make(map[string]bool, len(chunks))
	out := chunks[:0]
	for _, ch := range chunks {
		if seen[ch.Hash] {
			continue
		}
		seen[ch.Hash] = true
		out = append(out, ch)
	}
	return out
}
