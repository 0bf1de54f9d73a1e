package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tayler-id/lab-agent-rag/internal/core"
)

func TestParseUnsupportedMime(t *testing.T) {
	p := NewComposite()
	_, err := p.Parse(context.Background(), []byte("data"), "application/zip")
	require.Error(t, err)

	var perr *core.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "application/zip", perr.MimeType)
}

func TestParseStripsMimeParams(t *testing.T) {
	p := NewComposite()
	// Routing must ignore charset parameters; the body itself is fine to fail
	// later, routing must not.
	_, err := p.Parse(context.Background(), []byte("%PDF-bogus"), "application/pdf; charset=binary")
	var perr *core.ParseError
	require.True(t, errors.As(err, &perr), "bogus PDF body should surface as ParseError, not unsupported mime")
	assert.NotContains(t, perr.Err.Error(), "unsupported format")
}

func TestSplitParagraphs(t *testing.T) {
	got := splitParagraphs("first para\n\n  \n\nsecond para\nstill second\n\n")
	require.Len(t, got, 2)
	assert.Equal(t, "first para", got[0])
	assert.Equal(t, "second para\nstill second", got[1])
}

func TestLooksLikeHeading(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"MAINTENANCE", true},
		{"3.2 Filter replacement", true},
		{"This is a normal sentence that ends with a period.", false},
		{"", false},
		{"lowercase fragment without punctuation that runs on far too long to plausibly be a section heading", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, looksLikeHeading(tt.line), tt.line)
	}
}

func TestGridCells(t *testing.T) {
	para := "Part  Interval  Torque\nFilter  30 days  5 Nm\nBelt  90 days  12 Nm"
	cells, ok := gridCells(para)
	require.True(t, ok)
	require.Len(t, cells, 3)
	assert.Equal(t, []string{"Part", "Interval", "Torque"}, cells[0])

	_, ok = gridCells("just one prose line")
	assert.False(t, ok)

	// Ragged rows are prose, not a table.
	_, ok = gridCells("a  b  c\nd  e")
	assert.False(t, ok)
}
