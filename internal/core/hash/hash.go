// Package hash computes the content fingerprints used for deduplication:
// whole-file digests drive version dedupe, normalized-passage digests drive
// chunk dedupe.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// File returns the hex sha256 of the raw bytes.
func File(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Passage returns the hex sha256 of the normalized text, so inconsequential
// re-flow (whitespace, casing) does not produce spurious new chunks.
func Passage(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Normalize collapses runs of whitespace to single spaces, trims, and
// case-folds.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
