// Package quality evaluates a parse result into a 0-1 confidence score
// with structured flags. The scorer never blocks storage; it only
// annotates the version so downstream consumers can warn users.
package quality

import (
	"github.com/tayler-id/lab-agent-rag/internal/core"
)

// Flags attached to low-confidence parses.
const (
	FlagLowCoverage       = "low_coverage"
	FlagMissingTables     = "missing_tables"
	FlagSuspectedScan     = "suspected_scan"
	FlagMissingPageAnchor = "missing_page_anchor"
)

const lowCoverageCutoff = 0.5

// Score is a deterministic function of page coverage, structural
// expectations, and parser warning severity.
//
// The base score is the fraction of pages that produced at least one
// block; warning severities subtract fixed penalties. The result is
// clamped to [0, 1].
func Score(res *core.ParseResult) (float64, []string) {
	if res == nil {
		return 0, []string{FlagLowCoverage}
	}

	coverage := pageCoverage(res)
	score := coverage

	var flags []string
	if coverage < lowCoverageCutoff {
		flags = append(flags, FlagLowCoverage)
	}

	tablesFound := 0
	for _, b := range res.Blocks {
		if b.Kind == core.BlockTable {
			tablesFound++
		}
	}
	if res.TablesExpected > tablesFound {
		flags = append(flags, FlagMissingTables)
		score -= 0.05
	}

	for _, w := range res.Warnings {
		switch w.Code {
		case "suspected_scan":
			flags = appendOnce(flags, FlagSuspectedScan)
		case "missing_page_anchor":
			flags = appendOnce(flags, FlagMissingPageAnchor)
		}
		switch w.Severity {
		case core.SeverityError:
			score -= 0.2
		case core.SeverityWarn:
			score -= 0.05
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, flags
}

// pageCoverage is the fraction of pages with at least one anchored block.
// Unanchored documents (no page geometry at all) count the whole document
// as covered when any block exists at all.
func pageCoverage(res *core.ParseResult) float64 {
	if res.PageCount <= 0 {
		if len(res.Blocks) > 0 {
			return 1
		}
		return 0
	}
	seen := make(map[int]bool)
	anchored := false
	for _, b := range res.Blocks {
		for p := b.PageStart; p <= b.PageEnd; p++ {
			if p > 0 {
				seen[p] = true
				anchored = true
			}
		}
	}
	if !anchored {
		if len(res.Blocks) > 0 {
			return 1
		}
		return 0
	}
	return float64(len(seen)) / float64(res.PageCount)
}

func appendOnce(flags []string, f string) []string {
	for _, have := range flags {
		if have == f {
			return flags
		}
	}
	return append(flags, f)
}
