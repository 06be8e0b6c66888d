package catalog

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Resolution is the outcome of a fuzzy lookup: the matched sub-requirement
// and the confidence (0..1) of the match.
type Resolution struct {
	SubRequirement SubRequirement
	Confidence     float64
}

// Resolve fuzzy-matches identifierOrTitle against both sub-requirement
// identifiers and titles (spec.md §4.2). Ties are broken, in order, by:
//  1. exact-identifier preference
//  2. longest common substring (against the title)
//  3. lexical order of identifier
//
// Below confidenceThreshold, resolution fails with ErrUnresolvedSubRequirement
// and the caller should route the originating claim to quarantine.
func (c *Catalog) Resolve(identifierOrTitle string, confidenceThreshold float64) (Resolution, error) {
	query := strings.TrimSpace(identifierOrTitle)
	if query == "" {
		return Resolution{}, ErrUnresolvedSubRequirement
	}

	// Exact identifier match short-circuits everything else.
	if sr, ok := c.byID[query]; ok {
		return Resolution{SubRequirement: *sr, Confidence: 1.0}, nil
	}

	candidates := c.ListSubRequirements()
	scored := make([]scoredCandidate, 0, len(candidates))
	for _, sr := range candidates {
		idScore := similarity(query, sr.ID)
		titleScore := similarity(query, sr.Title)
		best := idScore
		if titleScore > best {
			best = titleScore
		}
		scored = append(scored, scoredCandidate{
			sr:         sr,
			confidence: best,
			lcs:        longestCommonSubstringLen(strings.ToLower(query), strings.ToLower(sr.Title)),
		})
	}

	winner, ok := pickWinner(scored)
	if !ok || winner.confidence < confidenceThreshold {
		return Resolution{}, ErrUnresolvedSubRequirement
	}
	return Resolution{SubRequirement: winner.sr, Confidence: winner.confidence}, nil
}

type scoredCandidate struct {
	sr         SubRequirement
	confidence float64
	lcs        int
}

// pickWinner applies the tie-break rules over scored candidates: highest
// confidence first, then longest-common-substring, then lexical order of
// identifier.
func pickWinner(scored []scoredCandidate) (scoredCandidate, bool) {
	if len(scored) == 0 {
		return scoredCandidate{}, false
	}

	best := scored[0]
	for _, cand := range scored[1:] {
		if cand.confidence > best.confidence {
			best = cand
			continue
		}
		if cand.confidence < best.confidence {
			continue
		}
		if cand.lcs > best.lcs {
			best = cand
			continue
		}
		if cand.lcs < best.lcs {
			continue
		}
		if cand.sr.ID < best.sr.ID {
			best = cand
		}
	}
	return best, true
}

// similarity returns a normalized 0..1 similarity score between a and b
// derived from edit distance: 1 - (distance / max(len(a), len(b))).
func similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1.0
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	score := 1.0 - float64(dist)/float64(maxLen)
	if score < 0 {
		return 0
	}
	return score
}

// longestCommonSubstringLen returns the length of the longest common
// contiguous substring of a and b, used only as a tie-break signal, not a
// primary confidence metric.
func longestCommonSubstringLen(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	best := 0
	for i := 1; i <= len(ra); i++ {
		curr := make([]int, len(rb)+1)
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
				if curr[j] > best {
					best = curr[j]
				}
			}
		}
		prev = curr
	}
	return best
}
