// Package rerank diversifies a relevance-ordered candidate list with a
// per-document cap, near-duplicate suppression and a single-pass MMR
// penalty.
package rerank

import (
	"regexp"
	"strings"
)

const (
	DefaultDupThreshold = 0.9
	DefaultLambda       = 0.7
)

var urlPattern = regexp.MustCompile(`(?i)(https?://|www\.)\S+`)

// Candidate is a scored passage owned by a document.
type Candidate struct {
	DocumentID uint
	Text       string
	Score      float64
}

// Selection is an accepted candidate. Index points into the input slice.
type Selection struct {
	Index         int
	Candidate     Candidate
	AdjustedScore float64
	Penalty       float64
}

type Options struct {
	DupThreshold float64
	Lambda       float64
	// PerDocCap overrides PerDocCap(k) when positive.
	PerDocCap int
}

func DefaultOptions() Options {
	return Options{DupThreshold: DefaultDupThreshold, Lambda: DefaultLambda}
}

// PerDocCap is max(2, k/2) for k > 2 and 1 otherwise.
func PerDocCap(k int) int {
	if k > 2 {
		if half := k / 2; half > 2 {
			return half
		}
		return 2
	}
	return 1
}

// Select walks candidates once, in the given order, and accepts at most k.
// Candidates must already be sorted by descending score; accepted items are
// not re-sorted by their adjusted score.
func Select(candidates []Candidate, k int, opts Options) []Selection {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	capPerDoc := opts.PerDocCap
	if capPerDoc <= 0 {
		capPerDoc = PerDocCap(k)
	}

	perDoc := make(map[uint]int)
	selected := make([]Selection, 0, k)
	var selectedTokens []map[string]struct{}

	for i, c := range candidates {
		if len(selected) >= k {
			break
		}
		if perDoc[c.DocumentID] >= capPerDoc {
			continue
		}

		tokens := tokenSet(Normalize(c.Text))
		penalty := 0.0
		duplicate := false
		for _, prev := range selectedTokens {
			sim := containment(tokens, prev)
			if sim > opts.DupThreshold {
				duplicate = true
				break
			}
			if sim > penalty {
				penalty = sim
			}
		}
		if duplicate {
			continue
		}

		perDoc[c.DocumentID]++
		selectedTokens = append(selectedTokens, tokens)
		selected = append(selected, Selection{
			Index:         i,
			Candidate:     c,
			AdjustedScore: c.Score - opts.Lambda*penalty,
			Penalty:       penalty,
		})
	}
	return selected
}

// Normalize lowercases text, replaces URLs with a space and collapses
// whitespace runs.
func Normalize(text string) string {
	text = strings.ToLower(text)
	text = urlPattern.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

// Similarity is |A ∩ B| / min(|A|, |B|) over whitespace-separated words of
// the normalized texts; 0 when either side is empty.
func Similarity(a, b string) float64 {
	return containment(tokenSet(Normalize(a)), tokenSet(Normalize(b)))
}

func tokenSet(normalized string) map[string]struct{} {
	fields := strings.Fields(normalized)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func containment(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}
