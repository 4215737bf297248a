package ensemble

import (
	"regexp"
	"strings"
)

// Near-duplicate test used for clustering and final dedup: exact match after
// normalization, containment with a minimum overlap, or token-level Jaccard.
// Chosen over edit distance so two engines quoting overlapping spans of the
// same passage land in one cluster without a tuning-sensitive threshold.

var (
	reSpace    = regexp.MustCompile(`\s+`)
	reNonWord  = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	stopTokens = map[string]struct{}{
		"the": {}, "and": {}, "was": {}, "were": {}, "with": {}, "that": {},
		"this": {}, "its": {}, "his": {}, "her": {}, "had": {}, "from": {},
		"into": {}, "over": {}, "under": {}, "upon": {}, "of": {}, "in": {},
		"on": {}, "at": {}, "to": {}, "by": {}, "it": {}, "as": {},
	}
)

type SimilarityOptions struct {
	MinOverlapChars  int
	JaccardThreshold float64
}

func DefaultSimilarity() SimilarityOptions {
	return SimilarityOptions{MinOverlapChars: 25, JaccardThreshold: 0.5}
}

func normalizeText(s string) string {
	return reSpace.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

func contentTokens(s string) map[string]struct{} {
	parts := reNonWord.Split(strings.ToLower(s), -1)
	out := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		if len(p) < 2 {
			continue
		}
		if _, stop := stopTokens[p]; stop {
			continue
		}
		out[p] = struct{}{}
	}
	return out
}

func (o SimilarityOptions) similar(a, b string) bool {
	na, nb := normalizeText(a), normalizeText(b)
	if na == nb {
		return true
	}
	shorter, longer := na, nb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) >= o.MinOverlapChars && strings.Contains(longer, shorter) {
		return true
	}
	return jaccard(contentTokens(na), contentTokens(nb)) >= o.JaccardThreshold
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
