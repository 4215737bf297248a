// Package classify decides whether a content unit is narrative prose worth
// extracting from or a service page (table of contents, copyright, index).
// The decision is a pure function of immutable inputs and is versioned so
// cached decisions can be invalidated deliberately when the rules change.
package classify

import (
	"regexp"
	"strings"

	"sceneminer/internal/models"
)

// Version is persisted with every decision. Bump it whenever the rule set
// changes; Reprocess is the invalidation path for stale decisions.
const Version = "v1"

const (
	// SampleChars is how much of the unit body is scanned for service-page
	// keywords. The title alone misses untitled front matter.
	SampleChars = 2000

	// MinSubstantiveWords: anything shorter is a separator or service page.
	MinSubstantiveWords = 100

	// NarrativeOverrideWords: a "Prologue" longer than this is real
	// narrative content despite the service-looking title.
	NarrativeOverrideWords = 500

	// bodyKeywordFloor: distinct keyword families needed in the body sample
	// before an untitled unit is ruled a service page.
	bodyKeywordFloor = 2
)

var serviceTitleKeywords = []string{
	"table of contents", "contents", "copyright", "foreword", "preface",
	"acknowledgment", "acknowledgement", "dedication", "bibliography",
	"glossary", "index", "appendix", "about the author", "also by",
	"title page", "colophon", "imprint", "translator's note", "publisher",
}

// narrativeAdjacent titles look like front matter but routinely hold real
// story text when long enough.
var narrativeAdjacent = []string{"prologue", "epilogue", "introduction", "interlude"}

var bodyKeywordPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\ball rights reserved\b`),
	regexp.MustCompile(`(?i)\bcopyright\b|©`),
	regexp.MustCompile(`(?i)\bisbn\b`),
	regexp.MustCompile(`(?i)\bpublished by\b|\bfirst edition\b|\bprinted in\b`),
	regexp.MustCompile(`(?i)\bchapter\s+\w+[\s.]*\d+\s*$`),
	regexp.MustCompile(`(?i)\btranslated by\b|\bedited by\b`),
}

type Decision struct {
	Class   models.Classification `json:"class"`
	Reason  string                `json:"reason"`
	Version string                `json:"version"`
}

func Classify(title, content string, wordCount int) Decision {
	t := strings.ToLower(strings.TrimSpace(title))

	for _, kw := range narrativeAdjacent {
		if strings.Contains(t, kw) {
			if wordCount > NarrativeOverrideWords {
				return decision(models.ClassSubstantive, "narrative-adjacent title with substantial content")
			}
			return decision(models.ClassService, "short narrative-adjacent unit: "+kw)
		}
	}

	for _, kw := range serviceTitleKeywords {
		if strings.Contains(t, kw) {
			return decision(models.ClassService, "service title keyword: "+kw)
		}
	}

	sample := content
	if len(sample) > SampleChars {
		sample = sample[:SampleChars]
	}
	hits := 0
	for _, re := range bodyKeywordPatterns {
		if re.MatchString(sample) {
			hits++
		}
	}
	if hits >= bodyKeywordFloor {
		return decision(models.ClassService, "service keyword density in body sample")
	}

	if wordCount < MinSubstantiveWords {
		return decision(models.ClassService, "below minimum word count")
	}

	return decision(models.ClassSubstantive, "narrative content")
}

func decision(c models.Classification, reason string) Decision {
	return Decision{Class: c, Reason: reason, Version: Version}
}
