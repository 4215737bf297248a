package processors

import (
	"context"
	"strings"

	"sceneminer/internal/models"
)

// LexiconProcessor is the morphology-aware recognizer: it scores descriptive
// adjective density from suffix shape rather than a fixed vocabulary, so it
// catches wording the cue lexicons miss ("crepuscular", "moss-grown").
type LexiconProcessor struct{}

func NewLexiconProcessor() *LexiconProcessor { return &LexiconProcessor{} }

func (l *LexiconProcessor) Name() string { return "lexicon" }

var descriptiveSuffixes = []string{"ous", "ful", "less", "ish", "esque", "ant", "ent", "ine", "en"}

func (l *LexiconProcessor) Analyze(ctx context.Context, text string) ([]Candidate, error) {
	_ = ctx
	out := make([]Candidate, 0, 8)
	for _, s := range splitSentences(text) {
		if !candidateLengthOK(s.Text) {
			continue
		}
		tokens := tokenize(s.Text)
		if len(tokens) < 5 {
			continue
		}
		adjectives := 0
		for _, tok := range tokens {
			if looksDescriptive(tok) {
				adjectives++
			}
		}
		density := float64(adjectives) / float64(len(tokens))
		if density < 0.15 {
			continue
		}
		dt, hits := cueHits(tokens)
		if hits == 0 {
			dt = models.TypeOther
		}
		out = append(out, Candidate{
			Type:       dt,
			Text:       s.Text,
			Confidence: clamp01(0.35 + density + 0.05*float64(hits)),
			Start:      s.Start,
			End:        s.End,
		})
	}
	return out, nil
}

func looksDescriptive(tok string) bool {
	if len(tok) < 5 {
		return false
	}
	for _, suf := range descriptiveSuffixes {
		if strings.HasSuffix(tok, suf) {
			return true
		}
	}
	// past-participle modifiers: "weathered", "twisted", "overgrown"
	if strings.HasSuffix(tok, "ed") && len(tok) >= 6 {
		return true
	}
	if strings.HasSuffix(tok, "ing") && len(tok) >= 7 {
		return true
	}
	return false
}
