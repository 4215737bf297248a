package processors

import (
	"context"
	"unicode"

	"sceneminer/internal/models"
)

// PatternProcessor is the fast statistical recognizer: cue-lexicon hits per
// sentence with a capitalized-noun boost for character passages. Runs in
// microseconds and never fails, which makes it the usual sequential-mode
// first choice.
type PatternProcessor struct{}

func NewPatternProcessor() *PatternProcessor { return &PatternProcessor{} }

func (p *PatternProcessor) Name() string { return "pattern" }

func (p *PatternProcessor) Analyze(ctx context.Context, text string) ([]Candidate, error) {
	_ = ctx
	out := make([]Candidate, 0, 8)
	for _, s := range splitSentences(text) {
		if !candidateLengthOK(s.Text) {
			continue
		}
		tokens := tokenize(s.Text)
		if len(tokens) == 0 {
			continue
		}
		dt, hits := cueHits(tokens)
		if hits < 2 {
			continue
		}
		conf := 0.4 + 0.15*float64(hits)
		if dt == models.TypeCharacter && capitalizedMidSentence(s.Text) {
			conf += 0.1
		}
		out = append(out, Candidate{
			Type:       dt,
			Text:       s.Text,
			Confidence: clamp01(conf),
			Start:      s.Start,
			End:        s.End,
		})
	}
	return out, nil
}

// capitalizedMidSentence reports whether any word after the first starts with
// an upper-case letter, a cheap proper-noun signal.
func capitalizedMidSentence(s string) bool {
	prevSpace := false
	for i, r := range s {
		if i == 0 {
			prevSpace = false
			continue
		}
		if prevSpace && unicode.IsUpper(r) {
			return true
		}
		prevSpace = unicode.IsSpace(r)
	}
	return false
}
