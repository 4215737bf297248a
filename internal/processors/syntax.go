package processors

import (
	"context"
	"regexp"
)

// SyntaxProcessor is the dependency-flavoured recognizer: instead of a full
// parse it matches the clause shapes descriptive prose is actually written in
// (copular, existential, and scenic-verb constructions).
type SyntaxProcessor struct{}

func NewSyntaxProcessor() *SyntaxProcessor { return &SyntaxProcessor{} }

func (s *SyntaxProcessor) Name() string { return "syntax" }

var (
	reExistential = regexp.MustCompile(`(?i)\bthere\s+(was|were|stood|hung|lay)\b`)
	reCopular     = regexp.MustCompile(`(?i)\b(was|were|seemed|looked|appeared|felt)\s+(\w+ly\s+)?\w+`)
	reScenicVerb  = regexp.MustCompile(`(?i)\b(loomed|towered|stretched|sprawled|glimmered|shimmered|flickered|drifted|settled|clung|wound|sloped)\b`)
)

func (s *SyntaxProcessor) Analyze(ctx context.Context, text string) ([]Candidate, error) {
	_ = ctx
	out := make([]Candidate, 0, 8)
	for _, sent := range splitSentences(text) {
		if !candidateLengthOK(sent.Text) {
			continue
		}
		score := 0.0
		if reExistential.MatchString(sent.Text) {
			score += 0.25
		}
		if reScenicVerb.MatchString(sent.Text) {
			score += 0.3
		}
		if reCopular.MatchString(sent.Text) {
			score += 0.15
		}
		if score == 0 {
			continue
		}
		tokens := tokenize(sent.Text)
		dt, hits := cueHits(tokens)
		if hits == 0 {
			// clause shape alone is too weak a signal to emit untyped text
			continue
		}
		out = append(out, Candidate{
			Type:       dt,
			Text:       sent.Text,
			Confidence: clamp01(0.35 + score + 0.05*float64(hits)),
			Start:      sent.Start,
			End:        sent.End,
		})
	}
	return out, nil
}
