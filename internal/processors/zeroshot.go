package processors

import (
	"context"
	"math"

	"sceneminer/internal/models"
)

// ZeroShotProcessor scores sentences against per-type prototype vocabularies
// with a cosine-style overlap, the same label-affinity idea zero-shot
// classifiers use, minus the model.
type ZeroShotProcessor struct {
	prototypes map[models.DescriptionType]map[string]struct{}
}

func NewZeroShotProcessor() *ZeroShotProcessor {
	protos := make(map[models.DescriptionType]map[string]struct{}, len(typeCues))
	for dt, cues := range typeCues {
		merged := make(map[string]struct{}, len(cues)+8)
		for w := range cues {
			merged[w] = struct{}{}
		}
		for _, w := range prototypeExtras[dt] {
			merged[w] = struct{}{}
		}
		protos[dt] = merged
	}
	return &ZeroShotProcessor{prototypes: protos}
}

var prototypeExtras = map[models.DescriptionType][]string{
	models.TypeLocation:   {"landscape", "scenery", "interior", "architecture", "terrain", "horizon"},
	models.TypeCharacter:  {"appearance", "clothing", "stature", "expression", "countenance"},
	models.TypeAtmosphere: {"mood", "ambience", "weather", "stillness", "foreboding"},
}

func (z *ZeroShotProcessor) Name() string { return "zeroshot" }

func (z *ZeroShotProcessor) Analyze(ctx context.Context, text string) ([]Candidate, error) {
	_ = ctx
	out := make([]Candidate, 0, 8)
	for _, s := range splitSentences(text) {
		if !candidateLengthOK(s.Text) {
			continue
		}
		tokens := tokenize(s.Text)
		if len(tokens) < 4 {
			continue
		}
		bestType := models.TypeOther
		bestScore := 0.0
		for dt, proto := range z.prototypes {
			overlap := 0
			for _, tok := range tokens {
				if _, ok := proto[tok]; ok {
					overlap++
				}
			}
			if overlap == 0 {
				continue
			}
			score := float64(overlap) / math.Sqrt(float64(len(tokens)))
			if score > bestScore || (score == bestScore && dt < bestType) {
				bestScore = score
				bestType = dt
			}
		}
		if bestScore < 0.45 {
			continue
		}
		out = append(out, Candidate{
			Type:       bestType,
			Text:       s.Text,
			Confidence: clamp01(0.3 + 0.4*bestScore),
			Start:      s.Start,
			End:        s.End,
		})
	}
	return out, nil
}
