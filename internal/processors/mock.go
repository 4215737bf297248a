package processors

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"sceneminer/internal/models"
)

// MockProcessor emits deterministic candidates derived from a hash of each
// sentence, for tests and keyless local development.
type MockProcessor struct{}

func NewMockProcessor() *MockProcessor { return &MockProcessor{} }

func (m *MockProcessor) Name() string { return "mock" }

var mockTypes = []models.DescriptionType{models.TypeLocation, models.TypeCharacter, models.TypeAtmosphere}

func (m *MockProcessor) Analyze(ctx context.Context, text string) ([]Candidate, error) {
	_ = ctx
	out := make([]Candidate, 0, 4)
	for _, s := range splitSentences(text) {
		if !candidateLengthOK(s.Text) {
			continue
		}
		h := sha256.Sum256([]byte(s.Text))
		u := binary.BigEndian.Uint32(h[:4])
		if u%3 != 0 {
			continue
		}
		out = append(out, Candidate{
			Type:       mockTypes[int(u/3)%len(mockTypes)],
			Text:       s.Text,
			Confidence: 0.5 + float64(u%40)/100.0,
			Start:      s.Start,
			End:        s.End,
		})
	}
	return out, nil
}
