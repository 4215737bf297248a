package processors

import (
	"context"
	"testing"

	"sceneminer/internal/models"
)

func TestPatternFindsLocationSentence(t *testing.T) {
	text := "He sighed. The castle courtyard opened onto a walled garden beside the river. He left quickly."
	cands, err := NewPatternProcessor().Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %+v", len(cands), cands)
	}
	c := cands[0]
	if c.Type != models.TypeLocation {
		t.Fatalf("expected location, got %s", c.Type)
	}
	if text[c.Start:c.End-1] == "" || c.Start == 0 {
		t.Fatalf("span should point at the middle sentence, got [%d,%d)", c.Start, c.End)
	}
}

func TestPatternIgnoresPlainNarration(t *testing.T) {
	text := "She asked him a question and he answered it without thinking very much about anything at all."
	cands, err := NewPatternProcessor().Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 0 {
		t.Fatalf("expected no candidates, got %+v", cands)
	}
}

func TestSplitSentencesPreservesOffsets(t *testing.T) {
	text := "First sentence here. Second one follows! Third?"
	sents := splitSentences(text)
	if len(sents) != 3 {
		t.Fatalf("expected 3 sentences, got %d", len(sents))
	}
	for _, s := range sents {
		if text[s.Start] != s.Text[0] {
			t.Fatalf("offset mismatch for %q: text[%d]=%c", s.Text, s.Start, text[s.Start])
		}
	}
}

func TestMockDeterministic(t *testing.T) {
	text := "The harbor lights flickered across the black water of the bay. Nothing moved on the quay. The fog swallowed the last ship before midnight came."
	m := NewMockProcessor()
	a, _ := m.Analyze(context.Background(), text)
	b, _ := m.Analyze(context.Background(), text)
	if len(a) != len(b) {
		t.Fatalf("mock must be deterministic: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("mock output differs at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}
