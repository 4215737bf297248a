package processors

import (
	"context"
	"testing"

	"sceneminer/internal/models"
)

func TestSyntaxMatchesScenicClause(t *testing.T) {
	text := "The tower loomed over the silent courtyard, its shadow stretching across the wall."
	cands, err := NewSyntaxProcessor().Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d: %+v", len(cands), cands)
	}
	if cands[0].Type != models.TypeLocation {
		t.Fatalf("expected location, got %s", cands[0].Type)
	}
	if cands[0].Confidence <= 0.35 {
		t.Fatalf("scenic clause with cues should score above the base, got %v", cands[0].Confidence)
	}
}

func TestSyntaxRequiresTypeCues(t *testing.T) {
	// clause shape matches but no cue tokens: too weak to emit
	text := "There was nothing anyone could do about it anymore, so they waited."
	cands, err := NewSyntaxProcessor().Analyze(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 0 {
		t.Fatalf("expected no candidates without cue tokens, got %+v", cands)
	}
}
