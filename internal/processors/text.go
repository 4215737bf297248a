package processors

import (
	"regexp"
	"strings"
	"unicode"

	"sceneminer/internal/models"
)

// Precompiled regexes shared by the heuristic processors.
var (
	reSentenceEnd = regexp.MustCompile(`[.!?]["')\]]?\s+`)
	reNonLetters  = regexp.MustCompile(`[^\p{L}]+`)
)

const (
	minCandidateChars = 30
	maxCandidateChars = 400
)

// sentence is a span of the original text, offsets preserved so candidates
// keep their position in the unit.
type sentence struct {
	Text  string
	Start int
	End   int
}

func splitSentences(text string) []sentence {
	out := make([]sentence, 0, 32)
	start := 0
	for _, loc := range reSentenceEnd.FindAllStringIndex(text, -1) {
		end := loc[0] + 1
		s := strings.TrimSpace(text[start:end])
		if s != "" {
			out = append(out, sentence{Text: s, Start: start + leadingSpace(text[start:end]), End: end})
		}
		start = loc[1]
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		out = append(out, sentence{Text: tail, Start: start + leadingSpace(text[start:]), End: len(text)})
	}
	return out
}

func leadingSpace(s string) int {
	for i, r := range s {
		if !unicode.IsSpace(r) {
			return i
		}
	}
	return len(s)
}

func tokenize(text string) []string {
	parts := reNonLetters.Split(strings.ToLower(text), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

// Cue lexicons per description type. Deliberately small: these drive cheap
// heuristic votes that the ensemble reconciles, not a final answer.
var typeCues = map[models.DescriptionType]map[string]struct{}{
	models.TypeLocation: wordSet(
		"forest", "woods", "mountain", "mountains", "valley", "river", "lake",
		"sea", "ocean", "shore", "cliff", "castle", "tower", "hall", "room",
		"chamber", "corridor", "house", "cottage", "village", "town", "city",
		"street", "road", "path", "garden", "field", "meadow", "plain",
		"desert", "cave", "cavern", "bridge", "gate", "wall", "courtyard",
		"harbor", "island", "hill", "hills", "ruins", "temple", "church",
	),
	models.TypeCharacter: wordSet(
		"eyes", "hair", "face", "skin", "beard", "hands", "shoulders",
		"tall", "short", "thin", "slender", "broad", "wore", "dressed",
		"cloak", "coat", "gown", "robe", "scar", "smile", "brow", "cheeks",
		"voice", "gait", "figure", "features", "complexion", "lips",
	),
	models.TypeAtmosphere: wordSet(
		"darkness", "dark", "gloom", "shadow", "shadows", "silence", "quiet",
		"mist", "fog", "rain", "storm", "thunder", "wind", "cold", "chill",
		"warmth", "heat", "dusk", "dawn", "twilight", "moonlight", "sunlight",
		"glow", "dim", "eerie", "dreary", "heavy", "still", "hush", "smoke",
	),
}

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// cueHits counts cue matches per type and returns the winning type.
// Returns TypeOther with zero hits when nothing matches.
func cueHits(tokens []string) (models.DescriptionType, int) {
	best := models.TypeOther
	bestHits := 0
	// fixed iteration order keeps the result deterministic on ties
	for _, dt := range []models.DescriptionType{models.TypeLocation, models.TypeCharacter, models.TypeAtmosphere} {
		hits := 0
		for _, tok := range tokens {
			if _, ok := typeCues[dt][tok]; ok {
				hits++
			}
		}
		if hits > bestHits {
			best = dt
			bestHits = hits
		}
	}
	return best, bestHits
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func candidateLengthOK(s string) bool {
	return len(s) >= minCandidateChars && len(s) <= maxCandidateChars
}
