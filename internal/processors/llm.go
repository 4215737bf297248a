package processors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sceneminer/internal/models"
)

// LLMProcessor calls an OpenAI-compatible chat-completions endpoint and asks
// for structured JSON. It is the slowest and most failure-prone engine in the
// set; the orchestrator's pass timeout is the real bound, the client timeout
// here is a backstop.
type LLMProcessor struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type LLMSettings struct {
	BaseURL string
	APIKey  string
	Model   string
}

func NewLLMProcessor(s LLMSettings) *LLMProcessor {
	return &LLMProcessor{
		baseURL: strings.TrimRight(s.BaseURL, "/"),
		apiKey:  s.APIKey,
		model:   s.Model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (l *LLMProcessor) Name() string { return "llm" }

const llmSystemPrompt = `You extract short, quotable visual descriptions from narrative text for illustration.
Return JSON only: {"descriptions":[{"type":"location|character|atmosphere|other","text":"<verbatim passage>","confidence":0.0-1.0}]}.
Each text must be a verbatim contiguous passage from the input, 30-400 characters. Return at most 10 items.`

func (l *LLMProcessor) Analyze(ctx context.Context, text string) ([]Candidate, error) {
	if l.apiKey == "" {
		return nil, fmt.Errorf("llm processor: api key missing")
	}
	payload, _ := json.Marshal(map[string]any{
		"model": l.model,
		"messages": []map[string]string{
			{"role": "system", "content": llmSystemPrompt},
			{"role": "user", "content": text},
		},
		"temperature": 0,
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("llm processor: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+l.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm processor: request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("llm processor: error %d: %s", resp.StatusCode, string(body))
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("llm processor: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm processor: empty response")
	}
	return ParseLLMCandidates(parsed.Choices[0].Message.Content, text), nil
}

// ParseLLMCandidates leniently parses model output into candidates. Items the
// model hallucinated (text not present in the unit) or malformed are skipped,
// never fatal: one bad item must not cost the whole vote.
func ParseLLMCandidates(raw, sourceText string) []Candidate {
	raw = stripCodeFence(strings.TrimSpace(raw))
	if raw == "" {
		return nil
	}
	var payload struct {
		Descriptions []struct {
			Type       string  `json:"type"`
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
		} `json:"descriptions"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	out := make([]Candidate, 0, len(payload.Descriptions))
	seen := map[string]struct{}{}
	for _, d := range payload.Descriptions {
		t := strings.TrimSpace(d.Text)
		if t == "" {
			continue
		}
		pos := strings.Index(sourceText, t)
		if pos < 0 {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, Candidate{
			Type:       normalizeType(d.Type),
			Text:       t,
			Confidence: clamp01(d.Confidence),
			Start:      pos,
			End:        pos + len(t),
		})
	}
	return out
}

func normalizeType(s string) models.DescriptionType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "location":
		return models.TypeLocation
	case "character":
		return models.TypeCharacter
	case "atmosphere":
		return models.TypeAtmosphere
	default:
		return models.TypeOther
	}
}

func stripCodeFence(s string) string {
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
