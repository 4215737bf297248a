package processors

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultWeight    = 1.0
	defaultThreshold = 0.5
)

// ParseProcessorList turns the pipe-separated SCENEMINER_PROCESSORS value
// ("pattern|lexicon|llm") into default-weighted configs.
func ParseProcessorList(raw string) []ProcessorConfig {
	parts := strings.Split(raw, "|")
	out := make([]ProcessorConfig, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		out = append(out, ProcessorConfig{
			Name:                p,
			Enabled:             true,
			Weight:              defaultWeight,
			ConfidenceThreshold: defaultThreshold,
		})
	}
	if len(out) == 0 {
		out = append(out,
			ProcessorConfig{Name: "mock", Enabled: true, Weight: defaultWeight, ConfidenceThreshold: defaultThreshold},
			ProcessorConfig{Name: "pattern", Enabled: true, Weight: defaultWeight, ConfidenceThreshold: defaultThreshold},
		)
	}
	return out
}

type processorFile struct {
	Processors []ProcessorConfig `yaml:"processors"`
}

// LoadProcessorFile reads per-processor weights and thresholds from YAML.
// The file wins over the env list when both are set.
func LoadProcessorFile(path string) ([]ProcessorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read processor config: %w", err)
	}
	var pf processorFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse processor config: %w", err)
	}
	out := make([]ProcessorConfig, 0, len(pf.Processors))
	for _, c := range pf.Processors {
		c.Name = strings.ToLower(strings.TrimSpace(c.Name))
		if c.Name == "" {
			continue
		}
		if c.Weight == 0 {
			c.Weight = defaultWeight
		}
		if c.ConfidenceThreshold == 0 {
			c.ConfidenceThreshold = defaultThreshold
		}
		out = append(out, c)
	}
	return out, nil
}
