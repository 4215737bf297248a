package processors

import (
	"context"

	"sceneminer/internal/models"
)

// Candidate is a single unvoted description proposed by one processor.
type Candidate struct {
	Type       models.DescriptionType `json:"type"`
	Text       string                 `json:"text"`
	Confidence float64                `json:"confidence"`
	Start      int                    `json:"start"`
	End        int                    `json:"end"`
}

// Processor is the text-analysis capability contract. Implementations range
// from sub-millisecond regex scanners to multi-second LLM calls; callers own
// the timeout via ctx.
type Processor interface {
	Name() string
	Analyze(ctx context.Context, text string) ([]Candidate, error)
}

type ProcessorConfig struct {
	Name                string  `json:"name" yaml:"name"`
	Enabled             bool    `json:"enabled" yaml:"enabled"`
	Weight              float64 `json:"weight" yaml:"weight"`
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
}

// ConfiguredProcessor pairs a processor with the config snapshot it should run
// under. Snapshots are taken when a pass starts; later UpdateConfig calls do
// not affect passes already in flight.
type ConfiguredProcessor struct {
	Processor Processor
	Config    ProcessorConfig
}

type HealthStatus struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}
