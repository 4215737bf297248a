package strategy

import "time"

type Mode string

const (
	ModeSingle     Mode = "single"
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
	ModeEnsemble   Mode = "ensemble"
	ModeAdaptive   Mode = "adaptive"
)

// TextStats are the per-call input characteristics selection is based on.
type TextStats struct {
	Chars             int
	LatencyBudget     time.Duration
	RecentFailureRate float64
}

type SelectorConfig struct {
	Default          Mode
	SingleProcessor  string
	ShortTextChars   int
	FastBudget       time.Duration
	FailureRateFloor float64
}

func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Default:          ModeEnsemble,
		ShortTextChars:   400,
		FastBudget:       2 * time.Second,
		FailureRateFloor: 0.5,
	}
}

// Select is pure: the same config and stats always yield the same mode.
// Adaptive resolves to a concrete mode here; Run never receives ModeAdaptive.
func Select(cfg SelectorConfig, stats TextStats) Mode {
	mode := cfg.Default
	if mode == "" {
		mode = ModeEnsemble
	}
	if mode != ModeAdaptive {
		return mode
	}
	switch {
	case stats.Chars > 0 && stats.Chars < cfg.ShortTextChars:
		// not enough text for engines to disagree meaningfully
		return ModeSingle
	case stats.LatencyBudget > 0 && stats.LatencyBudget < cfg.FastBudget:
		return ModeSingle
	case stats.RecentFailureRate >= cfg.FailureRateFloor:
		return ModeSequential
	default:
		return ModeEnsemble
	}
}
