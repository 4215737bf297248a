package processors

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry owns the configured processor set. Construction fails fast when
// fewer than the floor are viable; after that, processors are never reloaded
// within the process lifetime, only reconfigured.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	order   []string
	logger  *slog.Logger
}

type registryEntry struct {
	processor Processor
	config    ProcessorConfig
}

type RegistryOptions struct {
	MinEnabled int
	LLM        LLMSettings
	Logger     *slog.Logger
}

func NewRegistry(configs []ProcessorConfig, opts RegistryOptions) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	built := make([]ConfiguredProcessor, 0, len(configs))
	seen := map[string]struct{}{}
	for _, cfg := range configs {
		if _, dup := seen[cfg.Name]; dup {
			return nil, fmt.Errorf("processor %s configured twice", cfg.Name)
		}
		seen[cfg.Name] = struct{}{}
		p, err := buildProcessor(cfg.Name, opts)
		if err != nil {
			// failed builds are excluded for the whole process lifetime
			logger.Warn("processor failed to load, excluding", "processor", cfg.Name, "error", err)
			continue
		}
		built = append(built, ConfiguredProcessor{Processor: p, Config: cfg})
	}
	return NewRegistryWithProcessors(built, opts.MinEnabled, logger)
}

// NewRegistryWithProcessors builds a registry from already-constructed
// processors. Tests use it to assemble isolated registries around fakes.
func NewRegistryWithProcessors(procs []ConfiguredProcessor, minEnabled int, logger *slog.Logger) (*Registry, error) {
	if minEnabled <= 0 {
		minEnabled = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{entries: map[string]*registryEntry{}, logger: logger}
	enabled := 0
	for _, cp := range procs {
		cfg := cp.Config
		if err := validateConfig(cfg); err != nil {
			return nil, fmt.Errorf("processor %s: %w", cfg.Name, err)
		}
		if _, dup := r.entries[cfg.Name]; dup {
			return nil, fmt.Errorf("processor %s configured twice", cfg.Name)
		}
		r.entries[cfg.Name] = &registryEntry{processor: cp.Processor, config: cfg}
		r.order = append(r.order, cfg.Name)
		if cfg.Enabled {
			enabled++
		}
	}
	if enabled < minEnabled {
		return nil, fmt.Errorf("%w: %d enabled, need at least %d", ErrInsufficientProcessors, enabled, minEnabled)
	}
	return r, nil
}

func buildProcessor(name string, opts RegistryOptions) (Processor, error) {
	switch name {
	case "pattern":
		return NewPatternProcessor(), nil
	case "lexicon":
		return NewLexiconProcessor(), nil
	case "syntax":
		return NewSyntaxProcessor(), nil
	case "zeroshot":
		return NewZeroShotProcessor(), nil
	case "llm":
		if opts.LLM.APIKey == "" {
			return nil, fmt.Errorf("llm api key not configured")
		}
		return NewLLMProcessor(opts.LLM), nil
	case "mock":
		return NewMockProcessor(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
	}
}

func validateConfig(cfg ProcessorConfig) error {
	if cfg.Weight < 0 {
		return fmt.Errorf("weight must be >= 0, got %v", cfg.Weight)
	}
	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be in [0,1], got %v", cfg.ConfidenceThreshold)
	}
	return nil
}

func (r *Registry) Get(name string) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.processor, true
}

// Enabled returns a point-in-time snapshot. A pass holds its snapshot for its
// whole lifetime, so config updates never affect in-flight extractions.
func (r *Registry) Enabled() []ConfiguredProcessor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ConfiguredProcessor, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		if e.config.Enabled {
			out = append(out, ConfiguredProcessor{Processor: e.processor, Config: e.config})
		}
	}
	return out
}

func (r *Registry) Configs() []ProcessorConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProcessorConfig, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].config)
	}
	return out
}

// UpdateConfig swaps a processor's config for subsequent passes. Name is
// immutable; enabled/weight/threshold are hot-swappable.
func (r *Registry) UpdateConfig(name string, cfg ProcessorConfig) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("processor %s: %w", name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProcessor, name)
	}
	cfg.Name = name
	e.config = cfg
	r.logger.Info("processor config updated",
		"processor", name, "enabled", cfg.Enabled, "weight", cfg.Weight, "threshold", cfg.ConfidenceThreshold)
	return nil
}

const healthProbeText = "The old lighthouse stood alone on the grey cliff, wrapped in cold morning fog that clung to the rocks below."

// HealthCheck runs each processor against a tiny probe text with a short
// deadline. Heuristic engines answer instantly; a broken LLM endpoint shows
// up here instead of mid-extraction.
func (r *Registry) HealthCheck(ctx context.Context) map[string]HealthStatus {
	r.mu.RLock()
	snapshot := make([]ConfiguredProcessor, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		snapshot = append(snapshot, ConfiguredProcessor{Processor: e.processor, Config: e.config})
	}
	r.mu.RUnlock()

	out := make(map[string]HealthStatus, len(snapshot))
	for _, cp := range snapshot {
		status := HealthStatus{Name: cp.Config.Name, Enabled: cp.Config.Enabled}
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := cp.Processor.Analyze(probeCtx, healthProbeText)
		cancel()
		if err != nil {
			status.Detail = err.Error()
		} else {
			status.Healthy = true
		}
		out[cp.Config.Name] = status
	}
	return out
}
