package processors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConfigs(names ...string) []ProcessorConfig {
	out := make([]ProcessorConfig, 0, len(names))
	for _, n := range names {
		out = append(out, ProcessorConfig{Name: n, Enabled: true, Weight: 1.0, ConfidenceThreshold: 0.5})
	}
	return out
}

func TestNewRegistryFailsFastBelowFloor(t *testing.T) {
	_, err := NewRegistry(testConfigs("pattern"), RegistryOptions{MinEnabled: 2})
	require.ErrorIs(t, err, ErrInsufficientProcessors)
}

func TestNewRegistryExcludesUnloadableProcessors(t *testing.T) {
	// llm without an api key fails to build; with only one other processor
	// the floor is breached
	_, err := NewRegistry(testConfigs("pattern", "llm"), RegistryOptions{MinEnabled: 2})
	require.ErrorIs(t, err, ErrInsufficientProcessors)

	// with two heuristics the same exclusion is survivable
	r, err := NewRegistry(testConfigs("pattern", "lexicon", "llm"), RegistryOptions{MinEnabled: 2})
	require.NoError(t, err)
	_, ok := r.Get("llm")
	require.False(t, ok)
	require.Len(t, r.Enabled(), 2)
}

func TestNewRegistryDisabledDoNotCount(t *testing.T) {
	cfgs := testConfigs("pattern", "lexicon")
	cfgs[1].Enabled = false
	_, err := NewRegistry(cfgs, RegistryOptions{MinEnabled: 2})
	require.ErrorIs(t, err, ErrInsufficientProcessors)
}

func TestNewRegistryRejectsInvalidWeights(t *testing.T) {
	cfgs := testConfigs("pattern", "lexicon")
	cfgs[0].Weight = -1
	_, err := NewRegistry(cfgs, RegistryOptions{})
	require.Error(t, err)

	cfgs = testConfigs("pattern", "lexicon")
	cfgs[0].ConfidenceThreshold = 1.5
	_, err = NewRegistry(cfgs, RegistryOptions{})
	require.Error(t, err)
}

func TestUpdateConfigDoesNotAffectSnapshots(t *testing.T) {
	r, err := NewRegistry(testConfigs("pattern", "lexicon"), RegistryOptions{})
	require.NoError(t, err)

	snapshot := r.Enabled()
	require.NoError(t, r.UpdateConfig("pattern", ProcessorConfig{Enabled: true, Weight: 2.5, ConfidenceThreshold: 0.7}))

	// in-flight snapshot keeps the old weight
	require.Equal(t, 1.0, snapshot[0].Config.Weight)
	// new snapshots see the update
	require.Equal(t, 2.5, r.Enabled()[0].Config.Weight)
}

func TestUpdateConfigUnknownProcessor(t *testing.T) {
	r, err := NewRegistry(testConfigs("pattern", "lexicon"), RegistryOptions{})
	require.NoError(t, err)
	err = r.UpdateConfig("nope", ProcessorConfig{Enabled: true, Weight: 1, ConfidenceThreshold: 0.5})
	require.ErrorIs(t, err, ErrUnknownProcessor)
}

func TestUpdateConfigDisableShrinksEnabledSet(t *testing.T) {
	r, err := NewRegistry(testConfigs("pattern", "lexicon", "syntax"), RegistryOptions{})
	require.NoError(t, err)
	require.NoError(t, r.UpdateConfig("syntax", ProcessorConfig{Enabled: false, Weight: 1, ConfidenceThreshold: 0.5}))
	require.Len(t, r.Enabled(), 2)
}

func TestHealthCheckHeuristics(t *testing.T) {
	r, err := NewRegistry(testConfigs("pattern", "lexicon", "syntax", "zeroshot", "mock"), RegistryOptions{})
	require.NoError(t, err)
	statuses := r.HealthCheck(context.Background())
	require.Len(t, statuses, 5)
	for name, st := range statuses {
		require.True(t, st.Healthy, "heuristic processor %s should always be healthy", name)
	}
}
