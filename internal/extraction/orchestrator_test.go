package extraction

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sceneminer/internal/cache"
	"sceneminer/internal/ensemble"
	"sceneminer/internal/models"
	"sceneminer/internal/processors"
	"sceneminer/internal/strategy"
)

// fakeStore backs both store interfaces with in-memory maps, mirroring the
// write-once classification guard and the transactional replace of the real
// repositories.
type fakeStore struct {
	mu             sync.Mutex
	units          map[string]models.ContentUnit
	descs          map[string][]models.Description
	getUnitCalls   int
	classifyWrites int
	replaceCalls   int
}

func newFakeStore(units ...models.ContentUnit) *fakeStore {
	s := &fakeStore{units: map[string]models.ContentUnit{}, descs: map[string][]models.Description{}}
	for _, u := range units {
		s.units[u.UnitID] = u
	}
	return s
}

func (s *fakeStore) GetUnit(ctx context.Context, unitID string) (models.ContentUnit, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getUnitCalls++
	u, ok := s.units[unitID]
	if !ok {
		return models.ContentUnit{}, ErrUnitNotFound
	}
	return u, nil
}

func (s *fakeStore) SetClassification(ctx context.Context, unitID string, class models.Classification, version string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[unitID]
	if !ok {
		return false, ErrUnitNotFound
	}
	if u.Classification != models.ClassUnknown {
		return false, nil
	}
	u.Classification = class
	u.ClassifierVersion = version
	s.units[unitID] = u
	s.classifyWrites++
	return true, nil
}

func (s *fakeStore) MarkExtractedEmpty(ctx context.Context, unitID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.units[unitID]
	u.ExtractionState = models.ExtractionExtracted
	u.DescriptionCount = 0
	s.units[unitID] = u
	return nil
}

func (s *fakeStore) ResetUnit(ctx context.Context, unitID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[unitID]
	if !ok {
		return ErrUnitNotFound
	}
	u.Classification = models.ClassUnknown
	u.ClassifierVersion = ""
	u.ExtractionState = models.ExtractionNotStarted
	u.DescriptionCount = 0
	s.units[unitID] = u
	delete(s.descs, unitID)
	return nil
}

func (s *fakeStore) ListByUnit(ctx context.Context, unitID string) ([]models.Description, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Description, len(s.descs[unitID]))
	copy(out, s.descs[unitID])
	return out, nil
}

func (s *fakeStore) ReplaceForUnit(ctx context.Context, unitID string, descs []models.Description) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceCalls++
	s.descs[unitID] = descs
	u := s.units[unitID]
	u.ExtractionState = models.ExtractionExtracted
	u.DescriptionCount = len(descs)
	s.units[unitID] = u
	return nil
}

func (s *fakeStore) snapshot(unitID string) models.ContentUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.units[unitID]
}

func (s *fakeStore) counters() (gets, classifies, replaces int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUnitCalls, s.classifyWrites, s.replaceCalls
}

// slowProcessor answers after a fixed delay, or bails when the context dies.
type slowProcessor struct {
	name  string
	delay time.Duration
	cands []processors.Candidate
}

func (p *slowProcessor) Name() string { return p.name }

func (p *slowProcessor) Analyze(ctx context.Context, text string) ([]processors.Candidate, error) {
	_ = text
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return p.cands, nil
}

const passageText = "The abandoned lighthouse loomed over the rocky shore, its broken lantern dark against the storm clouds."

func slowPair(delay time.Duration) []processors.ConfiguredProcessor {
	c := processors.Candidate{Type: models.TypeLocation, Text: passageText, Confidence: 0.9}
	out := make([]processors.ConfiguredProcessor, 0, 2)
	for _, name := range []string{"alpha", "beta"} {
		out = append(out, processors.ConfiguredProcessor{
			Processor: &slowProcessor{name: name, delay: delay, cands: []processors.Candidate{c}},
			Config:    processors.ProcessorConfig{Name: name, Enabled: true, Weight: 1.0, ConfidenceThreshold: 0.5},
		})
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(t *testing.T, store *fakeStore, procs []processors.ConfiguredProcessor, opts Options) *Orchestrator {
	t.Helper()
	logger := quietLogger()
	registry, err := processors.NewRegistryWithProcessors(procs, 2, logger)
	require.NoError(t, err)
	runner := strategy.NewRunner(ensemble.NewVoter(ensemble.Options{ConsensusThreshold: 0.6, Similarity: ensemble.DefaultSimilarity()}), logger)
	selector := strategy.DefaultSelectorConfig()
	selector.Default = strategy.ModeEnsemble
	return NewOrchestrator(
		store, store,
		cache.NewMemoryTier(64, time.Minute), nil,
		cache.NewMemoryLocker(),
		registry, runner, selector, opts, logger,
	)
}

func narrativeUnit(id string) models.ContentUnit {
	content := strings.Repeat("The wind howled across the moor while the travelers pressed on through the dark. ", 20)
	return models.ContentUnit{
		UnitID:          id,
		DocumentID:      "doc-1",
		Ordinal:         1,
		Title:           "Chapter One",
		Content:         content,
		WordCount:       280,
		Classification:  models.ClassUnknown,
		ExtractionState: models.ExtractionNotStarted,
	}
}

func TestConcurrentRequestsExtractOnce(t *testing.T) {
	store := newFakeStore(narrativeUnit("u1"))
	o := newTestOrchestrator(t, store, slowPair(150*time.Millisecond), Options{})

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	results := make([]models.UnitResult, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.GetDescriptions(context.Background(), "u1", true)
		}(i)
	}
	wg.Wait()

	wins := 0
	for i := 0; i < callers; i++ {
		switch {
		case errs[i] == nil:
			require.Equal(t, models.ExtractionExtracted, results[i].ExtractionState)
			wins++
		default:
			require.ErrorIs(t, errs[i], ErrLockConflict)
		}
	}
	require.GreaterOrEqual(t, wins, 1)

	_, _, replaces := store.counters()
	require.Equal(t, 1, replaces, "exactly one caller may run the extraction")
}

func TestClassificationWrittenOnce(t *testing.T) {
	store := newFakeStore(narrativeUnit("u1"))
	o := newTestOrchestrator(t, store, slowPair(0), Options{})

	res, err := o.GetDescriptions(context.Background(), "u1", true)
	require.NoError(t, err)
	require.Equal(t, models.ClassSubstantive, res.Classification)
	require.NotEmpty(t, res.Descriptions)

	_, classifies, _ := store.counters()
	require.Equal(t, 1, classifies)
	require.Equal(t, "v1", store.snapshot("u1").ClassifierVersion)
}

func TestPreClassifiedUnitSkipsClassifier(t *testing.T) {
	u := narrativeUnit("u1")
	u.Classification = models.ClassSubstantive
	u.ClassifierVersion = "v1"
	store := newFakeStore(u)
	o := newTestOrchestrator(t, store, slowPair(0), Options{})

	_, err := o.GetDescriptions(context.Background(), "u1", true)
	require.NoError(t, err)
	_, classifies, _ := store.counters()
	require.Zero(t, classifies)
}

func TestRepeatedReadsAreStable(t *testing.T) {
	store := newFakeStore(narrativeUnit("u1"))
	o := newTestOrchestrator(t, store, slowPair(0), Options{})

	first, err := o.GetDescriptions(context.Background(), "u1", true)
	require.NoError(t, err)
	getsAfterFirst, _, _ := store.counters()

	for i := 0; i < 5; i++ {
		again, err := o.GetDescriptions(context.Background(), "u1", true)
		require.NoError(t, err)
		require.Equal(t, first.Descriptions, again.Descriptions)
	}
	gets, _, replaces := store.counters()
	require.Equal(t, 1, replaces, "repeat reads never re-extract")
	require.Equal(t, getsAfterFirst, gets, "repeat reads are served from cache")

	// a cold orchestrator over the same store sees the identical persisted rows
	cold := newTestOrchestrator(t, store, slowPair(0), Options{})
	res, err := cold.GetDescriptions(context.Background(), "u1", true)
	require.NoError(t, err)
	require.Equal(t, first.Descriptions, res.Descriptions)
}

func TestTimeoutLeavesUnitRetryable(t *testing.T) {
	store := newFakeStore(narrativeUnit("u1"))
	o := newTestOrchestrator(t, store, slowPair(500*time.Millisecond), Options{ExtractionTimeout: 40 * time.Millisecond})

	_, err := o.GetDescriptions(context.Background(), "u1", true)
	require.ErrorIs(t, err, ErrExtractionTimeout)

	u := store.snapshot("u1")
	require.Equal(t, models.ExtractionNotStarted, u.ExtractionState)
	_, _, replaces := store.counters()
	require.Zero(t, replaces, "a timed-out pass persists nothing")

	// the lock was released on the way out: a retry hits the timeout again,
	// never a lock conflict
	_, err = o.GetDescriptions(context.Background(), "u1", true)
	require.ErrorIs(t, err, ErrExtractionTimeout)
	require.NotErrorIs(t, err, ErrLockConflict)
}

func TestServiceUnitMarkedEmptyWithoutProcessors(t *testing.T) {
	u := narrativeUnit("u1")
	u.Title = "Copyright"
	store := newFakeStore(u)
	o := newTestOrchestrator(t, store, slowPair(0), Options{})

	res, err := o.GetDescriptions(context.Background(), "u1", true)
	require.NoError(t, err)
	require.Equal(t, models.ClassService, res.Classification)
	require.Equal(t, models.ExtractionExtracted, res.ExtractionState)
	require.Empty(t, res.Descriptions)

	_, _, replaces := store.counters()
	require.Zero(t, replaces, "service units never run an extraction pass")
	require.Equal(t, models.ExtractionExtracted, store.snapshot("u1").ExtractionState)
}

func TestReadWithoutExtractionPermission(t *testing.T) {
	store := newFakeStore(narrativeUnit("u1"))
	o := newTestOrchestrator(t, store, slowPair(0), Options{})

	res, err := o.GetDescriptions(context.Background(), "u1", false)
	require.NoError(t, err)
	require.Equal(t, models.ExtractionNotStarted, res.ExtractionState)
	require.Empty(t, res.Descriptions)

	_, classifies, replaces := store.counters()
	require.Zero(t, classifies)
	require.Zero(t, replaces)
}

func TestReprocessResetsAndExtractsAgain(t *testing.T) {
	store := newFakeStore(narrativeUnit("u1"))
	o := newTestOrchestrator(t, store, slowPair(0), Options{})

	first, err := o.GetDescriptions(context.Background(), "u1", true)
	require.NoError(t, err)
	require.NotEmpty(t, first.Descriptions)

	res, err := o.Reprocess(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, models.ExtractionExtracted, res.ExtractionState)
	require.Len(t, res.Descriptions, len(first.Descriptions))
	// fresh rows, not the old ones
	require.NotEqual(t, first.Descriptions[0].DescriptionID, res.Descriptions[0].DescriptionID)

	_, classifies, replaces := store.counters()
	require.Equal(t, 2, classifies, "reprocess reruns the classifier")
	require.Equal(t, 2, replaces)
}

func TestUnknownUnit(t *testing.T) {
	store := newFakeStore()
	o := newTestOrchestrator(t, store, slowPair(0), Options{})
	_, err := o.GetDescriptions(context.Background(), "missing", true)
	require.ErrorIs(t, err, ErrUnitNotFound)
}
