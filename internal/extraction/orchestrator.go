// Package extraction holds the on-demand extraction orchestrator: the single
// code path through which both user-triggered requests and the background
// pre-parse job classify and extract a content unit, serialized by a
// distributed per-unit lock across the cache tiers and the durable store.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sceneminer/internal/cache"
	"sceneminer/internal/classify"
	"sceneminer/internal/models"
	"sceneminer/internal/processors"
	"sceneminer/internal/strategy"
)

// UnitStore and DescriptionStore are the narrow slices of the storage layer
// the orchestrator needs; tests construct isolated orchestrators over fakes.
type UnitStore interface {
	GetUnit(ctx context.Context, unitID string) (models.ContentUnit, error)
	SetClassification(ctx context.Context, unitID string, class models.Classification, version string) (bool, error)
	MarkExtractedEmpty(ctx context.Context, unitID string) error
	ResetUnit(ctx context.Context, unitID string) error
}

type DescriptionStore interface {
	ListByUnit(ctx context.Context, unitID string) ([]models.Description, error)
	ReplaceForUnit(ctx context.Context, unitID string, descs []models.Description) error
}

type Options struct {
	ExtractionTimeout time.Duration
	LockTTL           time.Duration
}

type Orchestrator struct {
	units    UnitStore
	descs    DescriptionStore
	local    cache.Tier
	shared   cache.Tier
	locker   cache.Locker
	registry *processors.Registry
	runner   *strategy.Runner
	selector strategy.SelectorConfig
	opts     Options
	logger   *slog.Logger
}

func NewOrchestrator(
	units UnitStore,
	descs DescriptionStore,
	local, shared cache.Tier,
	locker cache.Locker,
	registry *processors.Registry,
	runner *strategy.Runner,
	selector strategy.SelectorConfig,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if opts.ExtractionTimeout <= 0 {
		opts.ExtractionTimeout = 25 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		units:    units,
		descs:    descs,
		local:    local,
		shared:   shared,
		locker:   locker,
		registry: registry,
		runner:   runner,
		selector: selector,
		opts:     opts,
		logger:   logger,
	}
}

func cacheKey(unitID string) string { return "unit:" + unitID }

// GetDescriptions returns the unit's descriptions, extracting on demand when
// allowed. Cache tiers are consulted first, then the durable store; a miss
// with allowExtraction triggers the lock-classify-extract-persist protocol.
func (o *Orchestrator) GetDescriptions(ctx context.Context, unitID string, allowExtraction bool) (models.UnitResult, error) {
	if res, ok := o.cachedResult(ctx, unitID); ok {
		return res, nil
	}

	unit, err := o.units.GetUnit(ctx, unitID)
	if err != nil {
		return models.UnitResult{}, err
	}
	if unit.ExtractionState == models.ExtractionExtracted {
		res, err := o.persistedResult(ctx, unit)
		if err != nil {
			return models.UnitResult{}, err
		}
		o.warmCaches(ctx, res)
		return res, nil
	}

	if !allowExtraction {
		return models.UnitResult{
			UnitID:          unitID,
			Classification:  unit.Classification,
			ExtractionState: models.ExtractionNotStarted,
			Descriptions:    []models.Description{},
		}, nil
	}

	return o.extractUnderLock(ctx, unit)
}

// Reprocess resets a unit's classification and extraction state, then runs
// the normal protocol again. The reset itself happens under the unit lock.
func (o *Orchestrator) Reprocess(ctx context.Context, unitID string) (models.UnitResult, error) {
	token, ok, err := o.locker.Acquire(ctx, unitID, o.opts.LockTTL)
	if err != nil {
		return models.UnitResult{}, fmt.Errorf("acquire lock for reprocess: %w", err)
	}
	if !ok {
		return models.UnitResult{}, ErrLockConflict
	}
	err = func() error {
		defer o.releaseLock(unitID, token)
		if err := o.units.ResetUnit(ctx, unitID); err != nil {
			return err
		}
		o.invalidateCaches(ctx, unitID)
		return nil
	}()
	if err != nil {
		return models.UnitResult{}, err
	}
	return o.GetDescriptions(ctx, unitID, true)
}

func (o *Orchestrator) extractUnderLock(ctx context.Context, unit models.ContentUnit) (models.UnitResult, error) {
	token, ok, err := o.locker.Acquire(ctx, unit.UnitID, o.opts.LockTTL)
	if err != nil {
		return models.UnitResult{}, fmt.Errorf("acquire unit lock: %w", err)
	}
	if !ok {
		return models.UnitResult{}, ErrLockConflict
	}
	defer o.releaseLock(unit.UnitID, token)

	// Re-read under the lock: a concurrent holder may have finished between
	// our store read and the acquire.
	unit, err = o.units.GetUnit(ctx, unit.UnitID)
	if err != nil {
		return models.UnitResult{}, err
	}
	if unit.ExtractionState == models.ExtractionExtracted {
		res, err := o.persistedResult(ctx, unit)
		if err != nil {
			return models.UnitResult{}, err
		}
		o.warmCaches(ctx, res)
		return res, nil
	}

	class := unit.Classification
	if class == models.ClassUnknown {
		class, err = o.classifyUnderLock(ctx, unit)
		if err != nil {
			return models.UnitResult{}, err
		}
	}

	if class == models.ClassService {
		if err := o.units.MarkExtractedEmpty(ctx, unit.UnitID); err != nil {
			return models.UnitResult{}, err
		}
		res := models.UnitResult{
			UnitID:          unit.UnitID,
			Classification:  models.ClassService,
			ExtractionState: models.ExtractionExtracted,
			Descriptions:    []models.Description{},
		}
		o.warmCaches(ctx, res)
		return res, nil
	}

	return o.runExtraction(ctx, unit)
}

// classifyUnderLock runs the heuristic and persists the decision immediately,
// not deferred to any batch commit. The write-once guard in the store means
// a racer that lost still proceeds with the persisted value.
func (o *Orchestrator) classifyUnderLock(ctx context.Context, unit models.ContentUnit) (models.Classification, error) {
	d := classify.Classify(unit.Title, unit.Content, unit.WordCount)
	written, err := o.units.SetClassification(ctx, unit.UnitID, d.Class, d.Version)
	if err != nil {
		return "", err
	}
	if !written {
		// already classified by a previous holder; use the stored value
		stored, err := o.units.GetUnit(ctx, unit.UnitID)
		if err != nil {
			return "", err
		}
		if stored.Classification != d.Class {
			// structurally impossible under the lock discipline; a disagreement
			// here means a locking bug, so make it loud
			o.logger.Error("classification race detected",
				"unit", unit.UnitID, "computed", d.Class, "stored", stored.Classification)
		}
		return stored.Classification, nil
	}
	o.logger.Info("unit classified", "unit", unit.UnitID, "class", d.Class, "reason", d.Reason)
	return d.Class, nil
}

func (o *Orchestrator) runExtraction(ctx context.Context, unit models.ContentUnit) (models.UnitResult, error) {
	passCtx, cancel := context.WithTimeout(ctx, o.opts.ExtractionTimeout)
	defer cancel()

	snapshot := o.registry.Enabled()
	stats := strategy.TextStats{
		Chars:             len(unit.Content),
		RecentFailureRate: o.runner.RecentFailureRate(),
	}
	mode := strategy.Select(o.selector, stats)

	started := time.Now()
	report, err := o.runner.Run(passCtx, mode, snapshot, unit.Content)
	if passCtx.Err() != nil && ctx.Err() == nil {
		// budget exceeded: nothing persisted, lock released by defer,
		// the unit stays retryable
		o.logger.Warn("extraction timed out", "unit", unit.UnitID, "mode", mode, "budget", o.opts.ExtractionTimeout)
		return models.UnitResult{}, fmt.Errorf("%w after %s", ErrExtractionTimeout, o.opts.ExtractionTimeout)
	}
	if err != nil {
		return models.UnitResult{}, fmt.Errorf("extraction pass: %w", err)
	}

	descs := make([]models.Description, 0, len(report.Result.Accepted))
	for _, s := range report.Result.Accepted {
		descs = append(descs, models.Description{
			DescriptionID:    uuid.NewString(),
			UnitID:           unit.UnitID,
			Type:             s.Type,
			Text:             s.Text,
			ConfidenceScore:  s.ConsensusScore,
			PositionInUnit:   s.Position,
			SourceProcessors: s.Sources,
			QualityScore:     s.QualityScore,
		})
	}

	if err := o.descs.ReplaceForUnit(ctx, unit.UnitID, descs); err != nil {
		return models.UnitResult{}, err
	}

	o.logger.Info("unit extracted",
		"unit", unit.UnitID,
		"mode", report.Mode,
		"accepted", len(descs),
		"below_threshold", len(report.Result.Rejected),
		"processor_failures", len(report.Failures),
		"reduced_confidence", report.ReducedConfidence,
		"elapsed", time.Since(started))

	res := models.UnitResult{
		UnitID:            unit.UnitID,
		Classification:    models.ClassSubstantive,
		ExtractionState:   models.ExtractionExtracted,
		Descriptions:      descs,
		ReducedConfidence: report.ReducedConfidence,
	}
	o.invalidateCaches(ctx, unit.UnitID)
	o.warmCaches(ctx, res)
	return res, nil
}

func (o *Orchestrator) persistedResult(ctx context.Context, unit models.ContentUnit) (models.UnitResult, error) {
	descs := []models.Description{}
	if unit.DescriptionCount > 0 {
		var err error
		descs, err = o.descs.ListByUnit(ctx, unit.UnitID)
		if err != nil {
			return models.UnitResult{}, err
		}
	}
	return models.UnitResult{
		UnitID:          unit.UnitID,
		Classification:  unit.Classification,
		ExtractionState: models.ExtractionExtracted,
		Descriptions:    descs,
	}, nil
}

func (o *Orchestrator) cachedResult(ctx context.Context, unitID string) (models.UnitResult, bool) {
	key := cacheKey(unitID)
	if payload, ok, err := o.local.Get(ctx, key); err == nil && ok {
		if res, ok := decodeResult(payload); ok {
			return res, true
		}
	}
	if o.shared == nil {
		return models.UnitResult{}, false
	}
	payload, ok, err := o.shared.Get(ctx, key)
	if err != nil {
		// the shared tier is lossy; a failure falls through to the store
		o.logger.Warn("shared cache read failed", "unit", unitID, "error", err)
		return models.UnitResult{}, false
	}
	if !ok {
		return models.UnitResult{}, false
	}
	res, decoded := decodeResult(payload)
	if !decoded {
		return models.UnitResult{}, false
	}
	if err := o.local.Set(ctx, key, payload); err != nil {
		o.logger.Warn("local cache warm failed", "unit", unitID, "error", err)
	}
	return res, true
}

// warmCaches populates the tiers after a durable result exists. Failures are
// logged, never fatal: the store remains the source of truth.
func (o *Orchestrator) warmCaches(ctx context.Context, res models.UnitResult) {
	payload, err := json.Marshal(res)
	if err != nil {
		return
	}
	key := cacheKey(res.UnitID)
	if err := o.local.Set(ctx, key, payload); err != nil {
		o.logger.Warn("local cache warm failed", "unit", res.UnitID, "error", err)
	}
	if o.shared != nil {
		if err := o.shared.Set(ctx, key, payload); err != nil {
			o.logger.Warn("shared cache warm failed", "unit", res.UnitID, "error", err)
		}
	}
}

func (o *Orchestrator) invalidateCaches(ctx context.Context, unitID string) {
	key := cacheKey(unitID)
	if err := o.local.Delete(ctx, key); err != nil {
		o.logger.Warn("local cache invalidate failed", "unit", unitID, "error", err)
	}
	if o.shared != nil {
		if err := o.shared.Delete(ctx, key); err != nil {
			o.logger.Warn("shared cache invalidate failed", "unit", unitID, "error", err)
		}
	}
}

// releaseLock runs on every exit path. It uses its own context because the
// request context may already be expired (that is exactly the timeout case
// where releasing matters most).
func (o *Orchestrator) releaseLock(unitID, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.locker.Release(ctx, unitID, token); err != nil {
		o.logger.Error("unit lock release failed", "unit", unitID, "error", err)
	}
}

func decodeResult(payload []byte) (models.UnitResult, bool) {
	var res models.UnitResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return models.UnitResult{}, false
	}
	if res.UnitID == "" {
		return models.UnitResult{}, false
	}
	if res.Descriptions == nil {
		res.Descriptions = []models.Description{}
	}
	return res, true
}
