package activities

import (
	"context"
	"errors"
	"log/slog"

	"sceneminer/internal/extraction"
	"sceneminer/internal/models"
	"sceneminer/internal/storage"
)

// Activities host the background pre-parse work. The extraction itself goes
// through the same orchestrator the API uses; only the timeout budget
// differs, the lock discipline is identical.
type Activities struct {
	orchestrator *extraction.Orchestrator
	unitRepo     *storage.UnitRepo
	logger       *slog.Logger
}

func New(orchestrator *extraction.Orchestrator, unitRepo *storage.UnitRepo, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{orchestrator: orchestrator, unitRepo: unitRepo, logger: logger}
}

type ListDocumentUnitsInput struct {
	DocumentID string
	MaxUnits   int
}

type ListDocumentUnitsOutput struct {
	UnitIDs []string
}

func (a *Activities) ListDocumentUnitsActivity(ctx context.Context, in ListDocumentUnitsInput) (ListDocumentUnitsOutput, error) {
	units, err := a.unitRepo.ListUnitsByDocument(ctx, in.DocumentID, in.MaxUnits)
	if err != nil {
		return ListDocumentUnitsOutput{}, err
	}
	out := ListDocumentUnitsOutput{UnitIDs: make([]string, 0, len(units))}
	for _, u := range units {
		out.UnitIDs = append(out.UnitIDs, u.UnitID)
	}
	return out, nil
}

const (
	OutcomeExtracted  = "extracted"
	OutcomeService    = "service"
	OutcomeSkipLocked = "skipped_locked"
	OutcomeTimeout    = "timeout"
)

type ExtractUnitInput struct {
	UnitID string
}

type ExtractUnitOutput struct {
	UnitID           string
	Outcome          string
	DescriptionCount int
}

// ExtractUnitActivity runs one unit through the orchestrator. A lock conflict
// means an on-demand caller got there first: that is a success for the batch
// job, not a retry trigger, so it becomes an outcome instead of an error.
func (a *Activities) ExtractUnitActivity(ctx context.Context, in ExtractUnitInput) (ExtractUnitOutput, error) {
	res, err := a.orchestrator.GetDescriptions(ctx, in.UnitID, true)
	switch {
	case errors.Is(err, extraction.ErrLockConflict):
		a.logger.Info("preparse yielded to concurrent extraction", "unit", in.UnitID)
		return ExtractUnitOutput{UnitID: in.UnitID, Outcome: OutcomeSkipLocked}, nil
	case errors.Is(err, extraction.ErrExtractionTimeout):
		a.logger.Warn("preparse extraction timed out", "unit", in.UnitID)
		return ExtractUnitOutput{UnitID: in.UnitID, Outcome: OutcomeTimeout}, nil
	case err != nil:
		return ExtractUnitOutput{}, err
	}
	outcome := OutcomeExtracted
	if res.Classification == models.ClassService {
		outcome = OutcomeService
	}
	return ExtractUnitOutput{UnitID: in.UnitID, Outcome: outcome, DescriptionCount: len(res.Descriptions)}, nil
}
