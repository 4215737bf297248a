package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"sceneminer/internal/activities"
)

const QueryGetPreparseProgress = "GetPreparseProgress"

type DocumentPreparseInput struct {
	DocumentID string
	MaxUnits   int
}

type DocumentPreparseProgress struct {
	DocumentID string
	Total      int
	Completed  int
	PerUnit    map[string]string
}

// DocumentPreparseWorkflow opportunistically extracts the first K units of a
// freshly ingested document. Units are processed one at a time: the point is
// to have early chapters warm before the reader gets there, not to race
// on-demand traffic for every unit at once.
func DocumentPreparseWorkflow(ctx workflow.Context, input DocumentPreparseInput) (string, error) {
	progress := DocumentPreparseProgress{
		DocumentID: input.DocumentID,
		PerUnit:    map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetPreparseProgress, func() (DocumentPreparseProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 3 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var listOut activities.ListDocumentUnitsOutput
	err := workflow.ExecuteActivity(ctx, "ListDocumentUnitsActivity", activities.ListDocumentUnitsInput{
		DocumentID: input.DocumentID,
		MaxUnits:   input.MaxUnits,
	}).Get(ctx, &listOut)
	if err != nil {
		return "", err
	}
	progress.Total = len(listOut.UnitIDs)

	for _, unitID := range listOut.UnitIDs {
		var out activities.ExtractUnitOutput
		err := workflow.ExecuteActivity(ctx, "ExtractUnitActivity", activities.ExtractUnitInput{UnitID: unitID}).Get(ctx, &out)
		if err != nil {
			progress.PerUnit[unitID] = "failed: " + err.Error()
			progress.Completed++
			continue
		}
		progress.PerUnit[unitID] = out.Outcome
		progress.Completed++
	}

	return fmt.Sprintf("preparsed %d/%d units", progress.Completed, progress.Total), nil
}
