package storage

import (
	"context"
	"fmt"

	"sceneminer/internal/models"
)

type DescriptionRepo struct {
	db *DB
}

func NewDescriptionRepo(db *DB) *DescriptionRepo {
	return &DescriptionRepo{db: db}
}

func (r *DescriptionRepo) ListByUnit(ctx context.Context, unitID string) ([]models.Description, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT description_id, unit_id, type, text, confidence_score, position_in_unit, source_processors, quality_score, created_at
FROM descriptions
WHERE unit_id = $1
ORDER BY position_in_unit ASC, description_id ASC`, unitID)
	if err != nil {
		return nil, fmt.Errorf("list descriptions: %w", err)
	}
	defer rows.Close()
	out := make([]models.Description, 0, 16)
	for rows.Next() {
		var d models.Description
		if err := rows.Scan(&d.DescriptionID, &d.UnitID, &d.Type, &d.Text, &d.ConfidenceScore,
			&d.PositionInUnit, &d.SourceProcessors, &d.QualityScore, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan description: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate descriptions: %w", err)
	}
	return out, nil
}

// ReplaceForUnit swaps the unit's description set and marks it extracted in
// one transaction. Readers see either the old complete set or the new one,
// never a partial mix.
func (r *DescriptionRepo) ReplaceForUnit(ctx context.Context, unitID string, descs []models.Description) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx replace descriptions: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `DELETE FROM descriptions WHERE unit_id = $1`, unitID); err != nil {
		return fmt.Errorf("delete stale descriptions %s: %w", unitID, err)
	}
	for _, d := range descs {
		_, err := tx.Exec(ctx, `
INSERT INTO descriptions (description_id, unit_id, type, text, confidence_score, position_in_unit, source_processors, quality_score)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			d.DescriptionID, d.UnitID, d.Type, d.Text, d.ConfidenceScore, d.PositionInUnit, d.SourceProcessors, d.QualityScore)
		if err != nil {
			return fmt.Errorf("insert description %s: %w", d.DescriptionID, err)
		}
	}
	_, err = tx.Exec(ctx, `
UPDATE content_units
SET extraction_state = $2, description_count = $3, updated_at = now()
WHERE unit_id = $1`,
		unitID, models.ExtractionExtracted, len(descs))
	if err != nil {
		return fmt.Errorf("mark unit extracted %s: %w", unitID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit descriptions tx: %w", err)
	}
	return nil
}
