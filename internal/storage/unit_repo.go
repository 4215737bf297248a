package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sceneminer/internal/models"
)

var ErrUnitNotFound = errors.New("content unit not found")

type UnitRepo struct {
	db *DB
}

func NewUnitRepo(db *DB) *UnitRepo {
	return &UnitRepo{db: db}
}

const unitColumns = `unit_id, document_id, ordinal, title, content, word_count,
classification, classifier_version, extraction_state, description_count, created_at, updated_at`

func scanUnit(row pgx.Row) (models.ContentUnit, error) {
	var u models.ContentUnit
	err := row.Scan(&u.UnitID, &u.DocumentID, &u.Ordinal, &u.Title, &u.Content, &u.WordCount,
		&u.Classification, &u.ClassifierVersion, &u.ExtractionState, &u.DescriptionCount, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *UnitRepo) GetUnit(ctx context.Context, unitID string) (models.ContentUnit, error) {
	u, err := scanUnit(r.db.Pool.QueryRow(ctx, `
SELECT `+unitColumns+`
FROM content_units
WHERE unit_id = $1`, unitID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ContentUnit{}, ErrUnitNotFound
	}
	if err != nil {
		return models.ContentUnit{}, fmt.Errorf("get unit %s: %w", unitID, err)
	}
	return u, nil
}

func (r *UnitRepo) ListUnitsByDocument(ctx context.Context, documentID string, limit int) ([]models.ContentUnit, error) {
	q := `
SELECT ` + unitColumns + `
FROM content_units
WHERE document_id = $1
ORDER BY ordinal ASC`
	args := []any{documentID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list units by document: %w", err)
	}
	defer rows.Close()
	out := make([]models.ContentUnit, 0, 32)
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	return out, nil
}

func (r *UnitRepo) InsertUnits(ctx context.Context, units []models.ContentUnit) error {
	if len(units) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx insert units: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	for _, u := range units {
		_, err := tx.Exec(ctx, `
INSERT INTO content_units (unit_id, document_id, ordinal, title, content, word_count)
VALUES ($1, $2, $3, $4, $5, $6)`,
			u.UnitID, u.DocumentID, u.Ordinal, u.Title, u.Content, u.WordCount)
		if err != nil {
			return fmt.Errorf("insert unit %s: %w", u.UnitID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit units tx: %w", err)
	}
	return nil
}

// SetClassification writes the classification exactly once. The guard on the
// current value makes the write idempotent under racing classifiers: the
// second writer gets written=false and must read back the persisted value.
func (r *UnitRepo) SetClassification(ctx context.Context, unitID string, class models.Classification, version string) (written bool, err error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE content_units
SET classification = $2, classifier_version = $3, updated_at = now()
WHERE unit_id = $1 AND classification = $4`,
		unitID, class, version, models.ClassUnknown)
	if err != nil {
		return false, fmt.Errorf("set classification %s: %w", unitID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkExtractedEmpty is the terminal state for service units: extracted with
// zero descriptions, an explicit "nothing to extract".
func (r *UnitRepo) MarkExtractedEmpty(ctx context.Context, unitID string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE content_units
SET extraction_state = $2, description_count = 0, updated_at = now()
WHERE unit_id = $1`,
		unitID, models.ExtractionExtracted)
	if err != nil {
		return fmt.Errorf("mark extracted empty %s: %w", unitID, err)
	}
	return nil
}

// ResetUnit is the administrative reprocess override: classification back to
// unknown, extraction back to not-started, stale descriptions gone, in one
// transaction.
func (r *UnitRepo) ResetUnit(ctx context.Context, unitID string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx reset unit: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if _, err := tx.Exec(ctx, `DELETE FROM descriptions WHERE unit_id = $1`, unitID); err != nil {
		return fmt.Errorf("reset unit %s descriptions: %w", unitID, err)
	}
	tag, err := tx.Exec(ctx, `
UPDATE content_units
SET classification = $2, classifier_version = '', extraction_state = $3, description_count = 0, updated_at = now()
WHERE unit_id = $1`,
		unitID, models.ClassUnknown, models.ExtractionNotStarted)
	if err != nil {
		return fmt.Errorf("reset unit %s: %w", unitID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnitNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset tx: %w", err)
	}
	return nil
}
