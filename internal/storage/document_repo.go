package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sceneminer/internal/models"
)

var ErrDocumentNotFound = errors.New("document not found")

type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// InsertWithUnits stores a document and all its content units atomically;
// this is the ingestion boundary, units are immutable afterwards.
func (r *DocumentRepo) InsertWithUnits(ctx context.Context, doc models.Document, units []models.ContentUnit) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx insert document: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	_, err = tx.Exec(ctx, `
INSERT INTO documents (document_id, title, author)
VALUES ($1, $2, $3)`, doc.DocumentID, doc.Title, doc.Author)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.DocumentID, err)
	}
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
		return fmt.Errorf("commit document tx: %w", err)
	}
	return nil
}

func (r *DocumentRepo) GetDocument(ctx context.Context, documentID string) (models.Document, error) {
	var d models.Document
	err := r.db.Pool.QueryRow(ctx, `
SELECT d.document_id, d.title, d.author, d.created_at,
       (SELECT count(*) FROM content_units u WHERE u.document_id = d.document_id)
FROM documents d
WHERE d.document_id = $1`, documentID).
		Scan(&d.DocumentID, &d.Title, &d.Author, &d.CreatedAt, &d.UnitCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get document %s: %w", documentID, err)
	}
	return d, nil
}

func (r *DocumentRepo) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT d.document_id, d.title, d.author, d.created_at,
       (SELECT count(*) FROM content_units u WHERE u.document_id = d.document_id)
FROM documents d
ORDER BY d.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	out := make([]models.Document, 0, 16)
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.DocumentID, &d.Title, &d.Author, &d.CreatedAt, &d.UnitCount); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}
