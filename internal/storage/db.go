package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
  document_id uuid PRIMARY KEY,
  title text NOT NULL,
  author text NOT NULL DEFAULT '',
  created_at timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS content_units (
  unit_id uuid PRIMARY KEY,
  document_id uuid NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
  ordinal int NOT NULL,
  title text NOT NULL DEFAULT '',
  content text NOT NULL,
  word_count int NOT NULL,
  classification text NOT NULL DEFAULT 'unknown',
  classifier_version text NOT NULL DEFAULT '',
  extraction_state text NOT NULL DEFAULT 'not_started',
  description_count int NOT NULL DEFAULT 0,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now(),
  UNIQUE (document_id, ordinal)
)`,
	`CREATE TABLE IF NOT EXISTS descriptions (
  description_id uuid PRIMARY KEY,
  unit_id uuid NOT NULL REFERENCES content_units(unit_id) ON DELETE CASCADE,
  type text NOT NULL,
  text text NOT NULL,
  confidence_score double precision NOT NULL,
  position_in_unit int NOT NULL,
  source_processors text[] NOT NULL,
  quality_score double precision NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE INDEX IF NOT EXISTS idx_descriptions_unit ON descriptions (unit_id, position_in_unit)`,
	`CREATE INDEX IF NOT EXISTS idx_units_document ON content_units (document_id, ordinal)`,
}

// Migrate applies the schema. Statements are idempotent so every process can
// run this at startup.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
