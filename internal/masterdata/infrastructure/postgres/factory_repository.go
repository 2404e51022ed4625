package postgres

import (
	"context"
	"errors"
	"fmt"
)

const defaultFactoriesTable = "factories"

// FactoryRepository checks factory existence in Postgres.
type FactoryRepository struct {
	db    DBTX
	table string
}

// NewFactoryRepository constructs a repository.
func NewFactoryRepository(db DBTX) *FactoryRepository {
	return &FactoryRepository{db: db, table: defaultFactoriesTable}
}

// Exists reports whether a factory row exists.
func (r *FactoryRepository) Exists(ctx context.Context, id string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("factory repo: nil db")
	}
	if id == "" {
		return false, nil
	}
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, r.table)
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Create inserts a factory if missing. Used by the seed tool.
func (r *FactoryRepository) Create(ctx context.Context, id, name string) error {
	if r == nil || r.db == nil {
		return errors.New("factory repo: nil db")
	}
	if id == "" {
		return errors.New("factory repo: empty id")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, name)
VALUES ($1, $2)
ON CONFLICT (id) DO NOTHING`, r.table)
	_, err := r.db.ExecContext(ctx, query, id, name)
	return err
}
